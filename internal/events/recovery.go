package events

// Event type constants for recovery engine events.
const (
	TypeRecoverySelected  = "recovery_selected"
	TypeRecoveryExecuted  = "recovery_executed"
	TypeAttemptsExhausted = "recovery_attempts_exhausted"
)

// RecoverySelectedEvent is emitted when a strategy is chosen for a failure.
type RecoverySelectedEvent struct {
	BaseEvent
	TaskID   string `json:"task_id,omitempty"`
	AgentID  string `json:"agent_id,omitempty"`
	Category string `json:"category"`
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
	Attempt  int    `json:"attempt"`
}

// NewRecoverySelectedEvent creates a new recovery selected event.
func NewRecoverySelectedEvent(taskID, agentID, category, strategy, reason string, attempt int) RecoverySelectedEvent {
	return RecoverySelectedEvent{
		BaseEvent: NewBaseEvent(TypeRecoverySelected),
		TaskID:    taskID,
		AgentID:   agentID,
		Category:  category,
		Strategy:  strategy,
		Reason:    reason,
		Attempt:   attempt,
	}
}

// RecoveryExecutedEvent is emitted after a strategy's side effects run.
type RecoveryExecutedEvent struct {
	BaseEvent
	TaskID   string `json:"task_id,omitempty"`
	Strategy string `json:"strategy"`
	Action   string `json:"action"`
	Success  bool   `json:"success"`
}

// NewRecoveryExecutedEvent creates a new recovery executed event.
func NewRecoveryExecutedEvent(taskID, strategy, action string, success bool) RecoveryExecutedEvent {
	return RecoveryExecutedEvent{
		BaseEvent: NewBaseEvent(TypeRecoveryExecuted),
		TaskID:    taskID,
		Strategy:  strategy,
		Action:    action,
		Success:   success,
	}
}

// AttemptsExhaustedEvent is emitted when a key hits the attempt ceiling and
// the engine forces manual intervention.
type AttemptsExhaustedEvent struct {
	BaseEvent
	Key      string `json:"key"`
	Attempts int    `json:"attempts"`
}

// NewAttemptsExhaustedEvent creates a new attempts exhausted event.
func NewAttemptsExhaustedEvent(key string, attempts int) AttemptsExhaustedEvent {
	return AttemptsExhaustedEvent{
		BaseEvent: NewBaseEvent(TypeAttemptsExhausted),
		Key:       key,
		Attempts:  attempts,
	}
}
