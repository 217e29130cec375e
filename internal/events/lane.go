package events

import "time"

// Event type constants for lane scheduler events.
const (
	TypeLaneAcquired     = "lane_acquired"
	TypeLaneReleased     = "lane_released"
	TypeLanePromoted     = "lane_promoted"
	TypeLaneWaitTimeout  = "lane_wait_timeout"
	TypeLaneCleared      = "lane_cleared"
	TypeLaneReconfigured = "lane_reconfigured"
)

// LaneAcquiredEvent is emitted when an agent takes a lane slot.
type LaneAcquiredEvent struct {
	BaseEvent
	Lane      string `json:"lane"`
	AgentID   string `json:"agent_id"`
	TaskID    string `json:"task_id,omitempty"`
	Occupancy int    `json:"occupancy"`
}

// NewLaneAcquiredEvent creates a new lane acquired event.
func NewLaneAcquiredEvent(lane, agentID, taskID string, occupancy int) LaneAcquiredEvent {
	return LaneAcquiredEvent{
		BaseEvent: NewBaseEvent(TypeLaneAcquired),
		Lane:      lane,
		AgentID:   agentID,
		TaskID:    taskID,
		Occupancy: occupancy,
	}
}

// LaneReleasedEvent is emitted when an agent gives up a lane slot.
type LaneReleasedEvent struct {
	BaseEvent
	Lane    string        `json:"lane"`
	AgentID string        `json:"agent_id"`
	TaskID  string        `json:"task_id,omitempty"`
	Running time.Duration `json:"running_ms"`
}

// NewLaneReleasedEvent creates a new lane released event.
func NewLaneReleasedEvent(lane, agentID, taskID string, running time.Duration) LaneReleasedEvent {
	return LaneReleasedEvent{
		BaseEvent: NewBaseEvent(TypeLaneReleased),
		Lane:      lane,
		AgentID:   agentID,
		TaskID:    taskID,
		Running:   running,
	}
}

// LanePromotedEvent is emitted when an occupant moves to a more urgent lane.
type LanePromotedEvent struct {
	BaseEvent
	AgentID string `json:"agent_id"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// NewLanePromotedEvent creates a new lane promoted event.
func NewLanePromotedEvent(agentID, from, to string) LanePromotedEvent {
	return LanePromotedEvent{
		BaseEvent: NewBaseEvent(TypeLanePromoted),
		AgentID:   agentID,
		From:      from,
		To:        to,
	}
}

// LaneWaitTimeoutEvent is emitted when a queued waiter times out.
type LaneWaitTimeoutEvent struct {
	BaseEvent
	Lane    string        `json:"lane"`
	AgentID string        `json:"agent_id"`
	Waited  time.Duration `json:"waited_ms"`
}

// NewLaneWaitTimeoutEvent creates a new lane wait timeout event.
func NewLaneWaitTimeoutEvent(lane, agentID string, waited time.Duration) LaneWaitTimeoutEvent {
	return LaneWaitTimeoutEvent{
		BaseEvent: NewBaseEvent(TypeLaneWaitTimeout),
		Lane:      lane,
		AgentID:   agentID,
		Waited:    waited,
	}
}

// LaneClearedEvent is emitted when a lane is force-emptied.
type LaneClearedEvent struct {
	BaseEvent
	Lane     string `json:"lane"`
	Released int    `json:"released"`
}

// NewLaneClearedEvent creates a new lane cleared event.
func NewLaneClearedEvent(lane string, released int) LaneClearedEvent {
	return LaneClearedEvent{
		BaseEvent: NewBaseEvent(TypeLaneCleared),
		Lane:      lane,
		Released:  released,
	}
}

// LaneReconfiguredEvent is emitted when a lane's capacity changes at runtime.
type LaneReconfiguredEvent struct {
	BaseEvent
	Lane          string `json:"lane"`
	MaxConcurrent int    `json:"max_concurrent"`
}

// NewLaneReconfiguredEvent creates a new lane reconfigured event.
func NewLaneReconfiguredEvent(lane string, maxConcurrent int) LaneReconfiguredEvent {
	return LaneReconfiguredEvent{
		BaseEvent:     NewBaseEvent(TypeLaneReconfigured),
		Lane:          lane,
		MaxConcurrent: maxConcurrent,
	}
}
