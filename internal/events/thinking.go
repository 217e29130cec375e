package events

// Event type constants for thinking-level and escalation events.
const (
	TypeLevelResolved          = "thinking_level_resolved"
	TypeUpgradeRecommended     = "upgrade_recommended"
	TypeUpgradeOutcomeRecorded = "upgrade_outcome_recorded"
	TypeCacheSwept             = "cache_swept"
)

// LevelResolvedEvent is emitted on every thinking-level resolution.
type LevelResolvedEvent struct {
	BaseEvent
	TaskID       string `json:"task_id,omitempty"`
	Level        string `json:"level"`
	ResolvedFrom string `json:"resolved_from"`
	Model        string `json:"model,omitempty"`
}

// NewLevelResolvedEvent creates a new level resolved event.
func NewLevelResolvedEvent(taskID, level, resolvedFrom, model string) LevelResolvedEvent {
	return LevelResolvedEvent{
		BaseEvent:    NewBaseEvent(TypeLevelResolved),
		TaskID:       taskID,
		Level:        level,
		ResolvedFrom: resolvedFrom,
		Model:        model,
	}
}

// UpgradeRecommendedEvent is emitted when the escalation analyzer flags a task.
type UpgradeRecommendedEvent struct {
	BaseEvent
	TaskID            string   `json:"task_id"`
	SuggestedLevel    string   `json:"suggested_level"`
	SuggestHeavyModel bool     `json:"suggest_heavy_model"`
	Confidence        float64  `json:"confidence"`
	Reasons           []string `json:"reasons"`
}

// NewUpgradeRecommendedEvent creates a new upgrade recommended event.
func NewUpgradeRecommendedEvent(taskID, level string, heavy bool, confidence float64, reasons []string) UpgradeRecommendedEvent {
	return UpgradeRecommendedEvent{
		BaseEvent:         NewBaseEvent(TypeUpgradeRecommended),
		TaskID:            taskID,
		SuggestedLevel:    level,
		SuggestHeavyModel: heavy,
		Confidence:        confidence,
		Reasons:           reasons,
	}
}

// UpgradeOutcomeRecordedEvent attaches an execution outcome to a prior
// upgrade recommendation.
type UpgradeOutcomeRecordedEvent struct {
	BaseEvent
	TaskID     string `json:"task_id"`
	Successful bool   `json:"successful"`
}

// NewUpgradeOutcomeRecordedEvent creates a new upgrade outcome recorded event.
func NewUpgradeOutcomeRecordedEvent(taskID string, successful bool) UpgradeOutcomeRecordedEvent {
	return UpgradeOutcomeRecordedEvent{
		BaseEvent:  NewBaseEvent(TypeUpgradeOutcomeRecorded),
		TaskID:     taskID,
		Successful: successful,
	}
}

// CacheSweptEvent is emitted after a run-cache sweep pass.
type CacheSweptEvent struct {
	BaseEvent
	Evicted int `json:"evicted"`
}

// NewCacheSweptEvent creates a new cache swept event.
func NewCacheSweptEvent(evicted int) CacheSweptEvent {
	return CacheSweptEvent{
		BaseEvent: NewBaseEvent(TypeCacheSwept),
		Evicted:   evicted,
	}
}
