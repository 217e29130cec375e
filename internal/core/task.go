// Package core defines the domain types shared by the control plane
// components: tasks, agent and provider profiles, and the structured
// error taxonomy used for classification and recovery.
package core

// Priority is the urgency assigned to a task by its creator.
type Priority string

const (
	PriorityUrgent   Priority = "URGENT"
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
	PriorityIdle     Priority = "IDLE"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow, PriorityIdle:
		return true
	}
	return false
}

// TaskMetadata carries optional hints attached to a task by the
// surrounding system. Zero values mean "unset".
type TaskMetadata struct {
	// ThinkingLevel is an explicit effort-tier override. It wins over
	// every other resolution source when set to a valid level name.
	ThinkingLevel string `json:"thinking_level,omitempty"`

	// TaskType is a coarse task classification (format, test, refactor,
	// architect, ...) used for effort-tier lookup.
	TaskType string `json:"task_type,omitempty"`

	// IsUserTask marks tasks created interactively by a user, as opposed
	// to tasks generated by background automation.
	IsUserTask bool `json:"is_user_task,omitempty"`

	// Labels holds free-form key/value annotations propagated to lane
	// occupancy records and events.
	Labels map[string]string `json:"labels,omitempty"`
}

// Task is the unit of work admitted to the control plane. The task store
// and its persistence live outside this module; the control plane only
// reads these fields.
type Task struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Priority    Priority     `json:"priority,omitempty"`
	Metadata    TaskMetadata `json:"metadata,omitempty"`
}

// AgentProfile configures a single executing agent.
type AgentProfile struct {
	DefaultThinkingLevel string `json:"default_thinking_level,omitempty"`
}

// ProviderProfile configures the model provider backing an agent.
type ProviderProfile struct {
	DefaultModel         string `json:"default_model,omitempty"`
	HeavyModel           string `json:"heavy_model,omitempty"`
	DefaultThinkingLevel string `json:"default_thinking_level,omitempty"`
}
