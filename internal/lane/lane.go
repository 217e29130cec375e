// Package lane implements the priority-lane concurrency scheduler.
//
// A lane is a named, capacity-bounded bucket. Agents acquire a slot before
// running a task, queue FIFO when the lane is full, and may be explicitly
// promoted into a more urgent lane. All state is process-local and
// ephemeral: nothing survives a restart.
package lane

import (
	"time"

	"github.com/askorupski/agentflow/internal/core"
)

// Name identifies a lane.
type Name string

// The three fixed lanes. Lower priority rank means more urgent.
const (
	Critical   Name = "critical"
	Standard   Name = "standard"
	Background Name = "background"
)

// Config describes a lane's identity and capacity.
type Config struct {
	MaxConcurrent int    `json:"max_concurrent"`
	Priority      int    `json:"priority"`
	Description   string `json:"description,omitempty"`
}

// DefaultConfigs returns the built-in lane set.
func DefaultConfigs() map[Name]Config {
	return map[Name]Config{
		Critical:   {MaxConcurrent: 1, Priority: 1, Description: "user-facing and urgent work"},
		Standard:   {MaxConcurrent: 3, Priority: 2, Description: "normal interactive tasks"},
		Background: {MaxConcurrent: 2, Priority: 3, Description: "deferred automation"},
	}
}

// Metadata is attached to an occupant or queued waiter.
type Metadata struct {
	TaskID string            `json:"task_id,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
}

// Occupant is an agent currently holding a lane slot.
type Occupant struct {
	AgentID   string    `json:"agent_id"`
	TaskID    string    `json:"task_id,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Metadata  Metadata  `json:"metadata,omitempty"`
}

// AcquireResult reports a successful admission.
type AcquireResult struct {
	Lane            Name `json:"lane"`
	AlreadyAcquired bool `json:"already_acquired,omitempty"`
	Occupancy       int  `json:"occupancy"`
}

// ReleaseResult reports a successful release.
type ReleaseResult struct {
	Lane    Name          `json:"lane"`
	TaskID  string        `json:"task_id,omitempty"`
	Running time.Duration `json:"running"`
}

// WaitResult reports the outcome of a queued admission.
type WaitResult struct {
	AcquireResult
	Waited time.Duration `json:"waited"`
}

// Status is a point-in-time view of one lane.
type Status struct {
	Lane          Name       `json:"lane"`
	Priority      int        `json:"priority"`
	MaxConcurrent int        `json:"max_concurrent"`
	Occupancy     int        `json:"occupancy"`
	Waiting       int        `json:"waiting"`
	Occupants     []Occupant `json:"occupants"`
}

// Stats aggregates scheduler counters across all lanes.
type Stats struct {
	Lanes        map[Name]Status `json:"lanes"`
	Acquired     int64           `json:"acquired"`
	Released     int64           `json:"released"`
	Promoted     int64           `json:"promoted"`
	WaitTimeouts int64           `json:"wait_timeouts"`
	Drained      int64           `json:"drained"`
}

// DetermineLane maps a lane name to a validated lane, defaulting to
// Standard for unknown names.
func DetermineLane(name string) Name {
	switch Name(name) {
	case Critical, Standard, Background:
		return Name(name)
	}
	return Standard
}

// DetermineLaneForTask maps a task to a lane by priority, falling back on
// task origin when no priority is set: user tasks run in the standard
// lane, generated tasks in the background lane.
func DetermineLaneForTask(task core.Task) Name {
	switch task.Priority {
	case core.PriorityUrgent, core.PriorityCritical:
		return Critical
	case core.PriorityHigh, core.PriorityMedium:
		return Standard
	case core.PriorityLow, core.PriorityIdle:
		return Background
	}
	if task.Metadata.IsUserTask {
		return Standard
	}
	return Background
}
