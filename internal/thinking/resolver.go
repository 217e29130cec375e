package thinking

import (
	"sort"
	"sync"

	"github.com/askorupski/agentflow/internal/core"
	"github.com/askorupski/agentflow/internal/events"
	"github.com/askorupski/agentflow/internal/logging"
)

// Resolution names the level chosen for a task and the precedence tier it
// came from.
type Resolution struct {
	Level        Level  `json:"level"`
	ResolvedFrom string `json:"resolved_from"`
	Model        string `json:"model"`
}

// Precedence tier names recorded in Resolution.ResolvedFrom.
const (
	FromTask     = "task"
	FromPriority = "priority"
	FromTaskType = "taskType"
	FromAgent    = "agent"
	FromProvider = "provider"
	FromDefault  = "default"
)

// taskTypeLevels maps well-known task types to an effort tier. Unlisted
// types fall through to the next precedence tier.
var taskTypeLevels = map[string]Level{
	"format":    LevelMinimal,
	"cleanup":   LevelMinimal,
	"docs":      LevelLow,
	"summarize": LevelLow,
	"implement": LevelMedium,
	"test":      LevelMedium,
	"debug":     LevelHigh,
	"refactor":  LevelHigh,
	"review":    LevelHigh,
	"architect": LevelXHigh,
	"security":  LevelXHigh,
}

// threshold maps a numeric floor to the level granted at or above it.
type threshold struct {
	Min   float64
	Level Level
}

// ThresholdKind selects which suggestion table UpdateThresholds replaces.
type ThresholdKind string

const (
	ThresholdComplexity ThresholdKind = "complexity"
	ThresholdContext    ThresholdKind = "context"
)

func defaultComplexityThresholds() []threshold {
	return []threshold{
		{0.85, LevelXHigh},
		{0.7, LevelHigh},
		{0.5, LevelMedium},
		{0.3, LevelLow},
	}
}

func defaultContextThresholds() []threshold {
	return []threshold{
		{20000, LevelXHigh},
		{10000, LevelHigh},
		{4000, LevelMedium},
		{1000, LevelLow},
	}
}

// Stats reports resolver usage for telemetry.
type Stats struct {
	Total        int               `json:"total"`
	ByLevel      map[Level]int     `json:"by_level"`
	Distribution map[Level]float64 `json:"distribution"`
	ByOrigin     map[string]int    `json:"by_origin"`
}

// Resolver maps tasks to effort tiers and concrete model ids through a
// strict precedence chain. Safe for concurrent use.
type Resolver struct {
	mu                   sync.Mutex
	usage                map[Level]int
	origins              map[string]int
	complexityThresholds []threshold
	contextThresholds    []threshold

	bus    *events.EventBus
	logger *logging.Logger
}

// NewResolver creates a resolver with the default threshold tables.
func NewResolver(bus *events.EventBus, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{
		usage:                make(map[Level]int),
		origins:              make(map[string]int),
		complexityThresholds: defaultComplexityThresholds(),
		contextThresholds:    defaultContextThresholds(),
		bus:                  bus,
		logger:               logger,
	}
}

// Resolve picks a task's thinking level by precedence: explicit task
// metadata, then task priority, then task type, then agent default, then
// provider default, then the global medium. An invalid level at any tier
// resolves to medium from that tier.
func (r *Resolver) Resolve(task core.Task, agent core.AgentProfile, provider core.ProviderProfile) Resolution {
	level, from := r.resolveLevel(task, agent, provider)
	model := r.ModelForLevel(level, provider)

	r.mu.Lock()
	r.usage[level]++
	r.origins[from]++
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.Publish(events.NewLevelResolvedEvent(task.ID, string(level), from, model))
	}
	r.logger.WithTask(task.ID).Debug("thinking level resolved",
		"level", string(level), "from", from, "model", model)

	return Resolution{Level: level, ResolvedFrom: from, Model: model}
}

func (r *Resolver) resolveLevel(task core.Task, agent core.AgentProfile, provider core.ProviderProfile) (Level, string) {
	if raw := task.Metadata.ThinkingLevel; raw != "" {
		return normalize(Level(raw)), FromTask
	}

	switch task.Priority {
	case core.PriorityUrgent, core.PriorityCritical:
		return LevelHigh, FromPriority
	case core.PriorityLow, core.PriorityIdle:
		return LevelLow, FromPriority
	}

	if tt := task.Metadata.TaskType; tt != "" {
		if level, ok := taskTypeLevels[tt]; ok {
			return level, FromTaskType
		}
	}

	if raw := agent.DefaultThinkingLevel; raw != "" {
		return normalize(Level(raw)), FromAgent
	}

	if raw := provider.DefaultThinkingLevel; raw != "" {
		return normalize(Level(raw)), FromProvider
	}

	return DefaultLevel, FromDefault
}

// normalize guards against unknown level strings supplied by callers.
func normalize(l Level) Level {
	if !l.Valid() {
		return DefaultLevel
	}
	return l
}

// SuggestLevel returns the highest level whose complexity threshold the
// score meets, defaulting to minimal.
func (r *Resolver) SuggestLevel(complexity float64) Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	return scan(r.complexityThresholds, complexity)
}

// SuggestLevelFromContext returns the highest level whose context-length
// threshold the character count meets, defaulting to minimal.
func (r *Resolver) SuggestLevelFromContext(length int) Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	return scan(r.contextThresholds, float64(length))
}

func scan(table []threshold, value float64) Level {
	for _, t := range table {
		if value >= t.Min {
			return t.Level
		}
	}
	return LevelMinimal
}

// ModelForLevel maps a level's slot to a concrete model id, honoring
// provider overrides for the provider-backed slots.
func (r *Resolver) ModelForLevel(level Level, provider core.ProviderProfile) string {
	switch level.Slot() {
	case SlotLocalSmall:
		return "llama3.2:3b"
	case SlotLocalMedium:
		return "qwen2.5-coder:14b"
	case SlotProviderDefault:
		if provider.DefaultModel != "" {
			return provider.DefaultModel
		}
		return "sonnet"
	case SlotProviderHeavy:
		if provider.HeavyModel != "" {
			return provider.HeavyModel
		}
		return "opus"
	case SlotOpus:
		return "opus"
	}
	return ""
}

// UpdateThresholds replaces one suggestion table. The level→floor map is
// reordered descending internally; unknown levels are ignored.
func (r *Resolver) UpdateThresholds(kind ThresholdKind, floors map[Level]float64) {
	table := make([]threshold, 0, len(floors))
	for level, min := range floors {
		if !level.Valid() {
			continue
		}
		table = append(table, threshold{Min: min, Level: level})
	}
	sort.Slice(table, func(i, j int) bool { return table[i].Min > table[j].Min })

	r.mu.Lock()
	defer r.mu.Unlock()
	switch kind {
	case ThresholdComplexity:
		r.complexityThresholds = table
	case ThresholdContext:
		r.contextThresholds = table
	}
}

// GetStats reports usage counts and the percentage distribution by level.
func (r *Resolver) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{
		ByLevel:      make(map[Level]int, len(r.usage)),
		Distribution: make(map[Level]float64, len(r.usage)),
		ByOrigin:     make(map[string]int, len(r.origins)),
	}
	for level, n := range r.usage {
		stats.ByLevel[level] = n
		stats.Total += n
	}
	for origin, n := range r.origins {
		stats.ByOrigin[origin] = n
	}
	if stats.Total > 0 {
		for level, n := range stats.ByLevel {
			stats.Distribution[level] = float64(n) / float64(stats.Total) * 100
		}
	}
	return stats
}

// ResetStats clears usage telemetry.
func (r *Resolver) ResetStats() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage = make(map[Level]int)
	r.origins = make(map[string]int)
}
