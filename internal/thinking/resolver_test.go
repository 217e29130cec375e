package thinking

import (
	"testing"

	"github.com/askorupski/agentflow/internal/core"
)

func TestResolve_Precedence(t *testing.T) {
	r := NewResolver(nil, nil)

	tests := []struct {
		name     string
		task     core.Task
		agent    core.AgentProfile
		provider core.ProviderProfile
		level    Level
		from     string
	}{
		{
			name:  "explicit metadata wins over priority",
			task:  core.Task{Priority: core.PriorityCritical, Metadata: core.TaskMetadata{ThinkingLevel: "low"}},
			level: LevelLow,
			from:  FromTask,
		},
		{
			name:  "critical priority resolves high",
			task:  core.Task{Priority: core.PriorityCritical},
			level: LevelHigh,
			from:  FromPriority,
		},
		{
			name:  "urgent priority resolves high",
			task:  core.Task{Priority: core.PriorityUrgent},
			level: LevelHigh,
			from:  FromPriority,
		},
		{
			name:  "idle priority resolves low",
			task:  core.Task{Priority: core.PriorityIdle},
			level: LevelLow,
			from:  FromPriority,
		},
		{
			name:  "format task type resolves minimal",
			task:  core.Task{Metadata: core.TaskMetadata{TaskType: "format"}},
			level: LevelMinimal,
			from:  FromTaskType,
		},
		{
			name:  "architect task type resolves xhigh",
			task:  core.Task{Metadata: core.TaskMetadata{TaskType: "architect"}},
			level: LevelXHigh,
			from:  FromTaskType,
		},
		{
			name:  "unknown task type falls through to agent",
			task:  core.Task{Metadata: core.TaskMetadata{TaskType: "mystery"}},
			agent: core.AgentProfile{DefaultThinkingLevel: "high"},
			level: LevelHigh,
			from:  FromAgent,
		},
		{
			name:     "provider default when nothing else set",
			task:     core.Task{},
			provider: core.ProviderProfile{DefaultThinkingLevel: "low"},
			level:    LevelLow,
			from:     FromProvider,
		},
		{
			name:  "global default",
			task:  core.Task{},
			level: LevelMedium,
			from:  FromDefault,
		},
		{
			name:  "invalid metadata level falls back to medium",
			task:  core.Task{Metadata: core.TaskMetadata{ThinkingLevel: "turbo"}},
			level: LevelMedium,
			from:  FromTask,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(tt.task, tt.agent, tt.provider)
			if res.Level != tt.level || res.ResolvedFrom != tt.from {
				t.Errorf("got {%s %s}, want {%s %s}", res.Level, res.ResolvedFrom, tt.level, tt.from)
			}
		})
	}
}

func TestUpgradeDowngrade_Clamped(t *testing.T) {
	if got := Upgrade(LevelXHigh); got != LevelXHigh {
		t.Errorf("Upgrade(xhigh) = %s", got)
	}
	if got := Downgrade(LevelOff); got != LevelOff {
		t.Errorf("Downgrade(off) = %s", got)
	}
	if got := Upgrade(LevelMedium); got != LevelHigh {
		t.Errorf("Upgrade(medium) = %s", got)
	}
	if got := Downgrade(LevelMedium); got != LevelLow {
		t.Errorf("Downgrade(medium) = %s", got)
	}
}

func TestSuggestLevel(t *testing.T) {
	r := NewResolver(nil, nil)

	tests := []struct {
		score float64
		want  Level
	}{
		{0.9, LevelXHigh},
		{0.85, LevelXHigh},
		{0.75, LevelHigh},
		{0.5, LevelMedium},
		{0.35, LevelLow},
		{0.1, LevelMinimal},
	}
	for _, tt := range tests {
		if got := r.SuggestLevel(tt.score); got != tt.want {
			t.Errorf("SuggestLevel(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestSuggestLevelFromContext(t *testing.T) {
	r := NewResolver(nil, nil)

	tests := []struct {
		length int
		want   Level
	}{
		{25000, LevelXHigh},
		{12000, LevelHigh},
		{5000, LevelMedium},
		{1500, LevelLow},
		{200, LevelMinimal},
	}
	for _, tt := range tests {
		if got := r.SuggestLevelFromContext(tt.length); got != tt.want {
			t.Errorf("SuggestLevelFromContext(%d) = %s, want %s", tt.length, got, tt.want)
		}
	}
}

func TestModelForLevel(t *testing.T) {
	r := NewResolver(nil, nil)

	if got := r.ModelForLevel(LevelMedium, core.ProviderProfile{}); got != "sonnet" {
		t.Errorf("medium default model = %s", got)
	}
	if got := r.ModelForLevel(LevelMedium, core.ProviderProfile{DefaultModel: "gpt-5"}); got != "gpt-5" {
		t.Errorf("provider default override = %s", got)
	}
	if got := r.ModelForLevel(LevelHigh, core.ProviderProfile{HeavyModel: "gemini-ultra"}); got != "gemini-ultra" {
		t.Errorf("provider heavy override = %s", got)
	}
	if got := r.ModelForLevel(LevelXHigh, core.ProviderProfile{HeavyModel: "ignored"}); got != "opus" {
		t.Errorf("opus slot = %s", got)
	}
	if got := r.ModelForLevel(LevelMinimal, core.ProviderProfile{}); got == "" {
		t.Error("local slot should map to a concrete local target")
	}
	if got := r.ModelForLevel(LevelOff, core.ProviderProfile{}); got != "" {
		t.Errorf("off slot = %q, want empty", got)
	}
}

func TestLocalPreferred(t *testing.T) {
	for _, l := range Levels() {
		want := l == LevelMinimal || l == LevelLow
		if got := l.LocalPreferred(); got != want {
			t.Errorf("%s.LocalPreferred() = %v, want %v", l, got, want)
		}
	}
}

func TestStatsAndReset(t *testing.T) {
	r := NewResolver(nil, nil)

	r.Resolve(core.Task{Priority: core.PriorityCritical}, core.AgentProfile{}, core.ProviderProfile{})
	r.Resolve(core.Task{}, core.AgentProfile{}, core.ProviderProfile{})
	r.Resolve(core.Task{}, core.AgentProfile{}, core.ProviderProfile{})

	stats := r.GetStats()
	if stats.Total != 3 {
		t.Errorf("total = %d", stats.Total)
	}
	if stats.ByLevel[LevelHigh] != 1 || stats.ByLevel[LevelMedium] != 2 {
		t.Errorf("by level = %v", stats.ByLevel)
	}
	if stats.ByOrigin[FromPriority] != 1 || stats.ByOrigin[FromDefault] != 2 {
		t.Errorf("by origin = %v", stats.ByOrigin)
	}
	if pct := stats.Distribution[LevelMedium]; pct < 66 || pct > 67 {
		t.Errorf("medium distribution = %f", pct)
	}

	r.ResetStats()
	if r.GetStats().Total != 0 {
		t.Error("stats not reset")
	}
}

func TestUpdateThresholds(t *testing.T) {
	r := NewResolver(nil, nil)

	r.UpdateThresholds(ThresholdComplexity, map[Level]float64{
		LevelXHigh: 0.5,
		LevelLow:   0.1,
	})
	if got := r.SuggestLevel(0.6); got != LevelXHigh {
		t.Errorf("after update SuggestLevel(0.6) = %s", got)
	}
	if got := r.SuggestLevel(0.2); got != LevelLow {
		t.Errorf("after update SuggestLevel(0.2) = %s", got)
	}
	if got := r.SuggestLevel(0.05); got != LevelMinimal {
		t.Errorf("after update SuggestLevel(0.05) = %s", got)
	}

	// Context table untouched.
	if got := r.SuggestLevelFromContext(25000); got != LevelXHigh {
		t.Errorf("context table changed: %s", got)
	}
}
