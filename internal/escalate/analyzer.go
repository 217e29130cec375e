package escalate

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/askorupski/agentflow/internal/core"
	"github.com/askorupski/agentflow/internal/events"
	"github.com/askorupski/agentflow/internal/logging"
	"github.com/askorupski/agentflow/internal/thinking"
)

// Trigger thresholds. Each heuristic fires independently and accumulates
// a reason; confidence derives from how many fired.
const (
	ContextLengthThreshold      = 5000
	FileReferenceThreshold      = 3
	ComplexityThreshold         = 0.7
	ConsecutiveFailureThreshold = 2

	historyCap = 200
)

var (
	fileRefPattern = regexp.MustCompile(`[\w./-]+\.(?:go|js|ts|tsx|py|java|rs|c|cpp|h|rb|md|json|yaml|yml|toml|sql|sh|proto)\b`)
	keywordPattern = regexp.MustCompile(`(?i)\b(architect(?:ure)?|restructur\w*|redesign\w*|migrat\w*|overhaul\w*|rewrite\w*|refactor\w*)\b`)
)

// ComplexityAnalyzer scores task complexity in [0,1]. The production
// collaborator runs a local model; tests substitute a fixed scorer.
type ComplexityAnalyzer interface {
	AnalyzeComplexity(ctx context.Context, description string) (float64, error)
}

// Context carries execution history signals into an analysis.
type Context struct {
	ContextLength       int
	PreviousSuccess     *bool
	ConsecutiveFailures int
	CurrentLevel        thinking.Level
}

// Recommendation is the analyzer's verdict for one task.
type Recommendation struct {
	NeedsUpgrade      bool           `json:"needs_upgrade"`
	SuggestHeavyModel bool           `json:"suggest_heavy_model"`
	SuggestedLevel    thinking.Level `json:"suggested_level"`
	Reasons           []string       `json:"reasons"`
	Confidence        float64        `json:"confidence"`
}

// entry is one analysis in the rolling history.
type entry struct {
	taskID     string
	when       time.Time
	rec        Recommendation
	hasOutcome bool
	successful bool
}

// Stats summarizes analyzer activity.
type Stats struct {
	Analyses        int            `json:"analyses"`
	Recommendations int            `json:"recommendations"`
	OutcomesKnown   int            `json:"outcomes_known"`
	SuccessRate     float64        `json:"success_rate"`
	TopReasons      []ReasonCount  `json:"top_reasons"`
	ByReason        map[string]int `json:"-"`
}

// ReasonCount pairs a normalized trigger reason with its frequency.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// Analyzer combines content, complexity, and failure-history signals into
// upgrade recommendations. Safe for concurrent use.
type Analyzer struct {
	mu      sync.Mutex
	history []entry

	resolver   *thinking.Resolver
	complexity ComplexityAnalyzer
	bus        *events.EventBus
	logger     *logging.Logger
}

// NewAnalyzer creates an analyzer. A nil complexity collaborator disables
// the complexity trigger; the remaining heuristics still run.
func NewAnalyzer(resolver *thinking.Resolver, complexity ComplexityAnalyzer, bus *events.EventBus, logger *logging.Logger) *Analyzer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Analyzer{
		resolver:   resolver,
		complexity: complexity,
		bus:        bus,
		logger:     logger,
	}
}

// AnalyzeTaskNeedsUpgrade evaluates every trigger, consulting the external
// complexity collaborator, and records the recommendation in the rolling
// history.
func (a *Analyzer) AnalyzeTaskNeedsUpgrade(ctx context.Context, task core.Task, ec Context) (Recommendation, error) {
	rec := Recommendation{}
	var complexityLevel thinking.Level

	contextLen := ec.ContextLength
	if contextLen == 0 {
		contextLen = len(task.Description)
	}
	if contextLen > ContextLengthThreshold {
		rec.NeedsUpgrade = true
		rec.SuggestHeavyModel = true
		rec.Reasons = append(rec.Reasons, fmt.Sprintf("context length (%d chars) exceeds threshold", contextLen))
	}

	if n := len(fileRefPattern.FindAllString(task.Description, -1)); n >= FileReferenceThreshold {
		rec.NeedsUpgrade = true
		rec.Reasons = append(rec.Reasons, fmt.Sprintf("references %d files", n))
	}

	if a.complexity != nil {
		score, err := a.complexity.AnalyzeComplexity(ctx, task.Description)
		if err != nil {
			a.logger.WithTask(task.ID).Warn("complexity analysis failed", "error", err)
		} else {
			complexityLevel = a.resolver.SuggestLevel(score)
			if score > ComplexityThreshold {
				rec.NeedsUpgrade = true
				rec.SuggestHeavyModel = true
				rec.Reasons = append(rec.Reasons, fmt.Sprintf("complexity score (%.2f) exceeds threshold", score))
			}
		}
	}

	if keywordPattern.MatchString(task.Description) {
		rec.NeedsUpgrade = true
		rec.SuggestHeavyModel = true
		rec.Reasons = append(rec.Reasons, "architectural keywords detected")
	}

	if ec.PreviousSuccess != nil && !*ec.PreviousSuccess {
		rec.NeedsUpgrade = true
		rec.SuggestHeavyModel = true
		rec.Reasons = append(rec.Reasons, "previous attempt failed")
	}

	if ec.ConsecutiveFailures >= ConsecutiveFailureThreshold {
		rec.NeedsUpgrade = true
		rec.SuggestHeavyModel = true
		rec.Reasons = append(rec.Reasons, fmt.Sprintf("%d consecutive failures", ec.ConsecutiveFailures))
	}

	rec.Confidence = confidence(len(rec.Reasons))

	if rec.NeedsUpgrade {
		current := ec.CurrentLevel
		if current == "" {
			current = thinking.DefaultLevel
		}
		if complexityLevel != "" && complexityLevel.Above(current) {
			rec.SuggestedLevel = complexityLevel
		} else {
			rec.SuggestedLevel = thinking.Upgrade(current)
		}
	}

	a.record(task.ID, rec)

	// Recommendations feed the durable journal; they must not drop.
	if rec.NeedsUpgrade && a.bus != nil {
		a.bus.PublishPriority(events.NewUpgradeRecommendedEvent(task.ID, string(rec.SuggestedLevel),
			rec.SuggestHeavyModel, rec.Confidence, rec.Reasons))
	}
	a.logger.WithTask(task.ID).Debug("escalation analyzed",
		"needs_upgrade", rec.NeedsUpgrade,
		"confidence", rec.Confidence,
		"reasons", len(rec.Reasons))

	return rec, nil
}

// QuickCheckNeedsUpgrade runs the synchronous subset of the heuristics:
// content length, keywords, priority, and prior failure. It never consults
// the complexity collaborator and records nothing.
func (a *Analyzer) QuickCheckNeedsUpgrade(task core.Task, ec Context) Recommendation {
	rec := Recommendation{}

	contextLen := ec.ContextLength
	if contextLen == 0 {
		contextLen = len(task.Description)
	}
	if contextLen > ContextLengthThreshold {
		rec.NeedsUpgrade = true
		rec.SuggestHeavyModel = true
		rec.Reasons = append(rec.Reasons, fmt.Sprintf("context length (%d chars) exceeds threshold", contextLen))
	}

	if keywordPattern.MatchString(task.Description) {
		rec.NeedsUpgrade = true
		rec.SuggestHeavyModel = true
		rec.Reasons = append(rec.Reasons, "architectural keywords detected")
	}

	if task.Priority == core.PriorityUrgent || task.Priority == core.PriorityCritical {
		rec.NeedsUpgrade = true
		rec.Reasons = append(rec.Reasons, fmt.Sprintf("%s priority", strings.ToLower(string(task.Priority))))
	}

	if ec.PreviousSuccess != nil && !*ec.PreviousSuccess {
		rec.NeedsUpgrade = true
		rec.SuggestHeavyModel = true
		rec.Reasons = append(rec.Reasons, "previous attempt failed")
	}

	rec.Confidence = confidence(len(rec.Reasons))
	if rec.NeedsUpgrade {
		current := ec.CurrentLevel
		if current == "" {
			current = thinking.DefaultLevel
		}
		rec.SuggestedLevel = thinking.Upgrade(current)
	}
	return rec
}

// confidence maps the count of fired triggers to a confidence value.
func confidence(reasons int) float64 {
	switch {
	case reasons == 0:
		return 0
	case reasons == 1:
		return 0.6
	case reasons == 2:
		return 0.8
	default:
		return 0.95
	}
}

func (a *Analyzer) record(taskID string, rec Recommendation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, entry{taskID: taskID, when: time.Now(), rec: rec})
	if len(a.history) > historyCap {
		a.history = a.history[len(a.history)-historyCap:]
	}
}

// RecordUpgradeOutcome attaches an execution outcome to the most recent
// analysis of a task, for later success-rate statistics.
func (a *Analyzer) RecordUpgradeOutcome(taskID string, successful bool) bool {
	a.mu.Lock()
	found := false
	for i := len(a.history) - 1; i >= 0; i-- {
		if a.history[i].taskID == taskID {
			a.history[i].hasOutcome = true
			a.history[i].successful = successful
			found = true
			break
		}
	}
	a.mu.Unlock()

	if found && a.bus != nil {
		a.bus.Publish(events.NewUpgradeOutcomeRecordedEvent(taskID, successful))
	}
	return found
}

// GetStats reports recommendation counts, the success rate among upgraded
// tasks with known outcomes, and the most common trigger reasons. Reason
// text is normalized by cutting at its first parenthetical so variable
// payloads collapse into one bucket.
func (a *Analyzer) GetStats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := Stats{ByReason: make(map[string]int)}
	successes := 0
	for _, e := range a.history {
		stats.Analyses++
		if !e.rec.NeedsUpgrade {
			continue
		}
		stats.Recommendations++
		if e.hasOutcome {
			stats.OutcomesKnown++
			if e.successful {
				successes++
			}
		}
		for _, reason := range e.rec.Reasons {
			stats.ByReason[normalizeReason(reason)]++
		}
	}
	if stats.OutcomesKnown > 0 {
		stats.SuccessRate = float64(successes) / float64(stats.OutcomesKnown)
	}

	for reason, count := range stats.ByReason {
		stats.TopReasons = append(stats.TopReasons, ReasonCount{Reason: reason, Count: count})
	}
	sort.Slice(stats.TopReasons, func(i, j int) bool {
		if stats.TopReasons[i].Count != stats.TopReasons[j].Count {
			return stats.TopReasons[i].Count > stats.TopReasons[j].Count
		}
		return stats.TopReasons[i].Reason < stats.TopReasons[j].Reason
	})
	return stats
}

// normalizeReason cuts a reason at its first parenthetical.
func normalizeReason(reason string) string {
	if i := strings.Index(reason, "("); i > 0 {
		return strings.TrimSpace(reason[:i])
	}
	return reason
}
