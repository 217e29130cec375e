package recovery

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/askorupski/agentflow/internal/core"
	"github.com/askorupski/agentflow/internal/events"
	"github.com/askorupski/agentflow/internal/logging"
)

const (
	// DefaultMaxAttempts is the per-key ceiling before recovery is forced
	// to manual intervention.
	DefaultMaxAttempts = 3

	// DefaultCooldown seeds the retry backoff when the matched rule
	// carries no cooldown of its own.
	DefaultCooldown = time.Second

	// DefaultMaxBackoff caps the exponential retry delay.
	DefaultMaxBackoff = 2 * time.Minute

	// DefaultMaxChunkSize is the suggested chunk bound for decomposition.
	DefaultMaxChunkSize = 4000

	// DefaultHistoryLimit bounds the in-memory execution log.
	DefaultHistoryLimit = 500

	maxMessageLen = 500
)

// Context carries caller-supplied correlation data through analysis and
// strategy selection. TaskID keys the attempt counter; AgentID is carried
// for observability only.
type Context struct {
	TaskID  string
	AgentID string
}

// key returns the attempt-counter key for this context.
func (c Context) key() string {
	if c.TaskID != "" {
		return c.TaskID
	}
	if c.AgentID != "" {
		return c.AgentID
	}
	return "global"
}

// Analysis is the classification of a single failure. Derived, never
// persisted.
type Analysis struct {
	Category            core.ErrorCategory
	Message             string
	Severity            Severity
	SuggestedStrategies []Strategy
	Recoverable         bool
	Cooldown            time.Duration
	Context             Context
}

// Params carries strategy-specific parameters from selection to execution.
type Params struct {
	Delay                 time.Duration
	SuggestHeavyModel     bool
	SuggestSmallerContext bool
	MaxChunkSize          int
}

// Decision is a selected recovery strategy with its parameters.
type Decision struct {
	Strategy Strategy
	Params   Params
	Reason   string
}

// Outcome is the structured result of executing a recovery strategy.
type Outcome struct {
	Success                    bool          `json:"success"`
	Action                     string        `json:"action"`
	RescheduleAfter            time.Duration `json:"reschedule_after,omitempty"`
	UseFallback                bool          `json:"use_fallback,omitempty"`
	UseHeavyModel              bool          `json:"use_heavy_model,omitempty"`
	MaxChunkSize               int           `json:"max_chunk_size,omitempty"`
	CreateInvestigationTask    bool          `json:"create_investigation_task,omitempty"`
	Skipped                    bool          `json:"skipped,omitempty"`
	RequiresManualIntervention bool          `json:"requires_manual_intervention,omitempty"`
}

// Record is one entry in the bounded execution history.
type Record struct {
	Time     time.Time `json:"time"`
	TaskID   string    `json:"task_id,omitempty"`
	Category string    `json:"category,omitempty"`
	Strategy Strategy  `json:"strategy"`
	Action   string    `json:"action"`
	Success  bool      `json:"success"`
}

// Stats aggregates the execution history.
type Stats struct {
	Total       int              `json:"total"`
	Successes   int              `json:"successes"`
	SuccessRate float64          `json:"success_rate"`
	ByStrategy  map[Strategy]int `json:"by_strategy"`
	Attempts    int              `json:"tracked_attempt_keys"`
}

// HistoryFilter narrows a history query.
type HistoryFilter struct {
	Strategy Strategy
	Limit    int
}

// Engine classifies failures, selects recovery strategies, and tracks
// per-key attempt counts. Safe for concurrent use.
type Engine struct {
	mu         sync.Mutex
	classifier Classifier
	attempts   map[string]int
	history    []Record

	maxAttempts  int
	maxBackoff   time.Duration
	historyLimit int

	bus    *events.EventBus
	logger *logging.Logger
	now    func() time.Time
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithClassifier replaces the built-in pattern classifier.
func WithClassifier(c Classifier) EngineOption {
	return func(e *Engine) { e.classifier = c }
}

// WithMaxAttempts overrides the per-key attempt ceiling.
func WithMaxAttempts(n int) EngineOption {
	return func(e *Engine) { e.maxAttempts = n }
}

// WithMaxBackoff overrides the retry backoff cap.
func WithMaxBackoff(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.maxBackoff = d
		}
	}
}

// WithHistoryLimit overrides the bounded history size.
func WithHistoryLimit(n int) EngineOption {
	return func(e *Engine) { e.historyLimit = n }
}

// WithEngineClock overrides the time source, for tests.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a recovery engine with the default rule table.
func NewEngine(bus *events.EventBus, logger *logging.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Engine{
		classifier:   NewPatternClassifier(DefaultRules()),
		attempts:     make(map[string]int),
		maxAttempts:  DefaultMaxAttempts,
		maxBackoff:   DefaultMaxBackoff,
		historyLimit: DefaultHistoryLimit,
		bus:          bus,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AnalyzeError classifies a failure into a category with ordered strategy
// suggestions. The message is truncated and the context attached verbatim
// for downstream correlation.
func (e *Engine) AnalyzeError(err error, ctx Context) Analysis {
	rule := e.classifier.Classify(err)

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen]
	}

	return Analysis{
		Category:            rule.Category,
		Message:             msg,
		Severity:            rule.Severity,
		SuggestedStrategies: rule.Strategies,
		Recoverable:         true,
		Cooldown:            rule.Cooldown,
		Context:             ctx,
	}
}

// SelectRecoveryStrategy picks the analysis's first suggested strategy
// unless the context key has exhausted its attempts, in which case MANUAL
// is forced regardless of the analysis.
func (e *Engine) SelectRecoveryStrategy(analysis Analysis, ctx Context) Decision {
	key := ctx.key()

	e.mu.Lock()
	attempts := e.attempts[key]
	e.mu.Unlock()

	if attempts >= e.maxAttempts {
		decision := Decision{
			Strategy: StrategyManual,
			Reason:   fmt.Sprintf("Maximum recovery attempts reached (%d)", e.maxAttempts),
		}
		e.publish(events.NewAttemptsExhaustedEvent(key, attempts))
		e.publish(events.NewRecoverySelectedEvent(ctx.TaskID, ctx.AgentID,
			string(analysis.Category), string(decision.Strategy), decision.Reason, attempts))
		e.logger.WithTask(ctx.TaskID).Warn("recovery attempts exhausted",
			"key", key, "attempts", attempts)
		return decision
	}

	strategy := StrategyRetry
	if len(analysis.SuggestedStrategies) > 0 {
		strategy = analysis.SuggestedStrategies[0]
	}

	cooldown := analysis.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	decision := Decision{
		Strategy: strategy,
		Reason:   fmt.Sprintf("%s failure: %s suggested", analysis.Category, strategy),
	}

	switch strategy {
	case StrategyRetry:
		decision.Params.Delay = e.backoff(cooldown, attempts)
	case StrategyDefer:
		decision.Params.Delay = cooldown
	case StrategyEscalate:
		decision.Params.SuggestHeavyModel = true
	case StrategyDecompose:
		decision.Params.SuggestSmallerContext = true
		decision.Params.MaxChunkSize = DefaultMaxChunkSize
	}

	e.publish(events.NewRecoverySelectedEvent(ctx.TaskID, ctx.AgentID,
		string(analysis.Category), string(strategy), decision.Reason, attempts))
	e.logger.WithTask(ctx.TaskID).Debug("recovery strategy selected",
		"category", string(analysis.Category),
		"strategy", string(strategy),
		"attempt", attempts)

	return decision
}

// backoff computes cooldown * 2^attempts, capped. Strictly increasing in
// the attempt count until the cap is hit.
func (e *Engine) backoff(cooldown time.Duration, attempts int) time.Duration {
	delay := float64(cooldown) * math.Pow(2, float64(attempts))
	if delay > float64(e.maxBackoff) {
		delay = float64(e.maxBackoff)
	}
	return time.Duration(delay)
}

// ExecuteRecovery dispatches a strategy into a structured outcome and
// appends it to the bounded history log. It performs no I/O; side effects
// are the caller's to apply.
func (e *Engine) ExecuteRecovery(strategy Strategy, task core.Task, cause error, params Params) Outcome {
	var out Outcome

	switch strategy {
	case StrategyRetry:
		out = Outcome{Success: true, Action: "retry_now"}
	case StrategyDefer:
		out = Outcome{Success: true, Action: "reschedule", RescheduleAfter: params.Delay}
	case StrategyFallback:
		out = Outcome{Success: true, Action: "use_fallback", UseFallback: true}
	case StrategyEscalate:
		out = Outcome{Success: true, Action: "escalate_model", UseHeavyModel: true}
	case StrategyDecompose:
		out = Outcome{Success: true, Action: "decompose_task", MaxChunkSize: params.MaxChunkSize}
	case StrategyInvestigate:
		out = Outcome{Success: true, Action: "create_investigation", CreateInvestigationTask: true}
	case StrategySkip:
		out = Outcome{Success: true, Action: "skip_task", Skipped: true}
	case StrategyManual:
		out = Outcome{Success: false, Action: "require_manual", RequiresManualIntervention: true}
	default:
		out = Outcome{Success: false, Action: "unknown_strategy"}
	}

	category := ""
	if cause != nil {
		category = string(core.GetCategory(cause))
	}

	e.mu.Lock()
	e.history = append(e.history, Record{
		Time:     e.now(),
		TaskID:   task.ID,
		Category: category,
		Strategy: strategy,
		Action:   out.Action,
		Success:  out.Success,
	})
	if len(e.history) > e.historyLimit {
		e.history = e.history[len(e.history)-e.historyLimit:]
	}
	e.mu.Unlock()

	// Executed outcomes feed the durable journal; they must not drop.
	if e.bus != nil {
		e.bus.PublishPriority(events.NewRecoveryExecutedEvent(task.ID, string(strategy), out.Action, out.Success))
	}
	e.logger.WithTask(task.ID).Info("recovery executed",
		"strategy", string(strategy), "action", out.Action, "success", out.Success)

	return out
}

// RecordAttempt increments the counter for a key and returns the new count.
func (e *Engine) RecordAttempt(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts[key]++
	return e.attempts[key]
}

// AttemptCount returns the current count for a key.
func (e *Engine) AttemptCount(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts[key]
}

// ResetAttempts clears the counter for one key.
func (e *Engine) ResetAttempts(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.attempts, key)
}

// ClearAllAttempts clears every counter.
func (e *Engine) ClearAllAttempts() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts = make(map[string]int)
}

// GetStats aggregates success rate and per-strategy counts from history.
func (e *Engine) GetStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Stats{
		Total:      len(e.history),
		ByStrategy: make(map[Strategy]int),
		Attempts:   len(e.attempts),
	}
	for _, rec := range e.history {
		stats.ByStrategy[rec.Strategy]++
		if rec.Success {
			stats.Successes++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successes) / float64(stats.Total)
	}
	return stats
}

// GetHistory returns execution records, newest last, optionally filtered by
// strategy and bounded by a result limit.
func (e *Engine) GetHistory(filter HistoryFilter) []Record {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Record
	for _, rec := range e.history {
		if filter.Strategy != "" && rec.Strategy != filter.Strategy {
			continue
		}
		out = append(out, rec)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out
}

func (e *Engine) publish(ev events.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}
