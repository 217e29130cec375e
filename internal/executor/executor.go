// Package executor drives tasks through the control plane end to end:
// lane admission, effort-tier resolution, escalation checks, the run
// itself, and the recovery loop on failure. It is a reference pipeline;
// callers with their own run loop can use the subsystems directly.
package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/askorupski/agentflow/internal/core"
	"github.com/askorupski/agentflow/internal/escalate"
	"github.com/askorupski/agentflow/internal/lane"
	"github.com/askorupski/agentflow/internal/logging"
	"github.com/askorupski/agentflow/internal/recovery"
	"github.com/askorupski/agentflow/internal/runcache"
	"github.com/askorupski/agentflow/internal/thinking"
)

// Runner executes one task attempt. Implementations wrap the actual
// model or agent call; the executor never interprets the output.
type Runner interface {
	Run(ctx context.Context, task core.Task, opts RunOptions) (interface{}, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, task core.Task, opts RunOptions) (interface{}, error)

func (f RunnerFunc) Run(ctx context.Context, task core.Task, opts RunOptions) (interface{}, error) {
	return f(ctx, task, opts)
}

// RunOptions carries the per-attempt execution parameters decided by the
// resolver, the escalation analyzer, and the recovery engine.
type RunOptions struct {
	AttemptID     string
	Level         thinking.Level
	Model         string
	UseHeavyModel bool
	UseFallback   bool
	MaxChunkSize  int
}

// Disposition is the terminal state of one Execute call.
type Disposition string

const (
	DispositionCompleted   Disposition = "completed"
	DispositionSkipped     Disposition = "skipped"
	DispositionDeferred    Disposition = "deferred"
	DispositionManual      Disposition = "manual"
	DispositionInvestigate Disposition = "investigate"
)

// Result reports how a task run ended. Non-completed dispositions carry
// the last run error in Err; Execute itself only returns an error when
// the pipeline could not run the task at all (admission failure,
// cancelled context).
type Result struct {
	TaskID          string         `json:"task_id"`
	AttemptID       string         `json:"attempt_id"`
	Disposition     Disposition    `json:"disposition"`
	Output          interface{}    `json:"output,omitempty"`
	FromCache       bool           `json:"from_cache,omitempty"`
	Lane            lane.Name      `json:"lane,omitempty"`
	Level           thinking.Level `json:"level,omitempty"`
	Model           string         `json:"model,omitempty"`
	Attempts        int            `json:"attempts"`
	RescheduleAfter time.Duration  `json:"reschedule_after,omitempty"`
	Err             error          `json:"-"`
}

// Executor wires the control plane subsystems into a single run loop.
type Executor struct {
	scheduler *lane.Scheduler
	resolver  *thinking.Resolver
	analyzer  *escalate.Analyzer
	engine    *recovery.Engine
	cache     *runcache.Cache
	runner    Runner
	logger    *logging.Logger

	agent    core.AgentProfile
	provider core.ProviderProfile

	waitTimeout time.Duration
	cacheTTL    time.Duration
	maxParallel int
}

// Option configures the executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithProfiles sets the agent and provider profiles consulted during
// effort-tier resolution.
func WithProfiles(agent core.AgentProfile, provider core.ProviderProfile) Option {
	return func(e *Executor) {
		e.agent = agent
		e.provider = provider
	}
}

// WithWaitTimeout bounds how long a task queues for lane admission.
func WithWaitTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.waitTimeout = d
		}
	}
}

// WithCacheTTL sets the TTL for memoized task outputs.
func WithCacheTTL(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.cacheTTL = d
		}
	}
}

// WithMaxParallel bounds ExecuteAll's worker count.
func WithMaxParallel(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

// New creates an executor over the given subsystems and runner.
func New(
	scheduler *lane.Scheduler,
	resolver *thinking.Resolver,
	analyzer *escalate.Analyzer,
	engine *recovery.Engine,
	cache *runcache.Cache,
	runner Runner,
	opts ...Option,
) *Executor {
	e := &Executor{
		scheduler:   scheduler,
		resolver:    resolver,
		analyzer:    analyzer,
		engine:      engine,
		cache:       cache,
		runner:      runner,
		logger:      logging.NewNop(),
		waitTimeout: 2 * time.Minute,
		cacheTTL:    runcache.DefaultTTL,
		maxParallel: 4,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one task through the full pipeline. The returned Result's
// Disposition says how the run ended; an error means the task never ran.
func (e *Executor) Execute(ctx context.Context, task core.Task) (Result, error) {
	res := Result{TaskID: task.ID}

	if cached, ok := e.cache.GetOutput(task.ID); ok {
		res.Disposition = DispositionCompleted
		res.Output = cached
		res.FromCache = true
		return res, nil
	}

	agentID := "exec-" + uuid.NewString()
	target := lane.DetermineLaneForTask(task)

	_, err := e.scheduler.WaitForLane(ctx, target, agentID, lane.WaitOptions{
		Timeout:  e.waitTimeout,
		Metadata: lane.Metadata{TaskID: task.ID, Labels: task.Metadata.Labels},
	})
	if err != nil {
		return res, err
	}
	defer func() {
		if _, relErr := e.scheduler.Release(agentID); relErr != nil {
			e.logger.Warn("release after run failed", "agent_id", agentID, "error", relErr)
		}
	}()
	res.Lane = target

	resolution := e.resolver.Resolve(task, e.agent, e.provider)
	opts := RunOptions{
		Level: resolution.Level,
		Model: resolution.Model,
	}

	rec, aerr := e.analyzer.AnalyzeTaskNeedsUpgrade(ctx, task, escalate.Context{CurrentLevel: resolution.Level})
	if aerr != nil {
		return res, aerr
	}
	if rec.NeedsUpgrade {
		opts.Level = rec.SuggestedLevel
		opts.UseHeavyModel = rec.SuggestHeavyModel
		opts.Model = e.resolver.ModelForLevel(opts.Level, e.provider)
		e.logger.Info("pre-run upgrade applied",
			"task_id", task.ID,
			"level", opts.Level,
			"heavy_model", opts.UseHeavyModel,
			"reasons", rec.Reasons,
		)
	}

	return e.runWithRecovery(ctx, task, agentID, opts, res, rec.NeedsUpgrade)
}

// runWithRecovery owns the attempt loop. Every failed attempt is
// classified and the selected strategy either reruns in-place (retry,
// fallback, escalate, decompose) or ends the run with a non-completed
// disposition (defer, skip, investigate, manual).
func (e *Executor) runWithRecovery(ctx context.Context, task core.Task, agentID string, opts RunOptions, res Result, upgraded bool) (Result, error) {
	attemptKey := task.ID
	if attemptKey == "" {
		attemptKey = agentID
	}

	for {
		opts.AttemptID = uuid.NewString()
		res.AttemptID = opts.AttemptID
		res.Attempts++

		output, runErr := e.runner.Run(ctx, task, opts)
		if runErr == nil {
			e.engine.ResetAttempts(attemptKey)
			if upgraded {
				e.analyzer.RecordUpgradeOutcome(task.ID, true)
			}
			e.cache.CacheOutput(task.ID, output, e.cacheTTL)

			res.Disposition = DispositionCompleted
			res.Output = output
			res.Level = opts.Level
			res.Model = opts.Model
			return res, nil
		}

		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		e.engine.RecordAttempt(attemptKey)
		rctx := recovery.Context{TaskID: task.ID, AgentID: agentID}
		analysis := e.engine.AnalyzeError(runErr, rctx)
		decision := e.engine.SelectRecoveryStrategy(analysis, rctx)
		outcome := e.engine.ExecuteRecovery(decision.Strategy, task, runErr, decision.Params)

		e.logger.Info("recovery applied",
			"task_id", task.ID,
			"category", analysis.Category,
			"strategy", decision.Strategy,
			"action", outcome.Action,
			"attempt", res.Attempts,
		)

		res.Level = opts.Level
		res.Model = opts.Model
		res.Err = runErr

		switch {
		case outcome.RequiresManualIntervention:
			if upgraded {
				e.analyzer.RecordUpgradeOutcome(task.ID, false)
			}
			res.Disposition = DispositionManual
			return res, nil

		case outcome.Skipped:
			res.Disposition = DispositionSkipped
			return res, nil

		case outcome.CreateInvestigationTask:
			res.Disposition = DispositionInvestigate
			return res, nil

		case outcome.Action == "reschedule":
			res.Disposition = DispositionDeferred
			res.RescheduleAfter = outcome.RescheduleAfter
			return res, nil

		case outcome.Action == "retry_now":
			// Backoff before the rerun; the delay grows with the
			// attempt count.
			if decision.Params.Delay > 0 {
				if err := sleepCtx(ctx, decision.Params.Delay); err != nil {
					return res, err
				}
			}

		case outcome.UseHeavyModel:
			opts.UseHeavyModel = true
			opts.Level = thinking.Upgrade(opts.Level)
			opts.Model = e.resolver.ModelForLevel(opts.Level, e.provider)

		case outcome.UseFallback:
			opts.UseFallback = true

		case outcome.MaxChunkSize > 0:
			opts.MaxChunkSize = outcome.MaxChunkSize

		default:
			// Unknown action: treat as non-recoverable.
			res.Disposition = DispositionManual
			return res, nil
		}
	}
}

// ExecuteAll runs tasks through Execute with a bounded worker pool.
// Results are returned in task order. The first pipeline error cancels
// the remaining tasks.
func (e *Executor) ExecuteAll(ctx context.Context, tasks []core.Task) ([]Result, error) {
	results := make([]Result, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxParallel)

	for i, task := range tasks {
		g.Go(func() error {
			res, err := e.Execute(gctx, task)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
