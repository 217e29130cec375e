package lane

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/askorupski/agentflow/internal/core"
	"github.com/askorupski/agentflow/internal/events"
	"github.com/askorupski/agentflow/internal/logging"
)

// DefaultWaitTimeout bounds a queued admission when the caller does not
// supply one.
const DefaultWaitTimeout = 30 * time.Second

// Scheduler admits agents into capacity-bounded priority lanes.
// It is safe for concurrent use. A single Scheduler instance is expected
// per process; construct one at startup and pass it by reference.
type Scheduler struct {
	mu    sync.Mutex
	lanes map[Name]*laneState

	bus    *events.EventBus
	logger *logging.Logger
	now    func() time.Time

	acquired     int64
	released     int64
	promoted     int64
	waitTimeouts int64
	drained      int64
}

type laneState struct {
	name      Name
	cfg       Config
	occupants map[string]*Occupant
	waiters   []*waiter
}

// waiter is a queued admission request. It resolves exactly once: either
// the drain path admits it or its timer expires, whichever locks first
// flips resolved and the loser becomes a no-op.
type waiter struct {
	agentID    string
	meta       Metadata
	enqueuedAt time.Time
	timer      *time.Timer
	done       chan waitOutcome
	resolved   bool
}

type waitOutcome struct {
	res WaitResult
	err error
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithLaneConfigs replaces the built-in lane set.
func WithLaneConfigs(cfgs map[Name]Config) Option {
	return func(s *Scheduler) {
		s.lanes = make(map[Name]*laneState, len(cfgs))
		for name, cfg := range cfgs {
			s.lanes[name] = &laneState{
				name:      name,
				cfg:       cfg,
				occupants: make(map[string]*Occupant),
			}
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// NewScheduler creates a scheduler with the default three lanes.
func NewScheduler(bus *events.EventBus, logger *logging.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Scheduler{
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
	WithLaneConfigs(DefaultConfigs())(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquire admits agentID into the lane. A repeat acquire for a lane the
// agent already holds is an idempotent success.
func (s *Scheduler) Acquire(lane Name, agentID string, meta Metadata) (AcquireResult, error) {
	s.mu.Lock()
	res, ev, err := s.acquireLocked(lane, agentID, meta)
	s.mu.Unlock()

	if err != nil {
		return AcquireResult{}, err
	}
	if ev != nil {
		s.publish(*ev)
		s.logger.WithLane(string(lane)).WithAgent(agentID).Debug("lane acquired",
			"occupancy", res.Occupancy)
	}
	return res, nil
}

// acquireLocked performs admission under the scheduler lock. The returned
// event, if any, must be published after the lock is dropped.
func (s *Scheduler) acquireLocked(lane Name, agentID string, meta Metadata) (AcquireResult, *events.LaneAcquiredEvent, error) {
	ls, ok := s.lanes[lane]
	if !ok {
		return AcquireResult{}, nil, core.ErrUnknownLane(string(lane))
	}

	if _, held := ls.occupants[agentID]; held {
		return AcquireResult{Lane: lane, AlreadyAcquired: true, Occupancy: len(ls.occupants)}, nil, nil
	}

	// An agent occupies at most one lane at a time.
	for _, other := range s.lanes {
		if other.name == lane {
			continue
		}
		if _, held := other.occupants[agentID]; held {
			return AcquireResult{}, nil, core.ErrAgentBusy(agentID, string(other.name))
		}
	}

	if len(ls.occupants) >= ls.cfg.MaxConcurrent {
		return AcquireResult{}, nil, core.ErrLaneCapacity(string(lane))
	}

	ls.occupants[agentID] = &Occupant{
		AgentID:   agentID,
		TaskID:    meta.TaskID,
		StartedAt: s.now(),
		Metadata:  meta,
	}
	s.acquired++

	ev := events.NewLaneAcquiredEvent(string(lane), agentID, meta.TaskID, len(ls.occupants))
	return AcquireResult{Lane: lane, Occupancy: len(ls.occupants)}, &ev, nil
}

// Release removes agentID from whichever lane it holds and drains that
// lane's waiting queue in FIFO order.
func (s *Scheduler) Release(agentID string) (ReleaseResult, error) {
	s.mu.Lock()

	var ls *laneState
	var occ *Occupant
	for _, candidate := range s.lanes {
		if o, held := candidate.occupants[agentID]; held {
			ls = candidate
			occ = o
			break
		}
	}
	if ls == nil {
		s.mu.Unlock()
		return ReleaseResult{}, core.ErrAgentNotInLane(agentID)
	}

	delete(ls.occupants, agentID)
	s.released++
	running := s.now().Sub(occ.StartedAt)

	drainEvents := s.drainLocked(ls)
	s.mu.Unlock()

	s.publish(events.NewLaneReleasedEvent(string(ls.name), agentID, occ.TaskID, running))
	for _, ev := range drainEvents {
		s.publish(ev)
	}
	s.logger.WithLane(string(ls.name)).WithAgent(agentID).Debug("lane released",
		"running_ms", running.Milliseconds())

	return ReleaseResult{Lane: ls.name, TaskID: occ.TaskID, Running: running}, nil
}

// drainLocked admits queued waiters while capacity remains. Each drained
// waiter's timer is stopped and its outcome delivered exactly once.
func (s *Scheduler) drainLocked(ls *laneState) []events.Event {
	var evs []events.Event
	for len(ls.occupants) < ls.cfg.MaxConcurrent && len(ls.waiters) > 0 {
		w := ls.waiters[0]
		ls.waiters = ls.waiters[1:]
		w.resolved = true
		w.timer.Stop()

		if _, held := ls.occupants[w.agentID]; held {
			w.done <- waitOutcome{res: WaitResult{
				AcquireResult: AcquireResult{Lane: ls.name, AlreadyAcquired: true, Occupancy: len(ls.occupants)},
				Waited:        s.now().Sub(w.enqueuedAt),
			}}
			continue
		}
		if busy := s.agentLaneLocked(w.agentID); busy != "" && busy != ls.name {
			w.done <- waitOutcome{err: core.ErrAgentBusy(w.agentID, string(busy))}
			continue
		}

		ls.occupants[w.agentID] = &Occupant{
			AgentID:   w.agentID,
			TaskID:    w.meta.TaskID,
			StartedAt: s.now(),
			Metadata:  w.meta,
		}
		s.acquired++
		s.drained++

		waited := s.now().Sub(w.enqueuedAt)
		w.done <- waitOutcome{res: WaitResult{
			AcquireResult: AcquireResult{Lane: ls.name, Occupancy: len(ls.occupants)},
			Waited:        waited,
		}}
		evs = append(evs, events.NewLaneAcquiredEvent(string(ls.name), w.agentID, w.meta.TaskID, len(ls.occupants)))
	}
	return evs
}

// WaitOptions configures WaitForLane.
type WaitOptions struct {
	Timeout  time.Duration
	Metadata Metadata
}

// WaitForLane attempts an immediate acquire and otherwise queues the agent
// FIFO until a release drains it in or the timeout fires. Cancellation of
// ctx removes the waiter; a cancellation that races an admission honors
// the admission.
func (s *Scheduler) WaitForLane(ctx context.Context, lane Name, agentID string, opts WaitOptions) (WaitResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	s.mu.Lock()
	res, ev, err := s.acquireLocked(lane, agentID, opts.Metadata)
	if err == nil {
		s.mu.Unlock()
		if ev != nil {
			s.publish(*ev)
		}
		return WaitResult{AcquireResult: res}, nil
	}
	if core.GetCode(err) != core.CodeLaneCapacity {
		s.mu.Unlock()
		return WaitResult{}, err
	}

	ls := s.lanes[lane]
	w := &waiter{
		agentID:    agentID,
		meta:       opts.Metadata,
		enqueuedAt: s.now(),
		done:       make(chan waitOutcome, 1),
	}
	w.timer = time.AfterFunc(timeout, func() { s.expireWaiter(ls, w) })
	ls.waiters = append(ls.waiters, w)
	s.mu.Unlock()

	s.logger.WithLane(string(lane)).WithAgent(agentID).Debug("queued for lane",
		"timeout_ms", timeout.Milliseconds())

	select {
	case out := <-w.done:
		return out.res, out.err
	case <-ctx.Done():
		if out, resolved := s.cancelWaiter(ls, w); resolved {
			return out.res, out.err
		}
		return WaitResult{}, ctx.Err()
	}
}

// expireWaiter is the timer path of the one-shot waiter resolution.
func (s *Scheduler) expireWaiter(ls *laneState, w *waiter) {
	s.mu.Lock()
	if w.resolved {
		s.mu.Unlock()
		return
	}
	w.resolved = true
	s.removeWaiterLocked(ls, w)
	s.waitTimeouts++
	waited := s.now().Sub(w.enqueuedAt)
	s.mu.Unlock()

	w.done <- waitOutcome{err: core.ErrLaneWaitTimeout(string(ls.name))}
	s.publish(events.NewLaneWaitTimeoutEvent(string(ls.name), w.agentID, waited))
}

// cancelWaiter removes a waiter on context cancellation. If the waiter was
// already resolved by a drain or timeout, the delivered outcome wins.
func (s *Scheduler) cancelWaiter(ls *laneState, w *waiter) (waitOutcome, bool) {
	s.mu.Lock()
	if w.resolved {
		s.mu.Unlock()
		return <-w.done, true
	}
	w.resolved = true
	w.timer.Stop()
	s.removeWaiterLocked(ls, w)
	s.mu.Unlock()
	return waitOutcome{}, false
}

func (s *Scheduler) removeWaiterLocked(ls *laneState, w *waiter) {
	for i, candidate := range ls.waiters {
		if candidate == w {
			ls.waiters = append(ls.waiters[:i], ls.waiters[i+1:]...)
			return
		}
	}
}

// PromoteResult reports a successful promotion.
type PromoteResult struct {
	From Name `json:"from"`
	To   Name `json:"to"`
}

// Promote moves agentID into a strictly more urgent lane with free
// capacity, then drains the vacated lane. Promotion is explicit: it is the
// only way an agent jumps ahead of lane semantics.
func (s *Scheduler) Promote(agentID string, target Name) (PromoteResult, error) {
	s.mu.Lock()

	var from *laneState
	var occ *Occupant
	for _, candidate := range s.lanes {
		if o, held := candidate.occupants[agentID]; held {
			from = candidate
			occ = o
			break
		}
	}
	if from == nil {
		s.mu.Unlock()
		return PromoteResult{}, core.ErrAgentNotInLane(agentID)
	}

	to, ok := s.lanes[target]
	if !ok {
		s.mu.Unlock()
		return PromoteResult{}, core.ErrUnknownLane(string(target))
	}
	if to.cfg.Priority >= from.cfg.Priority {
		s.mu.Unlock()
		return PromoteResult{}, core.ErrPromotionDenied("Target lane is not higher priority")
	}
	if len(to.occupants) >= to.cfg.MaxConcurrent {
		s.mu.Unlock()
		return PromoteResult{}, core.ErrPromotionDenied("Target lane at capacity")
	}

	delete(from.occupants, agentID)
	to.occupants[agentID] = occ
	s.promoted++

	drainEvents := s.drainLocked(from)
	s.mu.Unlock()

	s.publish(events.NewLanePromotedEvent(agentID, string(from.name), string(to.name)))
	for _, ev := range drainEvents {
		s.publish(ev)
	}
	s.logger.WithAgent(agentID).Info("agent promoted",
		"from", string(from.name), "to", string(to.name))

	return PromoteResult{From: from.name, To: to.name}, nil
}

// LaneStatus returns a point-in-time view of one lane.
func (s *Scheduler) LaneStatus(lane Name) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ls, ok := s.lanes[lane]
	if !ok {
		return Status{}, core.ErrUnknownLane(string(lane))
	}
	return s.statusLocked(ls), nil
}

func (s *Scheduler) statusLocked(ls *laneState) Status {
	occupants := make([]Occupant, 0, len(ls.occupants))
	for _, o := range ls.occupants {
		occupants = append(occupants, *o)
	}
	sort.Slice(occupants, func(i, j int) bool {
		return occupants[i].StartedAt.Before(occupants[j].StartedAt)
	})
	return Status{
		Lane:          ls.name,
		Priority:      ls.cfg.Priority,
		MaxConcurrent: ls.cfg.MaxConcurrent,
		Occupancy:     len(ls.occupants),
		Waiting:       len(ls.waiters),
		Occupants:     occupants,
	}
}

// AgentLane returns the lane an agent currently holds, if any.
func (s *Scheduler) AgentLane(agentID string) (Name, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lane := s.agentLaneLocked(agentID)
	return lane, lane != ""
}

func (s *Scheduler) agentLaneLocked(agentID string) Name {
	for _, ls := range s.lanes {
		if _, held := ls.occupants[agentID]; held {
			return ls.name
		}
	}
	return ""
}

// Stats returns aggregate scheduler counters and per-lane status.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	lanes := make(map[Name]Status, len(s.lanes))
	for name, ls := range s.lanes {
		lanes[name] = s.statusLocked(ls)
	}
	return Stats{
		Lanes:        lanes,
		Acquired:     s.acquired,
		Released:     s.released,
		Promoted:     s.promoted,
		WaitTimeouts: s.waitTimeouts,
		Drained:      s.drained,
	}
}

// ClearLane force-releases every occupant of a lane and returns how many
// were removed. The waiting queue is drained into the freed capacity.
func (s *Scheduler) ClearLane(lane Name) (int, error) {
	s.mu.Lock()

	ls, ok := s.lanes[lane]
	if !ok {
		s.mu.Unlock()
		return 0, core.ErrUnknownLane(string(lane))
	}

	released := len(ls.occupants)
	ls.occupants = make(map[string]*Occupant)
	s.released += int64(released)

	drainEvents := s.drainLocked(ls)
	s.mu.Unlock()

	s.publish(events.NewLaneClearedEvent(string(lane), released))
	for _, ev := range drainEvents {
		s.publish(ev)
	}
	s.logger.WithLane(string(lane)).Warn("lane force-cleared", "released", released)

	return released, nil
}

// UpdateLaneConfig live-adjusts a lane's capacity. A capacity increase
// immediately drains the waiting queue into the new slots.
func (s *Scheduler) UpdateLaneConfig(lane Name, maxConcurrent int) error {
	if maxConcurrent < 1 {
		return core.ErrValidation("INVALID_CAPACITY", "maxConcurrent must be at least 1").
			WithDetail("lane", string(lane))
	}

	s.mu.Lock()
	ls, ok := s.lanes[lane]
	if !ok {
		s.mu.Unlock()
		return core.ErrUnknownLane(string(lane))
	}

	previous := ls.cfg.MaxConcurrent
	ls.cfg.MaxConcurrent = maxConcurrent

	var drainEvents []events.Event
	if maxConcurrent > previous {
		drainEvents = s.drainLocked(ls)
	}
	s.mu.Unlock()

	s.publish(events.NewLaneReconfiguredEvent(string(lane), maxConcurrent))
	for _, ev := range drainEvents {
		s.publish(ev)
	}
	s.logger.WithLane(string(lane)).Info("lane capacity updated",
		"previous", previous, "max_concurrent", maxConcurrent)

	return nil
}

func (s *Scheduler) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}
