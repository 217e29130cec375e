package lane

import (
	"context"
	"testing"
	"time"

	"github.com/askorupski/agentflow/internal/core"
	"github.com/askorupski/agentflow/internal/events"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	return NewScheduler(nil, nil)
}

func TestDetermineLane(t *testing.T) {
	tests := []struct {
		name string
		want Name
	}{
		{"critical", Critical},
		{"standard", Standard},
		{"background", Background},
		{"bogus", Standard},
		{"", Standard},
	}
	for _, tt := range tests {
		if got := DetermineLane(tt.name); got != tt.want {
			t.Errorf("DetermineLane(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestDetermineLaneForTask(t *testing.T) {
	tests := []struct {
		name string
		task core.Task
		want Name
	}{
		{"urgent", core.Task{Priority: core.PriorityUrgent}, Critical},
		{"critical", core.Task{Priority: core.PriorityCritical}, Critical},
		{"high", core.Task{Priority: core.PriorityHigh}, Standard},
		{"medium", core.Task{Priority: core.PriorityMedium}, Standard},
		{"low", core.Task{Priority: core.PriorityLow}, Background},
		{"idle", core.Task{Priority: core.PriorityIdle}, Background},
		{"user task without priority", core.Task{Metadata: core.TaskMetadata{IsUserTask: true}}, Standard},
		{"generated task without priority", core.Task{}, Background},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineLaneForTask(tt.task); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAcquire_CapacityEnforced(t *testing.T) {
	s := newTestScheduler(t)

	if _, err := s.Acquire(Critical, "a1", Metadata{TaskID: "t1"}); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	_, err := s.Acquire(Critical, "a2", Metadata{})
	if err == nil {
		t.Fatal("expected capacity error")
	}
	var domErr *core.DomainError
	if !asDomainError(err, &domErr) || domErr.Message != "Lane at capacity" {
		t.Errorf("expected 'Lane at capacity', got %v", err)
	}
}

func TestAcquire_Idempotent(t *testing.T) {
	s := newTestScheduler(t)

	if _, err := s.Acquire(Critical, "a1", Metadata{}); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	res, err := s.Acquire(Critical, "a1", Metadata{})
	if err != nil {
		t.Fatalf("repeat acquire: %v", err)
	}
	if !res.AlreadyAcquired {
		t.Error("expected AlreadyAcquired on repeat acquire")
	}
	if res.Occupancy != 1 {
		t.Errorf("occupancy double-counted: got %d, want 1", res.Occupancy)
	}
}

func TestAcquire_AgentInSingleLaneOnly(t *testing.T) {
	s := newTestScheduler(t)

	if _, err := s.Acquire(Standard, "a1", Metadata{}); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := s.Acquire(Background, "a1", Metadata{}); err == nil {
		t.Error("agent must not occupy two lanes simultaneously")
	}
}

func TestAcquire_UnknownLane(t *testing.T) {
	s := newTestScheduler(t)
	if _, err := s.Acquire("vip", "a1", Metadata{}); core.GetCode(err) != core.CodeUnknownLane {
		t.Errorf("expected unknown lane error, got %v", err)
	}
}

func TestRelease_NotFound(t *testing.T) {
	s := newTestScheduler(t)
	_, err := s.Release("ghost")
	var domErr *core.DomainError
	if !asDomainError(err, &domErr) || domErr.Message != "Agent not in any lane" {
		t.Errorf("expected 'Agent not in any lane', got %v", err)
	}
}

func TestRelease_ReportsRunningTime(t *testing.T) {
	current := time.Unix(1000, 0)
	s := NewScheduler(nil, nil, WithClock(func() time.Time { return current }))

	if _, err := s.Acquire(Standard, "a1", Metadata{TaskID: "t1"}); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	current = current.Add(1500 * time.Millisecond)

	res, err := s.Release("a1")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if res.Running != 1500*time.Millisecond {
		t.Errorf("running = %v, want 1.5s", res.Running)
	}
	if res.Lane != Standard {
		t.Errorf("lane = %s, want standard", res.Lane)
	}
}

func TestWaitForLane_Timeout(t *testing.T) {
	s := newTestScheduler(t)

	if _, err := s.Acquire(Critical, "a1", Metadata{}); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	start := time.Now()
	_, err := s.WaitForLane(context.Background(), Critical, "a2", WaitOptions{Timeout: 100 * time.Millisecond})
	elapsed := time.Since(start)

	var domErr *core.DomainError
	if !asDomainError(err, &domErr) || domErr.Message != "Lane wait timeout" {
		t.Fatalf("expected 'Lane wait timeout', got %v", err)
	}
	if elapsed < 80*time.Millisecond || elapsed > 500*time.Millisecond {
		t.Errorf("timeout fired after %v, want ~100ms", elapsed)
	}
}

func TestWaitForLane_DrainedByRelease(t *testing.T) {
	s := newTestScheduler(t)

	if _, err := s.Acquire(Critical, "a1", Metadata{}); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		res, err := s.WaitForLane(context.Background(), Critical, "a2", WaitOptions{Timeout: time.Second})
		if err == nil && res.Lane != Critical {
			t.Errorf("drained into lane %s, want critical", res.Lane)
		}
		done <- err
	}()

	// Give the waiter time to enqueue, then free the slot.
	time.Sleep(20 * time.Millisecond)
	if _, err := s.Release("a1"); err != nil {
		t.Fatalf("release: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waiter should have been admitted: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never resolved")
	}

	if got, _ := s.AgentLane("a2"); got != Critical {
		t.Errorf("a2 should hold critical, got %q", got)
	}
}

func TestWaitForLane_FIFOOrder(t *testing.T) {
	s := newTestScheduler(t)

	if _, err := s.Acquire(Critical, "holder", Metadata{}); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	order := make(chan string, 2)
	startWaiter := func(agent string) {
		go func() {
			if _, err := s.WaitForLane(context.Background(), Critical, agent, WaitOptions{Timeout: 2 * time.Second}); err == nil {
				order <- agent
			}
		}()
	}

	startWaiter("first")
	time.Sleep(20 * time.Millisecond) // Ensure enqueue order
	startWaiter("second")
	time.Sleep(20 * time.Millisecond)

	if _, err := s.Release("holder"); err != nil {
		t.Fatalf("release holder: %v", err)
	}
	admitted := <-order
	if admitted != "first" {
		t.Fatalf("FIFO violated: %s admitted first", admitted)
	}

	if _, err := s.Release("first"); err != nil {
		t.Fatalf("release first: %v", err)
	}
	if admitted := <-order; admitted != "second" {
		t.Fatalf("FIFO violated: %s admitted second", admitted)
	}
}

func TestWaitForLane_ContextCancel(t *testing.T) {
	s := newTestScheduler(t)

	if _, err := s.Acquire(Critical, "a1", Metadata{}); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.WaitForLane(ctx, Critical, "a2", WaitOptions{Timeout: 5 * time.Second})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter never returned")
	}

	// The cancelled waiter must not be admitted later.
	if _, err := s.Release("a1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, held := s.AgentLane("a2"); held {
		t.Error("cancelled waiter was admitted after release")
	}
}

func TestPromote_Succeeds(t *testing.T) {
	s := newTestScheduler(t)

	if _, err := s.Acquire(Standard, "a1", Metadata{}); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	res, err := s.Promote("a1", Critical)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if res.From != Standard || res.To != Critical {
		t.Errorf("promote = %+v", res)
	}
	if got, _ := s.AgentLane("a1"); got != Critical {
		t.Errorf("agent lane = %s, want critical", got)
	}
}

func TestPromote_Failures(t *testing.T) {
	s := newTestScheduler(t)

	// Not in any lane.
	if _, err := s.Promote("ghost", Critical); core.GetCode(err) != core.CodeAgentNotInLane {
		t.Errorf("expected not-in-lane error, got %v", err)
	}

	if _, err := s.Acquire(Standard, "a1", Metadata{}); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Unknown target.
	if _, err := s.Promote("a1", "vip"); core.GetCode(err) != core.CodeUnknownLane {
		t.Errorf("expected unknown lane error, got %v", err)
	}

	// Not higher priority (standard -> background is a demotion).
	if _, err := s.Promote("a1", Background); core.GetCode(err) != core.CodePromotionDenied {
		t.Errorf("expected promotion denied, got %v", err)
	}

	// Same lane is not a promotion either.
	if _, err := s.Promote("a1", Standard); core.GetCode(err) != core.CodePromotionDenied {
		t.Errorf("expected promotion denied for same lane, got %v", err)
	}

	// Target at capacity.
	if _, err := s.Acquire(Critical, "blocker", Metadata{}); err != nil {
		t.Fatalf("acquire blocker: %v", err)
	}
	if _, err := s.Promote("a1", Critical); core.GetCode(err) != core.CodePromotionDenied {
		t.Errorf("expected promotion denied at capacity, got %v", err)
	}
}

func TestPromote_DrainsVacatedLane(t *testing.T) {
	cfgs := DefaultConfigs()
	cfgs[Standard] = Config{MaxConcurrent: 1, Priority: 2}
	s := NewScheduler(nil, nil, WithLaneConfigs(cfgs))

	if _, err := s.Acquire(Standard, "a1", Metadata{}); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.WaitForLane(context.Background(), Standard, "a2", WaitOptions{Timeout: 2 * time.Second})
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	if _, err := s.Promote("a1", Critical); err != nil {
		t.Fatalf("promote: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waiter should be admitted into vacated lane: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("vacated lane was not drained")
	}
}

func TestOccupancyNeverExceedsCapacity(t *testing.T) {
	s := newTestScheduler(t)

	agents := []string{"a1", "a2", "a3", "a4", "a5"}
	for _, a := range agents {
		_, _ = s.Acquire(Standard, a, Metadata{})
	}

	st, err := s.LaneStatus(Standard)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Occupancy > st.MaxConcurrent {
		t.Errorf("occupancy %d exceeds capacity %d", st.Occupancy, st.MaxConcurrent)
	}
}

func TestClearLane(t *testing.T) {
	s := newTestScheduler(t)

	_, _ = s.Acquire(Standard, "a1", Metadata{})
	_, _ = s.Acquire(Standard, "a2", Metadata{})

	n, err := s.ClearLane(Standard)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 2 {
		t.Errorf("cleared %d occupants, want 2", n)
	}
	st, _ := s.LaneStatus(Standard)
	if st.Occupancy != 0 {
		t.Errorf("occupancy after clear = %d", st.Occupancy)
	}
}

func TestUpdateLaneConfig_IncreaseDrains(t *testing.T) {
	s := newTestScheduler(t)

	if _, err := s.Acquire(Critical, "a1", Metadata{}); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.WaitForLane(context.Background(), Critical, "a2", WaitOptions{Timeout: 2 * time.Second})
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	if err := s.UpdateLaneConfig(Critical, 2); err != nil {
		t.Fatalf("update config: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waiter should be admitted after capacity increase: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("capacity increase did not drain the queue")
	}

	if err := s.UpdateLaneConfig(Critical, 0); err == nil {
		t.Error("expected validation error for zero capacity")
	}
}

func TestStats(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()
	s := NewScheduler(bus, nil)

	_, _ = s.Acquire(Critical, "a1", Metadata{})
	_, _ = s.Release("a1")

	stats := s.Stats()
	if stats.Acquired != 1 || stats.Released != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if len(stats.Lanes) != 3 {
		t.Errorf("expected 3 lanes, got %d", len(stats.Lanes))
	}
}

func asDomainError(err error, target **core.DomainError) bool {
	if err == nil {
		return false
	}
	de, ok := err.(*core.DomainError)
	if !ok {
		return false
	}
	*target = de
	return true
}
