package events

import (
	"testing"
	"time"
)

func TestEventBus_Subscribe(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe()

	event := NewLaneAcquiredEvent("critical", "agent-1", "task-1", 1)
	bus.Publish(event)

	select {
	case received := <-ch:
		if received.EventType() != TypeLaneAcquired {
			t.Errorf("expected %s, got %s", TypeLaneAcquired, received.EventType())
		}
		acquired, ok := received.(LaneAcquiredEvent)
		if !ok {
			t.Fatalf("expected LaneAcquiredEvent, got %T", received)
		}
		if acquired.AgentID != "agent-1" {
			t.Errorf("expected agent-1, got %s", acquired.AgentID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestEventBus_SubscribeByType(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	laneCh := bus.Subscribe(TypeLaneReleased)
	allCh := bus.Subscribe()

	bus.Publish(NewLevelResolvedEvent("task-1", "high", "priority", "opus"))
	bus.Publish(NewLaneReleasedEvent("standard", "agent-1", "task-1", time.Second))

	// allCh should receive both
	select {
	case <-allCh:
	case <-time.After(100 * time.Millisecond):
		t.Error("allCh should receive level event")
	}
	select {
	case <-allCh:
	case <-time.After(100 * time.Millisecond):
		t.Error("allCh should receive lane event")
	}

	// laneCh should only receive the release
	select {
	case received := <-laneCh:
		if received.EventType() != TypeLaneReleased {
			t.Errorf("expected lane_released, got %s", received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("laneCh should receive lane event")
	}
}

func TestEventBus_PriorityNeverDrops(t *testing.T) {
	bus := New(5) // Small buffer
	defer bus.Close()

	priorityCh := bus.SubscribePriority()

	// Saturate with many events
	for i := 0; i < 100; i++ {
		bus.Publish(NewCacheSweptEvent(i))
	}

	// Send priority event
	bus.PublishPriority(NewRecoveryExecutedEvent("task-1", "MANUAL", "require_manual", false))

	// Priority channel should have the event
	select {
	case received := <-priorityCh:
		if received.EventType() != TypeRecoveryExecuted {
			t.Errorf("expected recovery_executed, got %s", received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("priority event was dropped")
	}
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	bus := New(2)
	defer bus.Close()

	_ = bus.Subscribe()

	for i := 0; i < 10; i++ {
		bus.Publish(NewCacheSweptEvent(i))
	}

	if bus.DroppedCount() == 0 {
		t.Error("expected dropped events with saturated buffer")
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	// Channel should be closed
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel after unsubscribe")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("channel should be closed")
	}

	// Publishing after unsubscribe must not panic
	bus.Publish(NewCacheSweptEvent(0))
}

func TestEventBus_CloseIsIdempotent(t *testing.T) {
	bus := New(10)
	bus.Close()
	bus.Close()
	bus.Publish(NewCacheSweptEvent(0)) // No-op after close
}
