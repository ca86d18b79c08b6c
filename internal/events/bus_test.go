package events

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/vigil/internal/core"
)

func TestBus_Subscribe(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe()

	event := NewWatchdogEscalationEvent(core.RecoverySnapshot, "2.1s", "snap-1")
	bus.Publish(event)

	select {
	case received := <-ch:
		if received.EventType() != TypeWatchdogLevel1 {
			t.Errorf("expected %s, got %s", TypeWatchdogLevel1, received.EventType())
		}
		if received.Source() != "watchdog" {
			t.Errorf("expected watchdog source, got %s", received.Source())
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestBus_SubscribeByType(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	memCh := bus.Subscribe(TypeMemoryLevel90, TypeMemoryRecovered)
	allCh := bus.Subscribe()

	bus.Publish(NewWatchdogEscalationEvent(core.RecoverySnapshot, "2s", ""))
	bus.Publish(NewMemoryPressureEvent(core.MemoryLevel90, core.MemoryStats{Percent: 91}))

	// allCh should receive both
	select {
	case <-allCh:
	case <-time.After(100 * time.Millisecond):
		t.Error("allCh should receive watchdog event")
	}
	select {
	case <-allCh:
	case <-time.After(100 * time.Millisecond):
		t.Error("allCh should receive memory event")
	}

	// memCh should only receive the memory event
	select {
	case received := <-memCh:
		if received.EventType() != TypeMemoryLevel90 {
			t.Errorf("expected memory_level90, got %s", received.EventType())
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("memCh should receive memory event")
	}
	select {
	case received := <-memCh:
		t.Errorf("memCh should not receive %s", received.EventType())
	default:
	}
}

func TestBus_RingBufferDropsOldest(t *testing.T) {
	bus := New(2)
	defer bus.Close()

	ch := bus.Subscribe()

	for i := 0; i < 5; i++ {
		bus.Publish(NewMemoryPressureEvent(core.MemoryLevel70, core.MemoryStats{Percent: float64(70 + i)}))
	}

	if bus.DroppedCount() == 0 {
		t.Error("expected dropped events with tiny buffer")
	}

	// Draining must still deliver the newest events, not the oldest.
	var got []float64
	for {
		select {
		case ev := <-ch:
			got = append(got, ev.(MemoryPressureEvent).UsedPercent)
			continue
		default:
		}
		break
	}
	if len(got) == 0 {
		t.Fatal("expected at least one delivered event")
	}
	if got[len(got)-1] != 74 {
		t.Errorf("newest event should survive, got tail %v", got)
	}
}

func TestBus_PublishPriorityBlocks(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.SubscribePriority()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		bus.PublishPriority(NewNavigationResetEvent("crash_guard", "fatal state"))
	}()

	select {
	case ev := <-ch:
		if ev.EventType() != TypeNavigationReset {
			t.Errorf("expected navigation_reset, got %s", ev.EventType())
		}
	case <-time.After(time.Second):
		t.Fatal("priority event not delivered")
	}
	wg.Wait()
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New(10)
	defer bus.Close()

	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	// Channel must be closed after unsubscribe.
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel after unsubscribe")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("channel should be closed")
	}

	// Publishing after unsubscribe must not panic.
	bus.Publish(NewCleanupPerformedEvent([]string{"caches"}))
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	bus := New(10)
	bus.Subscribe()
	bus.Close()
	bus.Close()

	// Publish after close is a no-op.
	bus.Publish(NewWatchdogRecoveredEvent(core.RecoveryCancelTasks))
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := New(100)
	defer bus.Close()

	ch := bus.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		count := 0
		for range ch {
			count++
			if count == 50 {
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				bus.Publish(NewCleanupPerformedEvent([]string{fmt.Sprintf("step-%d-%d", n, j)}))
			}
		}(i)
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not observe all events")
	}
}
