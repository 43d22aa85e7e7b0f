package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToMatchingSubscriber(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, unsub := b.Subscribe("task:completed")
	defer unsub()

	b.Emit("task:completed", map[string]any{"task_id": "task_1"})
	b.Emit("task:failed", map[string]any{"task_id": "task_2"})

	select {
	case ev := <-ch:
		assert.Equal(t, "task:completed", ev.Kind)
		assert.Equal(t, "task_1", ev.Data["task_id"])
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("expected event not delivered")
	}

	// The non-matching kind must not arrive.
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %s", ev.Kind)
	default:
	}
}

func TestBusAllKindsSubscription(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, unsub := b.Subscribe()
	defer unsub()

	b.Emit("memory:added", nil)
	b.Emit("monitor:alert", nil)

	require.Equal(t, "memory:added", (<-ch).Kind)
	require.Equal(t, "monitor:alert", (<-ch).Kind)
}

func TestBusSlowSubscriberDropsNotBlocks(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, unsub := b.Subscribe("x")
	defer unsub()

	// Overfill the buffer; Emit must return without blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultBuffer+50; i++ {
			b.Emit("x", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Emit blocked on a slow subscriber")
	}

	assert.Equal(t, uint64(50), b.Dropped())
	assert.Len(t, ch, defaultBuffer)
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, unsub := b.Subscribe()
	unsub()
	unsub() // idempotent

	_, open := <-ch
	assert.False(t, open)

	// Emitting after unsubscribe must not panic.
	b.Emit("x", nil)
}
