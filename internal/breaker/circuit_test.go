package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *time.Time) {
	b := New(Config{FailureThreshold: threshold, ResetTimeout: reset, HalfOpenSuccesses: 1})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.RecordFailure("a1")
	b.RecordFailure("a1")
	assert.Equal(t, StateClosed, b.StateOf("a1"))
	assert.True(t, b.CanExecute("a1"))

	b.RecordFailure("a1")
	assert.Equal(t, StateOpen, b.StateOf("a1"))
	assert.False(t, b.CanExecute("a1"))
	assert.Equal(t, 3, b.Failures("a1"))
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.RecordFailure("a1")
	b.RecordFailure("a1")
	b.RecordSuccess("a1")
	b.RecordFailure("a1")
	b.RecordFailure("a1")

	// Failures never accumulated to the threshold in a row.
	assert.Equal(t, StateClosed, b.StateOf("a1"))
}

func TestBreakerHalfOpenProbeCloses(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)

	b.RecordFailure("a1")
	assert.Equal(t, StateOpen, b.StateOf("a1"))
	assert.False(t, b.CanExecute("a1"))

	// After the reset timeout the next inquiry admits a probe.
	*now = now.Add(2 * time.Minute)
	assert.True(t, b.CanExecute("a1"))
	assert.Equal(t, StateHalfOpen, b.StateOf("a1"))

	b.RecordSuccess("a1")
	assert.Equal(t, StateClosed, b.StateOf("a1"))
	assert.Zero(t, b.Failures("a1"))
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)

	b.RecordFailure("a1")
	*now = now.Add(2 * time.Minute)
	assert.True(t, b.CanExecute("a1"))

	b.RecordFailure("a1")
	assert.Equal(t, StateOpen, b.StateOf("a1"))

	// The reset timer re-arms from the probe failure.
	assert.False(t, b.CanExecute("a1"))
	*now = now.Add(2 * time.Minute)
	assert.True(t, b.CanExecute("a1"))
}

func TestBreakerTracksAgentsIndependently(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)

	b.RecordFailure("a1")
	assert.False(t, b.CanExecute("a1"))
	assert.True(t, b.CanExecute("a2"))

	states := b.States()
	assert.Equal(t, StateOpen, states["a1"])
	assert.Equal(t, StateClosed, states["a2"])
}

func TestBreakerReset(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)

	b.RecordFailure("a1")
	b.Reset("a1")
	assert.True(t, b.CanExecute("a1"))
	assert.Equal(t, StateClosed, b.StateOf("a1"))
}

func TestStealerSuggestPairsExtremes(t *testing.T) {
	w := NewWorkStealer()
	w.UpdateLoads(map[string]float64{"a1": 0.9, "a2": 0.1})

	assert.Equal(t, []Suggestion{{From: "a1", To: "a2"}}, w.Suggest())
}

func TestStealerNoRecipientBelowThreshold(t *testing.T) {
	w := NewWorkStealer()
	w.UpdateLoads(map[string]float64{"a1": 0.9, "a2": 0.5})

	assert.Empty(t, w.Suggest())
}

func TestStealerBoundaryLoadsExcluded(t *testing.T) {
	// 0.8 and 0.3 sit exactly on the thresholds: neither donor nor recipient.
	w := NewWorkStealer()
	w.UpdateLoads(map[string]float64{"a1": 0.8, "a2": 0.3})

	assert.Empty(t, w.Suggest())
}

func TestStealerPairsHighestWithLowest(t *testing.T) {
	w := NewWorkStealer()
	w.UpdateLoads(map[string]float64{
		"hot":  1.0,
		"warm": 0.85,
		"cool": 0.2,
		"cold": 0.0,
	})

	suggestions := w.Suggest()
	assert.Equal(t, []Suggestion{
		{From: "hot", To: "cold"},
		{From: "warm", To: "cool"},
	}, suggestions)
}

func TestStealerClampsAndReplaces(t *testing.T) {
	w := NewWorkStealer()
	w.UpdateLoads(map[string]float64{"a1": 1.7, "a2": -0.2})
	assert.Equal(t, map[string]float64{"a1": 1.0, "a2": 0.0}, w.Loads())

	w.ReplaceLoads(map[string]float64{"a3": 0.5})
	assert.Equal(t, map[string]float64{"a3": 0.5}, w.Loads())
}
