// Package breaker holds the per-agent circuit breaker state machine and the
// work-stealing load advisor. Both are shared structures written only by
// the coordinator; internal locks guard the timer-driven transitions.
package breaker

import (
	"log/slog"
	"sync"
	"time"
)

// State of a circuit.
type State string

// Circuit states.
const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config tunes the breaker state machine.
type Config struct {
	// FailureThreshold opens the circuit once consecutive failures reach it.
	FailureThreshold int
	// ResetTimeout is how long an open circuit waits before admitting a
	// half-open probe.
	ResetTimeout time.Duration
	// HalfOpenSuccesses is how many consecutive probe successes close a
	// half-open circuit.
	HalfOpenSuccesses int
}

// DefaultConfig matches the dispatcher's tolerance for flaky agents.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:  3,
		ResetTimeout:      30 * time.Second,
		HalfOpenSuccesses: 1,
	}
}

type circuit struct {
	state        State
	failures     int
	successes    int // consecutive successes while half-open
	lastFailure  time.Time
	openedEvents int
}

// CircuitBreaker tracks one circuit per agent.
type CircuitBreaker struct {
	mu       sync.Mutex
	cfg      Config
	circuits map[string]*circuit

	// now is swappable for tests.
	now func() time.Time
}

// New returns a breaker with the given config.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.HalfOpenSuccesses <= 0 {
		cfg.HalfOpenSuccesses = 1
	}
	return &CircuitBreaker{
		cfg:      cfg,
		circuits: make(map[string]*circuit),
		now:      time.Now,
	}
}

func (b *CircuitBreaker) get(agentID string) *circuit {
	c, ok := b.circuits[agentID]
	if !ok {
		c = &circuit{state: StateClosed}
		b.circuits[agentID] = c
	}
	return c
}

// CanExecute reports whether the agent may receive work. An open circuit
// whose reset timeout has elapsed transitions to half-open here, so the
// probe decision is made lazily at inquiry time.
func (b *CircuitBreaker) CanExecute(agentID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(agentID)
	switch c.state {
	case StateOpen:
		if b.now().Sub(c.lastFailure) >= b.cfg.ResetTimeout {
			c.state = StateHalfOpen
			c.successes = 0
			slog.Info("circuit half-open, admitting probe", "agent_id", agentID)
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess resets a closed circuit's failure count; a half-open
// circuit closes after the configured number of consecutive successes.
func (b *CircuitBreaker) RecordSuccess(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(agentID)
	switch c.state {
	case StateHalfOpen:
		c.successes++
		if c.successes >= b.cfg.HalfOpenSuccesses {
			c.state = StateClosed
			c.failures = 0
			c.successes = 0
			slog.Info("circuit closed after successful probe", "agent_id", agentID)
		}
	default:
		c.state = StateClosed
		c.failures = 0
	}
}

// RecordFailure increments the failure count; reaching the threshold opens
// the circuit. A half-open circuit reopens on any failure.
func (b *CircuitBreaker) RecordFailure(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(agentID)
	c.failures++
	c.lastFailure = b.now()

	switch c.state {
	case StateHalfOpen:
		c.state = StateOpen
		c.successes = 0
		c.openedEvents++
		slog.Warn("circuit reopened after probe failure", "agent_id", agentID)
	case StateClosed:
		if c.failures >= b.cfg.FailureThreshold {
			c.state = StateOpen
			c.openedEvents++
			slog.Warn("circuit opened", "agent_id", agentID, "failures", c.failures)
		}
	}
}

// StateOf returns the current state of the agent's circuit.
func (b *CircuitBreaker) StateOf(agentID string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.get(agentID).state
}

// Failures returns the agent's current consecutive failure count.
func (b *CircuitBreaker) Failures(agentID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.get(agentID).failures
}

// States returns a snapshot of every tracked circuit's state.
func (b *CircuitBreaker) States() map[string]State {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]State, len(b.circuits))
	for id, c := range b.circuits {
		out[id] = c.state
	}
	return out
}

// Reset forgets the agent's circuit entirely (agent deregistration).
func (b *CircuitBreaker) Reset(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.circuits, agentID)
}
