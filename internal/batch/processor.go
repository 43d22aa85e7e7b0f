// Package batch coalesces individually submitted items into batches,
// flushing when a batch fills or the oldest item has waited long enough.
// Each submission carries a completion promise resolved with the result at
// the matching batch position.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dotcommander/claude-flow/pkg/bounded"
)

// ErrQueueCapacity rejects promises of items evicted from a full input queue.
var ErrQueueCapacity = errors.New("batch queue at capacity")

// Outcome resolves a submission's promise: the item's result or the error
// that failed its batch.
type Outcome[R any] struct {
	Result R
	Err    error
}

// ProcessFunc handles one batch. results[i] must correspond to items[i];
// a short result slice fails the unmatched tail.
type ProcessFunc[T, R any] func(items []T) ([]R, error)

// Config bounds the processor.
type Config struct {
	MaxBatchSize int
	MaxWait      time.Duration
	MaxQueueSize int
}

// DefaultConfig mirrors the write-burst profile of the memory substrate.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize: 32,
		MaxWait:      100 * time.Millisecond,
		MaxQueueSize: 1024,
	}
}

type pending[T, R any] struct {
	item     T
	enqueued time.Time
	done     chan Outcome[R]
}

// Processor accumulates items and emits batches to the process function.
// Internally synchronized: the wait timer fires on its own goroutine.
type Processor[T, R any] struct {
	cfg        Config
	process    ProcessFunc[T, R]
	onOverflow func(item T)

	mu       sync.Mutex
	queue    *bounded.Queue[*pending[T, R]]
	timer    *time.Timer
	inFlight int
	idleCond *sync.Cond
	closed   bool
}

// New returns a processor delivering batches to process. onOverflow (may be
// nil) observes items evicted because the input queue was full; their
// promises are rejected with ErrQueueCapacity.
func New[T, R any](cfg Config, process ProcessFunc[T, R], onOverflow func(item T)) *Processor[T, R] {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = cfg.MaxBatchSize
	}
	p := &Processor[T, R]{
		cfg:        cfg,
		process:    process,
		onOverflow: onOverflow,
	}
	p.idleCond = sync.NewCond(&p.mu)
	p.queue = bounded.NewQueue[*pending[T, R]](cfg.MaxQueueSize, bounded.DropOldest, func(evicted *pending[T, R]) {
		evicted.done <- Outcome[R]{Err: ErrQueueCapacity}
		if p.onOverflow != nil {
			p.onOverflow(evicted.item)
		}
	})
	return p
}

// Submit enqueues item and returns its promise. The returned channel is
// buffered and receives exactly one Outcome.
func (p *Processor[T, R]) Submit(item T) <-chan Outcome[R] {
	pend := &pending[T, R]{item: item, enqueued: time.Now(), done: make(chan Outcome[R], 1)}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		pend.done <- Outcome[R]{Err: errors.New("batch processor closed")}
		return pend.done
	}
	p.queue.Push(pend)

	if p.queue.Len() >= p.cfg.MaxBatchSize {
		p.stopTimerLocked()
		p.launchFlushLocked()
	} else if p.timer == nil && p.cfg.MaxWait > 0 {
		p.timer = time.AfterFunc(p.cfg.MaxWait, p.onTimer)
	}
	p.mu.Unlock()

	return pend.done
}

// SubmitWait submits item and blocks for its outcome or ctx cancellation.
func (p *Processor[T, R]) SubmitWait(ctx context.Context, item T) (R, error) {
	select {
	case out := <-p.Submit(item):
		return out.Result, out.Err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Idle reports whether the queue is empty and no batch is in flight.
func (p *Processor[T, R]) Idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len() == 0 && p.inFlight == 0
}

// FlushAll forces batches until the processor is idle.
func (p *Processor[T, R]) FlushAll() {
	p.mu.Lock()
	for p.queue.Len() > 0 || p.inFlight > 0 {
		if p.queue.Len() > 0 {
			p.stopTimerLocked()
			p.launchFlushLocked()
		}
		p.idleCond.Wait()
	}
	p.mu.Unlock()
}

// Close flushes remaining items and stops the processor. Submissions after
// Close are rejected.
func (p *Processor[T, R]) Close() {
	p.FlushAll()
	p.mu.Lock()
	p.closed = true
	p.stopTimerLocked()
	p.mu.Unlock()
}

func (p *Processor[T, R]) onTimer() {
	p.mu.Lock()
	p.timer = nil
	if p.queue.Len() > 0 {
		p.launchFlushLocked()
	}
	p.mu.Unlock()
}

func (p *Processor[T, R]) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// launchFlushLocked takes one batch off the queue and processes it on a
// fresh goroutine. At most one batch is in flight at a time; the completion
// handler chains the next. Caller holds p.mu.
func (p *Processor[T, R]) launchFlushLocked() {
	if p.inFlight > 0 {
		return
	}
	taken := p.queue.Drain(p.cfg.MaxBatchSize)
	if len(taken) == 0 {
		return
	}
	p.inFlight++

	go func() {
		items := make([]T, len(taken))
		for i, pend := range taken {
			items[i] = pend.item
		}

		results, err := p.process(items)
		for i, pend := range taken {
			switch {
			case err != nil:
				pend.done <- Outcome[R]{Err: err}
			case i < len(results):
				pend.done <- Outcome[R]{Result: results[i]}
			default:
				pend.done <- Outcome[R]{Err: errors.New("batch result missing for item")}
			}
		}

		p.mu.Lock()
		p.inFlight--
		// Re-arm: a partially refilled queue still needs its wait timer.
		if p.queue.Len() >= p.cfg.MaxBatchSize {
			p.launchFlushLocked()
		} else if p.queue.Len() > 0 && p.timer == nil && p.cfg.MaxWait > 0 {
			p.timer = time.AfterFunc(p.cfg.MaxWait, p.onTimer)
		}
		p.idleCond.Broadcast()
		p.mu.Unlock()
	}()
}
