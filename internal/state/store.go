// Package state holds the single source of truth for the swarm: agents,
// tasks, objectives, sessions, and runtime health/metrics. All writes go
// through Dispatch or Transaction so every observable change is recorded
// and delivered to subscribers in order, one change at a time.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dotcommander/claude-flow/internal/models"
	"github.com/dotcommander/claude-flow/internal/persist"
)

// stateVersion tags serialized state and snapshots.
const stateVersion = "v1"

// SwarmMeta identifies the swarm instance.
type SwarmMeta struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
}

// Session records one coordinator run for audit purposes.
type Session struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Orchestration groups the scheduler-owned entities.
type Orchestration struct {
	Objectives map[string]models.Objective `json:"objectives"`
}

// Health is the coordinator's own liveness view.
type Health struct {
	Healthy       bool      `json:"healthy"`
	LastCheckAt   time.Time `json:"last_check_at"`
	StuckRecovers int       `json:"stuck_recovers"`
}

// Metrics aggregates run counters.
type Metrics struct {
	TasksDispatched     int `json:"tasks_dispatched"`
	TasksCompleted      int `json:"tasks_completed"`
	TasksFailed         int `json:"tasks_failed"`
	TasksRetried        int `json:"tasks_retried"`
	ObjectivesCompleted int `json:"objectives_completed"`
	ObjectivesFailed    int `json:"objectives_failed"`
}

// MemoryStats is the substrate's footprint as seen by the store.
type MemoryStats struct {
	Entries        int `json:"entries"`
	KnowledgeBases int `json:"knowledge_bases"`
	Evictions      int `json:"evictions"`
}

// Unified is the entire core state graph. Adapters expose scoped views of
// it; nothing else owns these entities.
type Unified struct {
	Swarm         SwarmMeta               `json:"swarm"`
	Agents        map[string]models.Agent `json:"agents"`
	Tasks         map[string]models.Task  `json:"tasks"`
	Sessions      map[string]Session      `json:"sessions"`
	Memory        MemoryStats             `json:"memory"`
	Orchestration Orchestration           `json:"orchestration"`
	Health        Health                  `json:"health"`
	Metrics       Metrics                 `json:"metrics"`
	Config        map[string]string       `json:"config"`
}

func newUnified() Unified {
	return Unified{
		Agents:        make(map[string]models.Agent),
		Tasks:         make(map[string]models.Task),
		Sessions:      make(map[string]Session),
		Orchestration: Orchestration{Objectives: make(map[string]models.Objective)},
		Config:        make(map[string]string),
	}
}

// Change is the record emitted for every applied action.
type Change struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Path      string    `json:"path"`
	Previous  any       `json:"previous,omitempty"`
	Next      any       `json:"next,omitempty"`
}

// Action is one atomic mutation of the unified state.
type Action interface {
	// Name is the stable action identifier recorded in the change log.
	Name() string
	// Apply mutates the state and reports the dotted path it touched plus
	// the previous and next values at that path.
	Apply(s *Unified) (path string, previous, next any, err error)
}

type subscription struct {
	path string
	fn   func(Change)
}

// Store serializes all mutations behind one mutex and notifies subscribers
// asynchronously, in dispatch order, without ever blocking a writer.
type Store struct {
	mu      sync.Mutex
	current Unified
	backend persist.Backend

	subMu   sync.Mutex
	subs    map[int]*subscription
	nextSub int

	// Ordered async notification queue.
	queueMu  sync.Mutex
	queue    []Change
	queueCnd *sync.Cond
	closed   bool
	drained  chan struct{}
}

// New returns an empty store. backend may be nil for purely in-memory use.
func New(backend persist.Backend) *Store {
	s := &Store{
		current: newUnified(),
		backend: backend,
		subs:    make(map[int]*subscription),
		drained: make(chan struct{}),
	}
	s.queueCnd = sync.NewCond(&s.queueMu)
	go s.notifyLoop()
	return s
}

// GetState returns a deep copy of the unified state. Mutating the copy
// never affects the store.
func (s *Store) GetState() Unified {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deepCopy(s.current)
}

// deepCopy clones through JSON so nested maps and slices detach fully.
// State is plain data; the round trip is lossless.
func deepCopy(u Unified) Unified {
	data, err := json.Marshal(u)
	if err != nil {
		// Unified contains only marshalable fields; this cannot fire.
		panic(fmt.Sprintf("state: marshal unified state: %v", err))
	}
	out := newUnified()
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("state: unmarshal unified state: %v", err))
	}
	return out
}

// Dispatch applies one action atomically and emits its change record.
// Changes are enqueued while the state lock is held so subscribers observe
// them in the order they were applied.
func (s *Store) Dispatch(action Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, prev, next, err := action.Apply(&s.current)
	if err != nil {
		return err
	}
	s.enqueue([]Change{newChange(action.Name(), path, prev, next)})
	return nil
}

// Transaction applies the actions as one atomic group: either all apply or
// none do, and subscribers observe the group's changes only after the last
// action landed, so no partial transaction is ever visible.
func (s *Store) Transaction(actions []Action) error {
	s.mu.Lock()
	staged := deepCopy(s.current)
	changes := make([]Change, 0, len(actions))
	for _, action := range actions {
		path, prev, next, err := action.Apply(&staged)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("transaction aborted at %s: %w", action.Name(), err)
		}
		changes = append(changes, newChange(action.Name(), path, prev, next))
	}
	s.current = staged
	s.enqueue(changes)
	s.mu.Unlock()
	return nil
}

func newChange(action, path string, prev, next any) Change {
	return Change{
		ID:        models.NewID("chg"),
		Timestamp: time.Now(),
		Action:    action,
		Path:      path,
		Previous:  prev,
		Next:      next,
	}
}

// Subscribe registers fn for changes whose path equals or descends from
// path (dotted segments; empty subscribes to everything). Returns an
// unsubscribe function. Callbacks run on the notifier goroutine in
// dispatch order and must not call back into the store's write API.
func (s *Store) Subscribe(path string, fn func(Change)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = &subscription{path: path, fn: fn}
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func pathMatches(subPath, changePath string) bool {
	if subPath == "" {
		return true
	}
	return changePath == subPath || strings.HasPrefix(changePath, subPath+".")
}

func (s *Store) enqueue(changes []Change) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, changes...)
	s.queueCnd.Signal()
}

func (s *Store) notifyLoop() {
	for {
		s.queueMu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.queueCnd.Wait()
		}
		if s.closed && len(s.queue) == 0 {
			s.queueMu.Unlock()
			close(s.drained)
			return
		}
		batch := s.queue
		s.queue = nil
		s.queueMu.Unlock()

		for _, change := range batch {
			s.subMu.Lock()
			subs := make([]*subscription, 0, len(s.subs))
			for _, sub := range s.subs {
				subs = append(subs, sub)
			}
			s.subMu.Unlock()

			for _, sub := range subs {
				if pathMatches(sub.path, change.Path) {
					sub.fn(change)
				}
			}
		}
	}
}

// Close stops the notifier after the queued changes have been delivered.
func (s *Store) Close() {
	s.queueMu.Lock()
	if s.closed {
		s.queueMu.Unlock()
		return
	}
	s.closed = true
	s.queueCnd.Signal()
	s.queueMu.Unlock()
	<-s.drained
}

// Snapshot serializes the full state into an immutable snapshot.
func (s *Store) Snapshot() (models.Snapshot, error) {
	s.mu.Lock()
	data, err := json.Marshal(s.current)
	s.mu.Unlock()
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to serialize state: %w", err)
	}
	return models.Snapshot{
		ID:        models.NewID("snap"),
		Timestamp: time.Now(),
		Version:   stateVersion,
		State:     data,
	}, nil
}

// Restore replaces the entire state graph with the snapshot's contents.
func (s *Store) Restore(snap models.Snapshot) error {
	restored := newUnified()
	if err := json.Unmarshal(snap.State, &restored); err != nil {
		return fmt.Errorf("failed to parse snapshot %s: %w", snap.ID, err)
	}

	s.mu.Lock()
	s.current = restored
	s.enqueue([]Change{newChange("state/restore", "", nil, snap.ID)})
	s.mu.Unlock()
	return nil
}

// Persist saves the serialized state through the backend.
func (s *Store) Persist(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	s.mu.Lock()
	data, err := json.Marshal(s.current)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}
	return s.backend.Save(ctx, data)
}

// LoadPersisted replaces the state with the backend's saved copy, if any.
// Returns false when no persisted state exists.
func (s *Store) LoadPersisted(ctx context.Context) (bool, error) {
	if s.backend == nil {
		return false, nil
	}
	data, err := s.backend.Load(ctx)
	if err != nil {
		if err == persist.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	restored := newUnified()
	if err := json.Unmarshal(data, &restored); err != nil {
		return false, fmt.Errorf("failed to parse persisted state: %w", err)
	}
	s.mu.Lock()
	s.current = restored
	s.mu.Unlock()
	return true, nil
}
