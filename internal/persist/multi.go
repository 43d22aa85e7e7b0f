package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dotcommander/claude-flow/internal/models"
)

// Multi fans writes out to every backend and serves reads from the primary,
// falling back to the others in order. A save succeeds if at least one
// backend accepted it (partial failures are logged); it fails with
// persistence-exhausted only when every backend failed.
type Multi struct {
	primary  Backend
	fallback []Backend
}

// NewMulti wires the backends. primaryName selects the read-preferred
// backend; when it names no backend, the first is primary.
func NewMulti(primaryName string, backends ...Backend) (*Multi, error) {
	if len(backends) == 0 {
		return nil, errors.New("at least one backend is required")
	}

	primaryIdx := 0
	for i, b := range backends {
		if b.Name() == primaryName {
			primaryIdx = i
			break
		}
	}

	m := &Multi{primary: backends[primaryIdx]}
	for i, b := range backends {
		if i != primaryIdx {
			m.fallback = append(m.fallback, b)
		}
	}
	return m, nil
}

// Name identifies the composite in logs.
func (m *Multi) Name() string { return "multi" }

func (m *Multi) all() []Backend {
	return append([]Backend{m.primary}, m.fallback...)
}

// fanOut runs op on every backend. One success wins; total failure returns
// a PersistenceExhaustedError.
func (m *Multi) fanOut(opName string, op func(b Backend) error) error {
	var failures []string
	succeeded := false
	for _, b := range m.all() {
		if err := op(b); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", b.Name(), err))
			continue
		}
		succeeded = true
	}
	if !succeeded {
		return &models.PersistenceExhaustedError{Op: opName, Failures: failures}
	}
	if len(failures) > 0 {
		slog.Warn("persistence partially failed", "op", opName, "failures", failures)
	}
	return nil
}

// firstHit runs op against the primary, then each fallback, returning the
// first success. ErrNotFound from one backend falls through to the next.
// With no success, the result is ErrNotFound if any backend reported it,
// else a PersistenceExhaustedError.
func (m *Multi) firstHit(opName string, op func(b Backend) error) error {
	var failures []string
	notFound := false
	for _, b := range m.all() {
		err := op(b)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotFound) {
			notFound = true
			failures = append(failures, fmt.Sprintf("%s: not found", b.Name()))
			continue
		}
		failures = append(failures, fmt.Sprintf("%s: %v", b.Name(), err))
		slog.Warn("backend read failed, trying next", "op", opName, "backend", b.Name(), "error", err)
	}
	if notFound {
		return ErrNotFound
	}
	return &models.PersistenceExhaustedError{Op: opName, Failures: failures}
}

// Save fans the state out to all backends.
func (m *Multi) Save(ctx context.Context, state []byte) error {
	return m.fanOut("save", func(b Backend) error { return b.Save(ctx, state) })
}

// Load reads state from the primary, falling back in order.
func (m *Multi) Load(ctx context.Context) ([]byte, error) {
	var state []byte
	err := m.firstHit("load", func(b Backend) error {
		var loadErr error
		state, loadErr = b.Load(ctx)
		return loadErr
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// SaveSnapshot fans the snapshot out to all backends.
func (m *Multi) SaveSnapshot(ctx context.Context, snap models.Snapshot) error {
	return m.fanOut("save-snapshot", func(b Backend) error { return b.SaveSnapshot(ctx, snap) })
}

// LoadSnapshot reads a snapshot from the primary, falling back in order.
func (m *Multi) LoadSnapshot(ctx context.Context, id string) (models.Snapshot, error) {
	var snap models.Snapshot
	err := m.firstHit("load-snapshot", func(b Backend) error {
		var loadErr error
		snap, loadErr = b.LoadSnapshot(ctx, id)
		return loadErr
	})
	if err != nil {
		return models.Snapshot{}, err
	}
	return snap, nil
}

// ListSnapshots lists from the primary, falling back in order.
func (m *Multi) ListSnapshots(ctx context.Context) ([]models.Snapshot, error) {
	var snapshots []models.Snapshot
	err := m.firstHit("list-snapshots", func(b Backend) error {
		var listErr error
		snapshots, listErr = b.ListSnapshots(ctx)
		return listErr
	})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

// DeleteSnapshot fans the delete out to all backends.
func (m *Multi) DeleteSnapshot(ctx context.Context, id string) error {
	return m.fanOut("delete-snapshot", func(b Backend) error { return b.DeleteSnapshot(ctx, id) })
}

// SaveEntries fans memory entries out to all backends.
func (m *Multi) SaveEntries(ctx context.Context, entries []models.MemoryEntry) error {
	return m.fanOut("save-entries", func(b Backend) error { return b.SaveEntries(ctx, entries) })
}

// LoadEntries reads entries from the primary, falling back in order.
func (m *Multi) LoadEntries(ctx context.Context) ([]models.MemoryEntry, error) {
	var entries []models.MemoryEntry
	err := m.firstHit("load-entries", func(b Backend) error {
		var loadErr error
		entries, loadErr = b.LoadEntries(ctx)
		return loadErr
	})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Close closes every backend, returning the first error.
func (m *Multi) Close() error {
	var firstErr error
	for _, b := range m.all() {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
