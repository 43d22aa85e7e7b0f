package persist

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/claude-flow/internal/models"
)

// fakeBackend is an in-memory Backend with injectable failures.
type fakeBackend struct {
	name      string
	state     []byte
	entries   []models.MemoryEntry
	snapshots map[string]models.Snapshot
	failAll   bool
	saves     int
}

func newFakeBackend(name string) *fakeBackend {
	return &fakeBackend{name: name, snapshots: make(map[string]models.Snapshot)}
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Save(_ context.Context, state []byte) error {
	if f.failAll {
		return errors.New("backend down")
	}
	f.saves++
	f.state = append([]byte(nil), state...)
	return nil
}

func (f *fakeBackend) Load(_ context.Context) ([]byte, error) {
	if f.failAll {
		return nil, errors.New("backend down")
	}
	if f.state == nil {
		return nil, ErrNotFound
	}
	return f.state, nil
}

func (f *fakeBackend) SaveSnapshot(_ context.Context, snap models.Snapshot) error {
	if f.failAll {
		return errors.New("backend down")
	}
	f.snapshots[snap.ID] = snap
	return nil
}

func (f *fakeBackend) LoadSnapshot(_ context.Context, id string) (models.Snapshot, error) {
	if f.failAll {
		return models.Snapshot{}, errors.New("backend down")
	}
	snap, ok := f.snapshots[id]
	if !ok {
		return models.Snapshot{}, ErrNotFound
	}
	return snap, nil
}

func (f *fakeBackend) ListSnapshots(_ context.Context) ([]models.Snapshot, error) {
	if f.failAll {
		return nil, errors.New("backend down")
	}
	out := make([]models.Snapshot, 0, len(f.snapshots))
	for _, snap := range f.snapshots {
		out = append(out, snap)
	}
	return out, nil
}

func (f *fakeBackend) DeleteSnapshot(_ context.Context, id string) error {
	if f.failAll {
		return errors.New("backend down")
	}
	delete(f.snapshots, id)
	return nil
}

func (f *fakeBackend) SaveEntries(_ context.Context, entries []models.MemoryEntry) error {
	if f.failAll {
		return errors.New("backend down")
	}
	f.entries = append(f.entries, entries...)
	return nil
}

func (f *fakeBackend) LoadEntries(_ context.Context) ([]models.MemoryEntry, error) {
	if f.failAll {
		return nil, errors.New("backend down")
	}
	return f.entries, nil
}

func (f *fakeBackend) Close() error { return nil }

func TestMultiSaveFansOut(t *testing.T) {
	a, b := newFakeBackend("a"), newFakeBackend("b")
	m, err := NewMulti("a", a, b)
	require.NoError(t, err)

	require.NoError(t, m.Save(context.Background(), []byte("s")))
	assert.Equal(t, 1, a.saves)
	assert.Equal(t, 1, b.saves)
}

func TestMultiPartialFailureSucceeds(t *testing.T) {
	a, b := newFakeBackend("a"), newFakeBackend("b")
	b.failAll = true
	m, err := NewMulti("a", a, b)
	require.NoError(t, err)

	assert.NoError(t, m.Save(context.Background(), []byte("s")))
}

func TestMultiTotalFailureIsExhausted(t *testing.T) {
	a, b := newFakeBackend("a"), newFakeBackend("b")
	a.failAll = true
	b.failAll = true
	m, err := NewMulti("a", a, b)
	require.NoError(t, err)

	err = m.Save(context.Background(), []byte("s"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrPersistenceExhausted)

	var ce models.CoordError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "persistence-exhausted", ce.ErrorCode())
}

func TestMultiLoadFallsBackFromPrimary(t *testing.T) {
	a, b := newFakeBackend("a"), newFakeBackend("b")
	a.failAll = true
	b.state = []byte("from-b")
	m, err := NewMulti("a", a, b)
	require.NoError(t, err)

	state, err := m.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("from-b"), state)
}

func TestMultiLoadNotFound(t *testing.T) {
	m, err := NewMulti("a", newFakeBackend("a"))
	require.NoError(t, err)

	_, err = m.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMultiUnknownPrimaryDefaultsToFirst(t *testing.T) {
	a, b := newFakeBackend("a"), newFakeBackend("b")
	a.state = []byte("from-a")
	b.state = []byte("from-b")
	m, err := NewMulti("nope", a, b)
	require.NoError(t, err)

	state, err := m.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("from-a"), state)
}

func TestMultiRequiresBackends(t *testing.T) {
	_, err := NewMulti("a")
	assert.Error(t, err)
}
