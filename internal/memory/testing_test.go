package memory

import (
	"context"
	"sync"

	"github.com/dotcommander/claude-flow/internal/models"
	"github.com/dotcommander/claude-flow/internal/persist"
)

// captureBackend counts persisted entries; every other Backend method is a
// stub.
type captureBackend struct {
	mu      sync.Mutex
	entries []models.MemoryEntry
}

func (c *captureBackend) Name() string { return "capture" }

func (c *captureBackend) Save(context.Context, []byte) error { return nil }

func (c *captureBackend) Load(context.Context) ([]byte, error) { return nil, persist.ErrNotFound }

func (c *captureBackend) SaveSnapshot(context.Context, models.Snapshot) error { return nil }

func (c *captureBackend) LoadSnapshot(context.Context, string) (models.Snapshot, error) {
	return models.Snapshot{}, persist.ErrNotFound
}

func (c *captureBackend) ListSnapshots(context.Context) ([]models.Snapshot, error) {
	return nil, nil
}

func (c *captureBackend) DeleteSnapshot(context.Context, string) error { return nil }

func (c *captureBackend) SaveEntries(_ context.Context, entries []models.MemoryEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entries...)
	return nil
}

func (c *captureBackend) LoadEntries(context.Context) ([]models.MemoryEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries, nil
}

func (c *captureBackend) Close() error { return nil }

func (c *captureBackend) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
