// Package persist provides the storage backends behind the state store and
// the memory substrate: a filesystem backend, a SQLite backend, and a
// fan-out wrapper with a designated primary.
package persist

import (
	"context"
	"errors"

	"github.com/dotcommander/claude-flow/internal/models"
)

// ErrNotFound is returned when no persisted state or snapshot exists.
var ErrNotFound = errors.New("not found")

// Backend stores the serialized unified state, named snapshots, and the
// memory substrate's entries. The core depends on this interface only;
// saves fan out to all configured backends, loads fall back from the
// primary (see Multi).
type Backend interface {
	Name() string

	Save(ctx context.Context, state []byte) error
	Load(ctx context.Context) ([]byte, error)

	SaveSnapshot(ctx context.Context, snap models.Snapshot) error
	LoadSnapshot(ctx context.Context, id string) (models.Snapshot, error)
	ListSnapshots(ctx context.Context) ([]models.Snapshot, error)
	DeleteSnapshot(ctx context.Context, id string) error

	SaveEntries(ctx context.Context, entries []models.MemoryEntry) error
	LoadEntries(ctx context.Context) ([]models.MemoryEntry, error)

	Close() error
}
