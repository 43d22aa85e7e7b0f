package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dotcommander/claude-flow/internal/models"
)

// stateEnvelope wraps the serialized state with save metadata. Timestamps
// marshal as RFC3339 so a restored state preserves time semantics across
// platforms.
type stateEnvelope struct {
	Version string          `json:"version"`
	SavedAt time.Time       `json:"saved_at"`
	State   json.RawMessage `json:"state"`
}

// FileBackend persists JSON documents under a base directory:
//
//	<dir>/state.json
//	<dir>/memory.json
//	<dir>/snapshots/<id>.json   (one snapshot per file)
type FileBackend struct {
	dir string
}

// NewFileBackend creates the directory layout and returns the backend.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Join(dir, "snapshots"), 0750); err != nil {
		return nil, fmt.Errorf("failed to create backend dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

// Name identifies this backend in logs and Multi configuration.
func (f *FileBackend) Name() string { return "file" }

// writeJSON writes v pretty-printed through a temp file + rename so a
// crashed save never leaves a torn document.
func (f *FileBackend) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}

// Save writes the serialized unified state.
func (f *FileBackend) Save(_ context.Context, state []byte) error {
	env := stateEnvelope{Version: "v1", SavedAt: time.Now(), State: state}
	return f.writeJSON(filepath.Join(f.dir, "state.json"), env)
}

// Load reads the serialized unified state, ErrNotFound when none exists.
func (f *FileBackend) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, "state.json"))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	var env stateEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse state envelope: %w", err)
	}
	return env.State, nil
}

func (f *FileBackend) snapshotPath(id string) string {
	// IDs are generated by models.NewID; reject separators defensively so a
	// crafted id cannot escape the snapshots dir.
	safe := strings.ReplaceAll(id, string(os.PathSeparator), "_")
	return filepath.Join(f.dir, "snapshots", safe+".json")
}

// SaveSnapshot writes one snapshot per file.
func (f *FileBackend) SaveSnapshot(_ context.Context, snap models.Snapshot) error {
	return f.writeJSON(f.snapshotPath(snap.ID), snap)
}

// LoadSnapshot reads a snapshot by id.
func (f *FileBackend) LoadSnapshot(_ context.Context, id string) (models.Snapshot, error) {
	data, err := os.ReadFile(f.snapshotPath(id))
	if os.IsNotExist(err) {
		return models.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to read snapshot %s: %w", id, err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to parse snapshot %s: %w", id, err)
	}
	return snap, nil
}

// ListSnapshots returns all snapshots, oldest first.
func (f *FileBackend) ListSnapshots(_ context.Context) ([]models.Snapshot, error) {
	entries, err := os.ReadDir(filepath.Join(f.dir, "snapshots"))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots dir: %w", err)
	}

	snapshots := make([]models.Snapshot, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.dir, "snapshots", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot file %s: %w", entry.Name(), err)
		}
		var snap models.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("failed to parse snapshot file %s: %w", entry.Name(), err)
		}
		snapshots = append(snapshots, snap)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.Before(snapshots[j].Timestamp)
	})
	return snapshots, nil
}

// DeleteSnapshot removes a snapshot file. Deleting a missing snapshot is
// a no-op.
func (f *FileBackend) DeleteSnapshot(_ context.Context, id string) error {
	err := os.Remove(f.snapshotPath(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot %s: %w", id, err)
	}
	return nil
}

// SaveEntries writes the memory substrate's entries.
func (f *FileBackend) SaveEntries(_ context.Context, entries []models.MemoryEntry) error {
	return f.writeJSON(filepath.Join(f.dir, "memory.json"), entries)
}

// LoadEntries reads the memory substrate's entries; an absent file is an
// empty store, not an error.
func (f *FileBackend) LoadEntries(_ context.Context) ([]models.MemoryEntry, error) {
	data, err := os.ReadFile(filepath.Join(f.dir, "memory.json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read memory entries: %w", err)
	}
	var entries []models.MemoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse memory entries: %w", err)
	}
	return entries, nil
}

// Close is a no-op for the filesystem backend.
func (f *FileBackend) Close() error { return nil }
