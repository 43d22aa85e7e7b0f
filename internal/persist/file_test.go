package persist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/claude-flow/internal/models"
)

func TestFileBackendStateRoundTrip(t *testing.T) {
	f, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = f.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	state := []byte(`{"agents":{}}`)
	require.NoError(t, f.Save(ctx, state))

	loaded, err := f.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, string(state), string(loaded))
}

func TestFileBackendSnapshotLifecycle(t *testing.T) {
	f, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	older := models.Snapshot{
		ID:        "snap_1",
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Version:   "v1",
		State:     []byte(`{"a":1}`),
	}
	newer := models.Snapshot{
		ID:        "snap_2",
		Timestamp: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Version:   "v1",
		State:     []byte(`{"a":2}`),
	}
	require.NoError(t, f.SaveSnapshot(ctx, newer))
	require.NoError(t, f.SaveSnapshot(ctx, older))

	got, err := f.LoadSnapshot(ctx, "snap_1")
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)
	assert.True(t, got.Timestamp.Equal(older.Timestamp))
	assert.Equal(t, older.State, got.State)

	list, err := f.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "snap_1", list[0].ID, "oldest first")

	require.NoError(t, f.DeleteSnapshot(ctx, "snap_1"))
	require.NoError(t, f.DeleteSnapshot(ctx, "snap_1"), "delete is idempotent")

	_, err = f.LoadSnapshot(ctx, "snap_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileBackendEntries(t *testing.T) {
	f, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	entries, err := f.LoadEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	in := []models.MemoryEntry{{
		ID:        "mem_1",
		AgentID:   "agent_1",
		Type:      models.MemoryTypeResult,
		Content:   "done",
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Metadata:  models.MemoryMetadata{Priority: 2, ShareLevel: models.ShareLevelTeam},
	}}
	require.NoError(t, f.SaveEntries(ctx, in))

	out, err := f.LoadEntries(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "mem_1", out[0].ID)
	assert.Equal(t, models.ShareLevelTeam, out[0].Metadata.ShareLevel)
	assert.True(t, out[0].Timestamp.Equal(in[0].Timestamp), "timestamps survive the round trip")
}
