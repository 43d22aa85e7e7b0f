package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/claude-flow/internal/models"
	"github.com/dotcommander/claude-flow/internal/persist"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(nil)
	t.Cleanup(s.Close)
	return s
}

func testAgent(id string) models.Agent {
	return models.Agent{
		ID:     id,
		Name:   id,
		Type:   models.AgentTypeDeveloper,
		Status: models.AgentStatusIdle,
	}
}

func TestDispatchAndGetState(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Dispatch(PutAgent{Agent: testAgent("a1")}))

	got := s.GetState()
	require.Contains(t, got.Agents, "a1")
	assert.Equal(t, models.AgentStatusIdle, got.Agents["a1"].Status)
}

func TestGetStateReturnsDetachedCopy(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Dispatch(PutAgent{Agent: testAgent("a1")}))

	view := s.GetState()
	agent := view.Agents["a1"]
	agent.Status = models.AgentStatusFailed
	view.Agents["a1"] = agent
	delete(view.Tasks, "anything")

	fresh := s.GetState()
	assert.Equal(t, models.AgentStatusIdle, fresh.Agents["a1"].Status)
}

func TestDispatchErrorLeavesStateUnchanged(t *testing.T) {
	s := newTestStore(t)

	err := s.Dispatch(RemoveAgent{AgentID: "ghost"})
	require.Error(t, err)
	assert.Empty(t, s.GetState().Agents)
}

func collectChanges(t *testing.T, s *Store, path string, want int) (func() []Change, func()) {
	t.Helper()
	var mu sync.Mutex
	var changes []Change
	done := make(chan struct{})
	unsub := s.Subscribe(path, func(c Change) {
		mu.Lock()
		changes = append(changes, c)
		if len(changes) == want {
			close(done)
		}
		mu.Unlock()
	})
	wait := func() []Change {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %d changes", want)
		}
		mu.Lock()
		defer mu.Unlock()
		out := make([]Change, len(changes))
		copy(out, changes)
		return out
	}
	return wait, unsub
}

func TestSubscribePathScoping(t *testing.T) {
	s := newTestStore(t)

	wait, unsub := collectChanges(t, s, "tasks", 2)
	defer unsub()

	require.NoError(t, s.Dispatch(PutAgent{Agent: testAgent("a1")}))
	require.NoError(t, s.Dispatch(PutTask{Task: models.Task{ID: "t1", Status: models.TaskStatusPending}}))
	require.NoError(t, s.Dispatch(PutTask{Task: models.Task{ID: "t2", Status: models.TaskStatusPending}}))

	changes := wait()
	assert.Equal(t, "tasks.t1", changes[0].Path)
	assert.Equal(t, "tasks.t2", changes[1].Path)
	for _, c := range changes {
		assert.Equal(t, "task/put", c.Action)
		assert.NotEmpty(t, c.ID)
		assert.False(t, c.Timestamp.IsZero())
	}
}

func TestChangeRecordCarriesPreviousAndNext(t *testing.T) {
	s := newTestStore(t)

	wait, unsub := collectChanges(t, s, "agents.a1", 2)
	defer unsub()

	first := testAgent("a1")
	require.NoError(t, s.Dispatch(PutAgent{Agent: first}))

	second := first
	second.Status = models.AgentStatusBusy
	require.NoError(t, s.Dispatch(PutAgent{Agent: second}))

	changes := wait()
	assert.Nil(t, changes[0].Previous)
	assert.Equal(t, first, changes[0].Next)
	assert.Equal(t, first, changes[1].Previous)
	assert.Equal(t, second, changes[1].Next)
}

func TestTransactionAtomicity(t *testing.T) {
	s := newTestStore(t)

	// Failing mid-transaction must leave no trace of the earlier actions.
	err := s.Transaction([]Action{
		PutAgent{Agent: testAgent("a1")},
		RemoveTask{TaskID: "ghost"},
	})
	require.Error(t, err)
	assert.Empty(t, s.GetState().Agents)

	wait, unsub := collectChanges(t, s, "", 2)
	defer unsub()

	require.NoError(t, s.Transaction([]Action{
		PutAgent{Agent: testAgent("a1")},
		PutTask{Task: models.Task{ID: "t1", Status: models.TaskStatusPending}},
	}))

	changes := wait()
	assert.Equal(t, "agents.a1", changes[0].Path)
	assert.Equal(t, "tasks.t1", changes[1].Path)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Dispatch(PutAgent{Agent: testAgent("a1")}))
	require.NoError(t, s.Dispatch(PutTask{Task: models.Task{ID: "t1", Status: models.TaskStatusCompleted}}))
	require.NoError(t, s.Dispatch(PutObjective{Objective: models.Objective{
		ID: "obj_1", Strategy: models.StrategyAuto, Status: models.ObjectiveStatusExecuting,
	}}))

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, stateVersion, snap.Version)

	before := s.GetState()

	// Diverge, then restore.
	require.NoError(t, s.Dispatch(RemoveTask{TaskID: "t1"}))
	require.NoError(t, s.Dispatch(PutAgent{Agent: testAgent("a2")}))
	require.NoError(t, s.Restore(snap))

	after := s.GetState()
	assert.Equal(t, before.Agents, after.Agents)
	assert.Equal(t, before.Tasks, after.Tasks)
	assert.Equal(t, before.Orchestration, after.Orchestration)
	assert.NotContains(t, after.Agents, "a2", "restore replaces the whole graph")
}

func TestPersistAndLoad(t *testing.T) {
	backend, err := persist.NewFileBackend(t.TempDir())
	require.NoError(t, err)

	s := New(backend)
	defer s.Close()
	require.NoError(t, s.Dispatch(PutAgent{Agent: testAgent("a1")}))
	require.NoError(t, s.Persist(context.Background()))

	fresh := New(backend)
	defer fresh.Close()
	loaded, err := fresh.LoadPersisted(context.Background())
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Contains(t, fresh.GetState().Agents, "a1")
}

func TestLoadPersistedWithoutState(t *testing.T) {
	backend, err := persist.NewFileBackend(t.TempDir())
	require.NoError(t, err)

	s := New(backend)
	defer s.Close()
	loaded, err := s.LoadPersisted(context.Background())
	require.NoError(t, err)
	assert.False(t, loaded)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := newTestStore(t)

	var mu sync.Mutex
	count := 0
	unsub := s.Subscribe("", func(Change) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	require.NoError(t, s.Dispatch(PutAgent{Agent: testAgent("a1")}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, 2*time.Second, 5*time.Millisecond)

	unsub()
	require.NoError(t, s.Dispatch(PutAgent{Agent: testAgent("a2")}))
	s.Close() // drain so the second change has been processed

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}
