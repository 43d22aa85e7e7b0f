package bounded

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPutGet(t *testing.T) {
	m := NewMap[string, int](3, LRU, nil)

	m.Put("a", 1)
	m.Put("b", 2)

	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, m.Len())

	// Update in place does not grow the map.
	m.Put("a", 10)
	v, ok = m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)
	assert.Equal(t, 2, m.Len())
}

func TestMapLRUEviction(t *testing.T) {
	var evictedKeys []string
	m := NewMap[string, int](3, LRU, func(key string, value int) {
		evictedKeys = append(evictedKeys, key)
	})

	m.Put("a", 1)
	m.Put("b", 2)
	m.Put("c", 3)

	// Touch "a" so "b" becomes least recently used.
	_, ok := m.Get("a")
	require.True(t, ok)

	// Inserting a fourth evicts exactly one item, with exactly one callback.
	m.Put("d", 4)
	require.Equal(t, []string{"b"}, evictedKeys)
	assert.Equal(t, 3, m.Len())

	_, ok = m.Get("b")
	assert.False(t, ok)
	_, ok = m.Get("a")
	assert.True(t, ok)
}

func TestMapFIFOEvictionIgnoresAccess(t *testing.T) {
	var evicted []string
	m := NewMap[string, int](2, FIFO, func(key string, _ int) {
		evicted = append(evicted, key)
	})

	m.Put("a", 1)
	m.Put("b", 2)

	// Access does not protect "a" under FIFO.
	_, _ = m.Get("a")
	m.Put("c", 3)

	assert.Equal(t, []string{"a"}, evicted)
}

func TestMapLFUEviction(t *testing.T) {
	var evicted []string
	m := NewMap[string, int](3, LFU, func(key string, _ int) {
		evicted = append(evicted, key)
	})

	m.Put("a", 1)
	m.Put("b", 2)
	m.Put("c", 3)

	// "a" and "c" get extra hits; "b" stays at one access.
	_, _ = m.Get("a")
	_, _ = m.Get("a")
	_, _ = m.Get("c")

	m.Put("d", 4)
	assert.Equal(t, []string{"b"}, evicted)
}

func TestMapLFUTieFallsOnOldest(t *testing.T) {
	var evicted []string
	m := NewMap[string, int](2, LFU, func(key string, _ int) {
		evicted = append(evicted, key)
	})

	m.Put("a", 1)
	m.Put("b", 2)
	m.Put("c", 3)

	assert.Equal(t, []string{"a"}, evicted)
}

func TestMapCallbackFiresBeforeRemoval(t *testing.T) {
	var m *Map[string, int]
	sawDuringCallback := false
	m = NewMap[string, int](1, LRU, func(key string, value int) {
		// The victim must still be reachable while the callback runs.
		_, ok := m.Peek(key)
		sawDuringCallback = ok
	})

	m.Put("a", 1)
	m.Put("b", 2)

	assert.True(t, sawDuringCallback)
	assert.Equal(t, 1, m.Len())
}

func TestMapNeverExceedsMaxSize(t *testing.T) {
	m := NewMap[int, int](5, LRU, nil)
	for i := 0; i < 100; i++ {
		m.Put(i, i)
		assert.LessOrEqual(t, m.Len(), 5)
	}
}

func TestMapKeysMostRecentFirst(t *testing.T) {
	m := NewMap[string, int](3, LRU, nil)
	m.Put("a", 1)
	m.Put("b", 2)
	m.Put("c", 3)
	_, _ = m.Get("a")

	assert.Equal(t, []string{"a", "c", "b"}, m.Keys())
}

func TestMapDeleteDoesNotFireCallback(t *testing.T) {
	fired := 0
	m := NewMap[string, int](2, LRU, func(string, int) { fired++ })

	m.Put("a", 1)
	assert.True(t, m.Delete("a"))
	assert.False(t, m.Delete("a"))
	assert.Zero(t, fired)
}

func TestSetMembershipAndEviction(t *testing.T) {
	var evicted []string
	s := NewSet[string](2, LRU, func(member string) {
		evicted = append(evicted, member)
	})

	s.Add("a")
	s.Add("b")

	// Membership test bumps "a"; "b" becomes the LRU victim.
	assert.True(t, s.Contains("a"))
	s.Add("c")

	assert.Equal(t, []string{"b"}, evicted)
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("b"))
	assert.Equal(t, 2, s.Len())
}

func TestQueueOverflowDropOldest(t *testing.T) {
	var evicted []int
	q := NewQueue[int](3, DropOldest, func(item int) {
		evicted = append(evicted, item)
	})

	for i := 1; i <= 5; i++ {
		q.Push(i)
	}

	assert.Equal(t, []int{1, 2}, evicted)
	assert.Equal(t, 3, q.Len())

	head, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 3, head)
}

func TestQueueOverflowDropNewest(t *testing.T) {
	var evicted []int
	q := NewQueue[int](2, DropNewest, func(item int) {
		evicted = append(evicted, item)
	})

	q.Push(1)
	q.Push(2)
	q.Push(3)

	// The tail slot is vacated for the incoming item.
	assert.Equal(t, []int{2}, evicted)
	assert.Equal(t, []int{1, 3}, q.Drain(0))
}

func TestQueueDrain(t *testing.T) {
	q := NewQueue[int](10, DropOldest, nil)
	for i := 1; i <= 4; i++ {
		q.Push(i)
	}

	assert.Equal(t, []int{1, 2}, q.Drain(2))
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, []int{3, 4}, q.Drain(0))
	assert.Zero(t, q.Len())

	_, ok := q.Pop()
	assert.False(t, ok)
}
