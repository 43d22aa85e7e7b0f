package batch

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upper(items []string) ([]string, error) {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = s + "!"
	}
	return out, nil
}

func TestBatchFlushesAtMaxSize(t *testing.T) {
	var mu sync.Mutex
	var batches [][]string

	p := New(Config{MaxBatchSize: 3, MaxWait: time.Hour, MaxQueueSize: 10},
		func(items []string) ([]string, error) {
			mu.Lock()
			batches = append(batches, items)
			mu.Unlock()
			return upper(items)
		}, nil)
	defer p.Close()

	chans := make([]<-chan Outcome[string], 3)
	for i := 0; i < 3; i++ {
		chans[i] = p.Submit("item" + strconv.Itoa(i))
	}

	// Results correspond position-wise to inputs.
	for i, ch := range chans {
		out := <-ch
		require.NoError(t, out.Err)
		assert.Equal(t, "item"+strconv.Itoa(i)+"!", out.Result)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"item0", "item1", "item2"}, batches[0])
}

func TestBatchFlushesOnMaxWait(t *testing.T) {
	p := New(Config{MaxBatchSize: 100, MaxWait: 20 * time.Millisecond, MaxQueueSize: 10}, upper, nil)
	defer p.Close()

	out, err := p.SubmitWait(context.Background(), "solo")
	require.NoError(t, err)
	assert.Equal(t, "solo!", out)
}

func TestBatchOverflowRejectsEvicted(t *testing.T) {
	release := make(chan struct{})
	var overflowed []string

	p := New(Config{MaxBatchSize: 1, MaxWait: time.Hour, MaxQueueSize: 2},
		func(items []string) ([]string, error) {
			<-release
			return upper(items)
		},
		func(item string) { overflowed = append(overflowed, item) })

	// First submission flushes immediately and parks in process().
	first := p.Submit("a")
	// Fill the queue, then push one more to force an eviction of "b".
	second := p.Submit("b")
	third := p.Submit("c")
	fourth := p.Submit("d")

	out := <-second
	assert.ErrorIs(t, out.Err, ErrQueueCapacity)
	assert.Equal(t, []string{"b"}, overflowed)

	close(release)
	assert.NoError(t, (<-first).Err)
	assert.NoError(t, (<-third).Err)
	assert.NoError(t, (<-fourth).Err)
	p.Close()
}

func TestBatchErrorFailsWholeBatch(t *testing.T) {
	boom := assert.AnError
	p := New(Config{MaxBatchSize: 2, MaxWait: time.Hour, MaxQueueSize: 10},
		func(items []string) ([]string, error) { return nil, boom }, nil)
	defer p.Close()

	a := p.Submit("a")
	b := p.Submit("b")

	assert.ErrorIs(t, (<-a).Err, boom)
	assert.ErrorIs(t, (<-b).Err, boom)
}

func TestFlushAllDrainsToIdle(t *testing.T) {
	var mu sync.Mutex
	processed := 0

	p := New(Config{MaxBatchSize: 4, MaxWait: time.Hour, MaxQueueSize: 100},
		func(items []string) ([]string, error) {
			mu.Lock()
			processed += len(items)
			mu.Unlock()
			return upper(items)
		}, nil)

	for i := 0; i < 10; i++ {
		p.Submit(strconv.Itoa(i))
	}
	assert.False(t, p.Idle())

	p.FlushAll()
	assert.True(t, p.Idle())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, processed)
}

func TestSubmitAfterCloseRejected(t *testing.T) {
	p := New(Config{MaxBatchSize: 1, MaxWait: time.Hour, MaxQueueSize: 1}, upper, nil)
	p.Close()

	out := <-p.Submit("late")
	assert.Error(t, out.Err)
}
