package event_test

import (
	"sync"
	"testing"
	"time"

	"github.com/randalmurphal/dataflow/pkg/dataflow/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]event.Event
}

func (r *batchRecorder) flush(batch []event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
}

func (r *batchRecorder) sizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	sizes := make([]int, len(r.batches))
	for i, b := range r.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func TestBatcherCoalescesBurst(t *testing.T) {
	rec := &batchRecorder{}
	b := event.NewBatcher(30*time.Millisecond, rec.flush)

	for i := 0; i < 5; i++ {
		b.Add(event.New("x", "test", "s", i))
	}
	assert.Equal(t, 5, b.Pending())

	require.Eventually(t, func() bool { return len(rec.sizes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{5}, rec.sizes())
	assert.Equal(t, 0, b.Pending())
}

func TestBatcherWindowRestarts(t *testing.T) {
	rec := &batchRecorder{}
	b := event.NewBatcher(40*time.Millisecond, rec.flush)

	b.Add(event.New("x", "test", "s", nil))
	time.Sleep(20 * time.Millisecond)
	b.Add(event.New("x", "test", "s", nil))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.sizes(), "window should restart on each event")

	require.Eventually(t, func() bool { return len(rec.sizes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{2}, rec.sizes())
}

func TestBatcherFlush(t *testing.T) {
	rec := &batchRecorder{}
	b := event.NewBatcher(time.Hour, rec.flush)

	b.Flush()
	assert.Empty(t, rec.sizes())

	b.Add(event.New("x", "test", "s", nil))
	b.Flush()
	assert.Equal(t, []int{1}, rec.sizes())
}

func TestBatcherZeroWindow(t *testing.T) {
	rec := &batchRecorder{}
	b := event.NewBatcher(0, rec.flush)

	b.Add(event.New("x", "test", "s", nil))
	b.Add(event.New("x", "test", "s", nil))
	assert.Equal(t, []int{1, 1}, rec.sizes())
}

func TestBatcherStop(t *testing.T) {
	rec := &batchRecorder{}
	b := event.NewBatcher(time.Hour, rec.flush)

	b.Add(event.New("x", "test", "s", nil))
	b.Stop()
	assert.Equal(t, []int{1}, rec.sizes())

	b.Add(event.New("x", "test", "s", nil))
	assert.Equal(t, 0, b.Pending())
}
