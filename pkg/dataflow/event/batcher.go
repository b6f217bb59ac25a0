package event

import (
	"context"
	"sync"
	"time"
)

// Batcher coalesces events and delivers them together once no new event
// has arrived for the configured window. Deliveries never overlap.
type Batcher struct {
	window time.Duration
	flush  func([]Event)

	mu      sync.Mutex
	pending []Event
	timer   *time.Timer
	stopped bool

	deliverMu sync.Mutex
}

// NewBatcher creates a Batcher that calls flush with each batch.
// A window of zero or less delivers every event immediately.
func NewBatcher(window time.Duration, flush func([]Event)) *Batcher {
	return &Batcher{window: window, flush: flush}
}

// Add queues an event and restarts the quiet window.
func (b *Batcher) Add(evt Event) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.pending = append(b.pending, evt)
	if b.window <= 0 {
		b.mu.Unlock()
		b.Flush()
		return
	}
	if b.timer == nil {
		b.timer = time.AfterFunc(b.window, b.Flush)
	} else {
		b.timer.Reset(b.window)
	}
	b.mu.Unlock()
}

// Handle implements Handler so a Batcher can be subscribed directly.
func (b *Batcher) Handle(_ context.Context, evt Event) error {
	b.Add(evt)
	return nil
}

// Flush delivers pending events now. It is a no-op when nothing is pending.
func (b *Batcher) Flush() {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) > 0 {
		b.flush(batch)
	}
}

// Pending returns the number of queued events.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Stop delivers anything pending and rejects further events.
func (b *Batcher) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
	b.Flush()
}
