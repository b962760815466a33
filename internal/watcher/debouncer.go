package watcher

import (
	"sync"
	"time"
)

// BatchDebouncer collects events and emits them as one batch after a quiet
// period. Every Add resets the timer, so a burst of editor saves or a
// checkout touching many files coalesces into a single emission.
type BatchDebouncer struct {
	delay  time.Duration
	timer  *time.Timer
	mu     sync.Mutex
	events []Event
	emit   func([]Event)
}

// NewBatchDebouncer creates a batch debouncer that calls emit once the
// tree has been quiet for delay.
func NewBatchDebouncer(delay time.Duration, emit func([]Event)) *BatchDebouncer {
	return &BatchDebouncer{
		delay:  delay,
		events: make([]Event, 0),
		emit:   emit,
	}
}

// Add appends an event to the pending batch and restarts the quiet timer.
func (b *BatchDebouncer) Add(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.delay, func() {
		b.flush()
	})
}

// flush hands the collected events to emit and resets the batch.
func (b *BatchDebouncer) flush() {
	b.mu.Lock()
	events := b.events
	b.events = make([]Event, 0)
	b.timer = nil
	b.mu.Unlock()

	if len(events) > 0 && b.emit != nil {
		b.emit(events)
	}
}

// Cancel drops any pending events without emitting them.
func (b *BatchDebouncer) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.events = make([]Event, 0)
}

// Flush emits any pending events immediately.
func (b *BatchDebouncer) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	b.flush()
}

// EventCount returns the number of pending events.
func (b *BatchDebouncer) EventCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
