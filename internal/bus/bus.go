// Package bus queues normalized device events between the event sources
// (webhook, mail poller) and the dispatcher.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultQueueSize = 100
	dedupeTTL        = 20 * time.Minute
	dedupeMaxSize    = 5000
)

// EventBus is a buffered queue of device events with duplicate suppression.
type EventBus struct {
	events chan Event
	dedupe *DedupeCache

	closeOnce sync.Once
}

func New() *EventBus {
	return NewWithSize(defaultQueueSize)
}

// NewWithSize creates a bus with a custom queue capacity.
func NewWithSize(size int) *EventBus {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &EventBus{
		events: make(chan Event, size),
		dedupe: NewDedupeCache(dedupeTTL, dedupeMaxSize),
	}
}

// ErrDuplicateEvent is returned for an event already published within the dedupe window.
var ErrDuplicateEvent = errors.New("duplicate event")

// PublishEvent queues an event. It fails with ErrDuplicateEvent for a
// repeat delivery, or with ctx's error when the queue stayed full.
func (b *EventBus) PublishEvent(ctx context.Context, ev Event) error {
	if b.dedupe.IsDuplicate(ev.DedupeKey()) {
		slog.Debug("duplicate event dropped", "device_id", ev.DeviceID, "source", ev.Source)
		return ErrDuplicateEvent
	}
	select {
	case b.events <- ev:
		return nil
	case <-ctx.Done():
		b.dedupe.Forget(ev.DedupeKey())
		slog.Warn("event dropped, bus full", "device_id", ev.DeviceID, "source", ev.Source)
		return fmt.Errorf("publish event: %w", ctx.Err())
	}
}

// ConsumeEvent blocks until an event is available or ctx is cancelled.
func (b *EventBus) ConsumeEvent(ctx context.Context) (Event, bool) {
	select {
	case ev, ok := <-b.events:
		return ev, ok
	case <-ctx.Done():
		return Event{}, false
	}
}

// Pending reports the number of queued events.
func (b *EventBus) Pending() int {
	return len(b.events)
}

// Close stops the bus. Publishing after Close panics.
func (b *EventBus) Close() {
	b.closeOnce.Do(func() { close(b.events) })
}
