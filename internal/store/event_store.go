package store

import (
	"context"
	"time"
)

// EventLog is the append-only record of dispatched notifications.
type EventLog interface {
	RecordEvent(ctx context.Context, rec EventRecord) error
	// LastEvent returns ErrNotFound when the device has no events.
	LastEvent(ctx context.Context, deviceID string) (*EventRecord, error)
	// LastEvents returns the newest events first.
	LastEvents(ctx context.Context, limit int) ([]EventRecord, error)
	// EventsSince returns events created at or after since, oldest first.
	EventsSince(ctx context.Context, since time.Time) ([]EventRecord, error)
}
