package store

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// Device is a monitored UPS.
type Device struct {
	ID        string    `json:"id" db:"id"`
	Location  string    `json:"location" db:"location"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Group is a chat that subscribed to one or more devices.
// DeviceIDs is a set in memory; the stores persist it as a list.
type Group struct {
	ChatID    int64     `json:"chat_id"`
	DeviceIDs []string  `json:"device_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// EventRecord is one entry of the append-only notification log.
type EventRecord struct {
	ID         uuid.UUID `json:"id" db:"id"`
	DeviceID   string    `json:"device_id" db:"device_id"`
	Severity   string    `json:"severity" db:"severity"`
	Message    string    `json:"message" db:"message"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// GenNewID generates a new UUID v7 (time-ordered).
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// Stores bundles the persistence backends the relay needs.
type Stores struct {
	Devices DeviceStore
	Groups  GroupStore
	Events  EventLog

	closer io.Closer
}

// NewStores wires the three stores and the handle that owns their connection.
func NewStores(devices DeviceStore, groups GroupStore, events EventLog, closer io.Closer) *Stores {
	return &Stores{Devices: devices, Groups: groups, Events: events, closer: closer}
}

// Close releases the underlying database handle.
func (s *Stores) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// StoreConfig configures the store layer.
type StoreConfig struct {
	// PostgresDSN is the Postgres connection string. If empty, standalone (sqlite) mode is used.
	PostgresDSN string

	// Mode: "standalone" (default) or "managed".
	Mode string

	// SQLitePath is the database file for standalone mode (default: ~/.upsrelay/upsrelay.db).
	SQLitePath string
}

// IsManaged returns true if the system is in managed (Postgres) mode.
func (c StoreConfig) IsManaged() bool {
	return c.PostgresDSN != "" && c.Mode == "managed"
}
