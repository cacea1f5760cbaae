package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/upsrelay/internal/store"
)

// EventLog implements store.EventLog on SQLite.
type EventLog struct {
	db *sql.DB
}

func NewEventLog(db *sql.DB) *EventLog {
	return &EventLog{db: db}
}

const eventSelectCols = "id, device_id, severity, message, occurred_at, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (store.EventRecord, error) {
	var rec store.EventRecord
	var id string
	var occurredAt, createdAt int64
	if err := row.Scan(&id, &rec.DeviceID, &rec.Severity, &rec.Message, &occurredAt, &createdAt); err != nil {
		return rec, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return rec, fmt.Errorf("parse event id %q: %w", id, err)
	}
	rec.ID = parsed
	rec.OccurredAt = fromMillis(occurredAt)
	rec.CreatedAt = fromMillis(createdAt)
	return rec, nil
}

func (s *EventLog) RecordEvent(ctx context.Context, rec store.EventRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = store.GenNewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO device_events ("+eventSelectCols+") VALUES (?, ?, ?, ?, ?, ?)",
		rec.ID.String(), rec.DeviceID, rec.Severity, rec.Message, toMillis(rec.OccurredAt), toMillis(rec.CreatedAt))
	if err != nil {
		return unavailable("record event", err)
	}
	return nil
}

func (s *EventLog) LastEvent(ctx context.Context, deviceID string) (*store.EventRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+eventSelectCols+" FROM device_events WHERE device_id = ? ORDER BY created_at DESC LIMIT 1", deviceID)
	rec, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("events for device %s: %w", deviceID, store.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("last event", err)
	}
	return &rec, nil
}

func (s *EventLog) LastEvents(ctx context.Context, limit int) ([]store.EventRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.query(ctx, "last events",
		"SELECT "+eventSelectCols+" FROM device_events ORDER BY created_at DESC LIMIT ?", limit)
}

func (s *EventLog) EventsSince(ctx context.Context, since time.Time) ([]store.EventRecord, error) {
	return s.query(ctx, "events since",
		"SELECT "+eventSelectCols+" FROM device_events WHERE created_at >= ? ORDER BY created_at ASC", toMillis(since))
}

func (s *EventLog) query(ctx context.Context, op, q string, args ...any) ([]store.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	var recs []store.EventRecord
	for rows.Next() {
		rec, err := scanEvent(rows)
		if err != nil {
			return nil, unavailable(op, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return recs, nil
}
