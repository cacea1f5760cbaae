package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nextlevelbuilder/upsrelay/internal/store"
)

// PGEventLog implements store.EventLog backed by Postgres.
type PGEventLog struct {
	db *sqlx.DB
}

func NewPGEventLog(db *sqlx.DB) *PGEventLog {
	return &PGEventLog{db: db}
}

const eventSelectCols = "id, device_id, severity, message, occurred_at, created_at"

func (s *PGEventLog) RecordEvent(ctx context.Context, rec store.EventRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = store.GenNewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = nowUTC()
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO device_events (`+eventSelectCols+`)
		 VALUES (:id, :device_id, :severity, :message, :occurred_at, :created_at)`, rec)
	if err != nil {
		return unavailable("record event", err)
	}
	return nil
}

func (s *PGEventLog) LastEvent(ctx context.Context, deviceID string) (*store.EventRecord, error) {
	var rec store.EventRecord
	err := s.db.GetContext(ctx, &rec,
		`SELECT `+eventSelectCols+` FROM device_events
		 WHERE device_id = $1 ORDER BY created_at DESC LIMIT 1`, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("events for device %s: %w", deviceID, store.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("last event", err)
	}
	return &rec, nil
}

func (s *PGEventLog) LastEvents(ctx context.Context, limit int) ([]store.EventRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	var recs []store.EventRecord
	err := s.db.SelectContext(ctx, &recs,
		`SELECT `+eventSelectCols+` FROM device_events ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, unavailable("last events", err)
	}
	return recs, nil
}

func (s *PGEventLog) EventsSince(ctx context.Context, since time.Time) ([]store.EventRecord, error) {
	var recs []store.EventRecord
	err := s.db.SelectContext(ctx, &recs,
		`SELECT `+eventSelectCols+` FROM device_events WHERE created_at >= $1 ORDER BY created_at ASC`, since)
	if err != nil {
		return nil, unavailable("events since", err)
	}
	return recs, nil
}
