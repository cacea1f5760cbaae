package pg

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nextlevelbuilder/upsrelay/internal/store"
)

// PGDeviceStore implements store.DeviceStore backed by Postgres.
type PGDeviceStore struct {
	db *sqlx.DB
}

func NewPGDeviceStore(db *sqlx.DB) *PGDeviceStore {
	return &PGDeviceStore{db: db}
}

func (s *PGDeviceStore) ListDevices(ctx context.Context) ([]store.Device, error) {
	var devices []store.Device
	err := s.db.SelectContext(ctx, &devices,
		"SELECT id, location, created_at FROM devices ORDER BY created_at ASC")
	if err != nil {
		return nil, unavailable("list devices", err)
	}
	return devices, nil
}

func (s *PGDeviceStore) CreateDevice(ctx context.Context, d store.Device) error {
	now := nowUTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO devices (id, location, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		d.ID, d.Location, d.CreatedAt, now,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("device %s: %w", d.ID, store.ErrDuplicateEntity)
	}
	if err != nil {
		return unavailable("create device", err)
	}
	return nil
}

func (s *PGDeviceStore) UpdateDeviceLocation(ctx context.Context, id, location string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE devices SET location = $1, updated_at = $2 WHERE id = $3", location, nowUTC(), id)
	if err != nil {
		return unavailable("update device", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("device %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *PGDeviceStore) DeleteDevice(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM devices WHERE id = $1", id); err != nil {
		return unavailable("delete device", err)
	}
	return nil
}

func (s *PGDeviceStore) DeleteAllDevices(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM devices"); err != nil {
		return unavailable("delete all devices", err)
	}
	return nil
}
