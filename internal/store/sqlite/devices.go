package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/upsrelay/internal/store"
)

// DeviceStore implements store.DeviceStore on SQLite.
type DeviceStore struct {
	db *sql.DB
}

func NewDeviceStore(db *sql.DB) *DeviceStore {
	return &DeviceStore{db: db}
}

func (s *DeviceStore) ListDevices(ctx context.Context) ([]store.Device, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, location, created_at FROM devices ORDER BY created_at ASC")
	if err != nil {
		return nil, unavailable("list devices", err)
	}
	defer rows.Close()

	var devices []store.Device
	for rows.Next() {
		var d store.Device
		var createdAt int64
		if err := rows.Scan(&d.ID, &d.Location, &createdAt); err != nil {
			return nil, unavailable("scan device", err)
		}
		d.CreatedAt = fromMillis(createdAt)
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list devices", err)
	}
	return devices, nil
}

func (s *DeviceStore) CreateDevice(ctx context.Context, d store.Device) error {
	now := time.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO devices (id, location, created_at, updated_at) VALUES (?, ?, ?, ?)",
		d.ID, d.Location, toMillis(d.CreatedAt), toMillis(now))
	if isUniqueViolation(err) {
		return fmt.Errorf("device %s: %w", d.ID, store.ErrDuplicateEntity)
	}
	if err != nil {
		return unavailable("create device", err)
	}
	return nil
}

func (s *DeviceStore) UpdateDeviceLocation(ctx context.Context, id, location string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE devices SET location = ?, updated_at = ? WHERE id = ?", location, toMillis(time.Now()), id)
	if err != nil {
		return unavailable("update device", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("device %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *DeviceStore) DeleteDevice(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id); err != nil {
		return unavailable("delete device", err)
	}
	return nil
}

func (s *DeviceStore) DeleteAllDevices(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM devices"); err != nil {
		return unavailable("delete all devices", err)
	}
	return nil
}
