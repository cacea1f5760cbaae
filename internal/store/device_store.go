package store

import "context"

// DeviceStore persists devices.
type DeviceStore interface {
	ListDevices(ctx context.Context) ([]Device, error)
	// CreateDevice returns ErrDuplicateEntity if the id is taken.
	CreateDevice(ctx context.Context, d Device) error
	// UpdateDeviceLocation returns ErrNotFound if the id is unknown.
	UpdateDeviceLocation(ctx context.Context, id, location string) error
	DeleteDevice(ctx context.Context, id string) error
	DeleteAllDevices(ctx context.Context) error
}
