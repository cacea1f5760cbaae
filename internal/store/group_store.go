package store

import "context"

// GroupStore persists subscribed chats and their device sets.
type GroupStore interface {
	ListGroups(ctx context.Context) ([]Group, error)
	// CreateGroup inserts an empty group and returns it with its creation time.
	CreateGroup(ctx context.Context, chatID int64) (*Group, error)
	// SetGroupDevices replaces the stored subscription set.
	SetGroupDevices(ctx context.Context, chatID int64, deviceIDs []string) error
	DeleteGroup(ctx context.Context, chatID int64) error
}
