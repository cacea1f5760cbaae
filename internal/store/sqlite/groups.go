package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/upsrelay/internal/store"
)

// GroupStore implements store.GroupStore on SQLite.
type GroupStore struct {
	db *sql.DB
}

func NewGroupStore(db *sql.DB) *GroupStore {
	return &GroupStore{db: db}
}

func (s *GroupStore) ListGroups(ctx context.Context) ([]store.Group, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT chat_id, device_ids, created_at FROM telegram_groups ORDER BY created_at ASC")
	if err != nil {
		return nil, unavailable("list groups", err)
	}
	defer rows.Close()

	var groups []store.Group
	for rows.Next() {
		var g store.Group
		var ids string
		var createdAt int64
		if err := rows.Scan(&g.ChatID, &ids, &createdAt); err != nil {
			return nil, unavailable("scan group", err)
		}
		g.DeviceIDs = splitIDs(ids)
		g.CreatedAt = fromMillis(createdAt)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list groups", err)
	}
	return groups, nil
}

func (s *GroupStore) CreateGroup(ctx context.Context, chatID int64) (*store.Group, error) {
	now := toMillis(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO telegram_groups (chat_id, device_ids, created_at, updated_at) VALUES (?, '', ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET updated_at = excluded.updated_at`,
		chatID, now, now)
	if err != nil {
		return nil, unavailable("create group", err)
	}

	var g store.Group
	var ids string
	var createdAt int64
	err = s.db.QueryRowContext(ctx,
		"SELECT chat_id, device_ids, created_at FROM telegram_groups WHERE chat_id = ?", chatID).
		Scan(&g.ChatID, &ids, &createdAt)
	if err != nil {
		return nil, unavailable("read group", err)
	}
	g.DeviceIDs = splitIDs(ids)
	g.CreatedAt = fromMillis(createdAt)
	return &g, nil
}

func (s *GroupStore) SetGroupDevices(ctx context.Context, chatID int64, deviceIDs []string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE telegram_groups SET device_ids = ?, updated_at = ? WHERE chat_id = ?",
		joinIDs(deviceIDs), toMillis(time.Now()), chatID)
	if err != nil {
		return unavailable("update group subscriptions", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("group %d: %w", chatID, store.ErrNotFound)
	}
	return nil
}

func (s *GroupStore) DeleteGroup(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM telegram_groups WHERE chat_id = ?", chatID); err != nil {
		return unavailable("delete group", err)
	}
	return nil
}
