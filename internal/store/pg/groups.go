package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/nextlevelbuilder/upsrelay/internal/store"
)

// PGGroupStore implements store.GroupStore backed by Postgres.
// Subscriptions are kept in a text[] column.
type PGGroupStore struct {
	db *sqlx.DB
}

func NewPGGroupStore(db *sqlx.DB) *PGGroupStore {
	return &PGGroupStore{db: db}
}

type groupRow struct {
	ChatID    int64          `db:"chat_id"`
	DeviceIDs pq.StringArray `db:"device_ids"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r groupRow) toGroup() store.Group {
	ids := []string(r.DeviceIDs)
	if ids == nil {
		ids = []string{}
	}
	return store.Group{ChatID: r.ChatID, DeviceIDs: ids, CreatedAt: r.CreatedAt}
}

func (s *PGGroupStore) ListGroups(ctx context.Context) ([]store.Group, error) {
	var rows []groupRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT chat_id, device_ids, created_at FROM telegram_groups ORDER BY created_at ASC")
	if err != nil {
		return nil, unavailable("list groups", err)
	}
	groups := make([]store.Group, 0, len(rows))
	for _, r := range rows {
		groups = append(groups, r.toGroup())
	}
	return groups, nil
}

func (s *PGGroupStore) CreateGroup(ctx context.Context, chatID int64) (*store.Group, error) {
	now := nowUTC()
	var row groupRow
	err := s.db.GetContext(ctx, &row,
		`INSERT INTO telegram_groups (chat_id, device_ids, created_at, updated_at)
		 VALUES ($1, '{}', $2, $2)
		 ON CONFLICT (chat_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
		 RETURNING chat_id, device_ids, created_at`,
		chatID, now,
	)
	if err != nil {
		return nil, unavailable("create group", err)
	}
	g := row.toGroup()
	return &g, nil
}

func (s *PGGroupStore) SetGroupDevices(ctx context.Context, chatID int64, deviceIDs []string) error {
	if deviceIDs == nil {
		deviceIDs = []string{}
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE telegram_groups SET device_ids = $1, updated_at = $2 WHERE chat_id = $3",
		pq.Array(deviceIDs), nowUTC(), chatID,
	)
	if err != nil {
		return unavailable("update group subscriptions", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("group %d: %w", chatID, store.ErrNotFound)
	}
	return nil
}

func (s *PGGroupStore) DeleteGroup(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM telegram_groups WHERE chat_id = $1", chatID); err != nil {
		return unavailable("delete group", err)
	}
	return nil
}
