package telegram

import (
	"context"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// adminFetcher returns the user ids of a chat's administrators.
type adminFetcher func(ctx context.Context, chatID int64) ([]int64, error)

// adminCache memoizes chat administrator lists so every admin command
// does not cost a getChatAdministrators round trip.
type adminCache struct {
	lru   *expirable.LRU[int64, []int64]
	fetch adminFetcher
}

func newAdminCache(fetch adminFetcher, size int, ttl time.Duration) *adminCache {
	return &adminCache{
		lru:   expirable.NewLRU[int64, []int64](size, nil, ttl),
		fetch: fetch,
	}
}

// IsAdmin reports whether userID administers chatID.
func (a *adminCache) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	ids, ok := a.lru.Get(chatID)
	if !ok {
		var err error
		ids, err = a.fetch(ctx, chatID)
		if err != nil {
			return false, err
		}
		a.lru.Add(chatID, ids)
	}
	return slices.Contains(ids, userID), nil
}

// Invalidate drops the cached list for chatID.
func (a *adminCache) Invalidate(chatID int64) {
	a.lru.Remove(chatID)
}
