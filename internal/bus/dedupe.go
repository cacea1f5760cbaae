package bus

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DedupeCache remembers event keys for a TTL so that retried webhook
// calls and re-polled mails are delivered once. When full, the oldest
// key is evicted first.
type DedupeCache struct {
	mu   sync.Mutex // makes check-and-add atomic
	seen *expirable.LRU[string, time.Time]
}

// NewDedupeCache creates a cache. maxSize <= 0 disables the size cap.
func NewDedupeCache(ttl time.Duration, maxSize int) *DedupeCache {
	if maxSize < 0 {
		maxSize = 0
	}
	return &DedupeCache{seen: expirable.NewLRU[string, time.Time](maxSize, nil, ttl)}
}

// IsDuplicate reports whether key was seen within the TTL and records it
// otherwise. A repeat does not extend the window.
func (d *DedupeCache) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen.Get(key); ok {
		return true
	}
	d.seen.Add(key, time.Now())
	return false
}

// Forget drops key so it can be published again.
func (d *DedupeCache) Forget(key string) {
	d.seen.Remove(key)
}

// Len returns the number of live keys.
func (d *DedupeCache) Len() int {
	return d.seen.Len()
}
