package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/nextlevelbuilder/upsrelay/internal/state"
	"github.com/nextlevelbuilder/upsrelay/internal/store"
	"github.com/nextlevelbuilder/upsrelay/pkg/protocol"
)

// Sender delivers a text message to a chat or user.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Digest sends a summary of today's events to the super admins.
type Digest struct {
	cache      *state.Cache
	events     store.EventLog
	sender     Sender
	recipients func() []int64
	location   *time.Location
	retry      RetryConfig
	now        func() time.Time
}

// NewDigest creates the digest job. recipients is read on every run so
// admin changes picked up by config reload apply immediately.
func NewDigest(cache *state.Cache, events store.EventLog, sender Sender, recipients func() []int64, loc *time.Location) *Digest {
	if loc == nil {
		loc = time.Local
	}
	return &Digest{
		cache:      cache,
		events:     events,
		sender:     sender,
		recipients: recipients,
		location:   loc,
		retry:      deliveryRetryConfig(),
		now:        time.Now,
	}
}

// Run is the JobFunc for the digest schedule.
func (d *Digest) Run(ctx context.Context) error {
	if status := d.cache.Status(); status != state.StatusRunning {
		slog.Info("digest skipped, system not running", "status", status)
		return nil
	}

	now := d.now().In(d.location)
	since := StartOfDay(now)
	recs, err := d.events.EventsSince(ctx, since)
	if err != nil {
		return fmt.Errorf("load events for digest: %w", err)
	}
	text := FormatDigest(since, recs, d.cache.Location)

	// Each recipient retries on its own. A partial failure must not re-run
	// the job for recipients already served.
	var failed int
	for _, id := range d.recipients() {
		attempts, err := ExecuteWithRetry(ctx, func(ctx context.Context) error {
			return d.sender.Send(ctx, id, text)
		}, d.retry)
		if err != nil {
			slog.Warn("digest delivery failed", "chat_id", id, "attempts", attempts, "error", err)
			failed++
		}
	}
	if failed > 0 {
		return Permanent(fmt.Errorf("digest: %d deliveries failed", failed))
	}
	return nil
}

// StartOfDay truncates t to local midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, day := t.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, t.Location())
}

type deviceCounts struct {
	id       string
	info     int
	warning  int
	critical int
}

// FormatDigest renders a per-device count of the day's events.
func FormatDigest(day time.Time, recs []store.EventRecord, location func(string) string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Daily UPS report %s\n", day.Format("02/01/2006"))
	if len(recs) == 0 {
		b.WriteString("No events today.")
		return b.String()
	}

	byDevice := make(map[string]*deviceCounts)
	for _, r := range recs {
		c, ok := byDevice[r.DeviceID]
		if !ok {
			c = &deviceCounts{id: r.DeviceID}
			byDevice[r.DeviceID] = c
		}
		switch protocol.Severity(r.Severity) {
		case protocol.SeverityCritical:
			c.critical++
		case protocol.SeverityWarning:
			c.warning++
		default:
			c.info++
		}
	}

	rows := make([]*deviceCounts, 0, len(byDevice))
	for _, c := range byDevice {
		rows = append(rows, c)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })

	fmt.Fprintf(&b, "%d events from %d UPS\n", len(recs), len(rows))
	for _, c := range rows {
		fmt.Fprintf(&b, "🔌 %s - %s: 🚨 %d ⚠️ %d ℹ️ %d\n", c.id, location(c.id), c.critical, c.warning, c.info)
	}
	return strings.TrimRight(b.String(), "\n")
}
