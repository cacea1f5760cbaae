package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/upsrelay/internal/state"
	"github.com/nextlevelbuilder/upsrelay/internal/store"
	"github.com/nextlevelbuilder/upsrelay/internal/store/storetest"
)

type recordingSender struct {
	sent map[int64][]string
}

func (r *recordingSender) Send(_ context.Context, chatID int64, text string) error {
	if r.sent == nil {
		r.sent = make(map[int64][]string)
	}
	r.sent[chatID] = append(r.sent[chatID], text)
	return nil
}

func TestDigestRun(t *testing.T) {
	ctx := context.Background()
	mem := storetest.New()
	cache := state.New(mem, mem, state.StatusRunning)
	_ = cache.Hydrate(ctx)
	_, _ = cache.AddDevice(ctx, "1", "Server Room")

	now := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	for _, rec := range []store.EventRecord{
		{DeviceID: "1", Severity: "critical", CreatedAt: now.Add(-20 * time.Hour)}, // yesterday
		{DeviceID: "1", Severity: "critical", CreatedAt: now.Add(-2 * time.Hour)},
		{DeviceID: "1", Severity: "info", CreatedAt: now.Add(-time.Hour)},
		{DeviceID: "2", Severity: "warning", CreatedAt: now.Add(-time.Minute)},
	} {
		_ = mem.RecordEvent(ctx, rec)
	}

	sender := &recordingSender{}
	d := NewDigest(cache, mem, sender, func() []int64 { return []int64{10, 11} }, time.UTC)
	d.now = fixedClock(now)

	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sender.sent[10]) != 1 || len(sender.sent[11]) != 1 {
		t.Fatalf("sent = %v", sender.sent)
	}
	text := sender.sent[10][0]
	for _, want := range []string{"3 events from 2 UPS", "🔌 1 - Server Room: 🚨 1 ⚠️ 0 ℹ️ 1", "🔌 2 - 2: 🚨 0 ⚠️ 1 ℹ️ 0"} {
		if !strings.Contains(text, want) {
			t.Errorf("digest missing %q:\n%s", want, text)
		}
	}
}

type flakySender struct {
	recordingSender
	fail map[int64][]error
}

func (f *flakySender) Send(ctx context.Context, chatID int64, text string) error {
	if errs := f.fail[chatID]; len(errs) > 0 {
		f.fail[chatID] = errs[1:]
		return errs[0]
	}
	return f.recordingSender.Send(ctx, chatID, text)
}

func TestDigestRetriesPerRecipient(t *testing.T) {
	ctx := context.Background()
	mem := storetest.New()
	cache := state.New(mem, mem, state.StatusRunning)
	_ = cache.Hydrate(ctx)

	gone := fmt.Errorf("send: %w", store.ErrRecipientUnreachable)
	sender := &flakySender{fail: map[int64][]error{
		10: {fmt.Errorf("send: %w", store.ErrTransientDelivery)},
		11: {gone, gone, gone},
	}}
	d := NewDigest(cache, mem, sender, func() []int64 { return []int64{10, 11, 12} }, time.UTC)
	d.retry = RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	err := d.Run(ctx)
	if err == nil || !IsPermanent(err) {
		t.Fatalf("Run error = %v, want permanent failure", err)
	}
	if len(sender.sent[10]) != 1 || len(sender.sent[12]) != 1 {
		t.Errorf("sent = %v, want one digest each for 10 and 12", sender.sent)
	}
	if len(sender.fail[11]) != 2 {
		t.Errorf("unreachable recipient retried: %d failures left", len(sender.fail[11]))
	}
	if errors.Is(err, store.ErrRecipientUnreachable) {
		t.Error("job error should summarize, not carry a single delivery error")
	}
}

func TestDigestSkippedWhenIdle(t *testing.T) {
	mem := storetest.New()
	cache := state.New(mem, mem, state.StatusIdle)
	sender := &recordingSender{}
	d := NewDigest(cache, mem, sender, func() []int64 { return []int64{10} }, nil)

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Error("digest sent while idle")
	}
}

func TestFormatDigestEmpty(t *testing.T) {
	got := FormatDigest(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), nil, func(id string) string { return id })
	if got != "📋 Daily UPS report 01/06/2026\nNo events today." {
		t.Errorf("got %q", got)
	}
}
