package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nextlevelbuilder/upsrelay/pkg/protocol"
)

func testEvent(msg string) Event {
	return Event{
		DeviceID:  "1223455",
		Severity:  protocol.SeverityWarning,
		Message:   msg,
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Source:    SourceWebhook,
	}
}

func TestPublishConsume(t *testing.T) {
	b := New()
	ctx := context.Background()

	if err := b.PublishEvent(ctx, testEvent("on battery")); err != nil {
		t.Fatalf("PublishEvent: %v", err)
	}
	ev, ok := b.ConsumeEvent(ctx)
	if !ok || ev.Message != "on battery" {
		t.Fatalf("consumed %+v, %v", ev, ok)
	}
}

func TestPublishDropsDuplicates(t *testing.T) {
	b := New()
	ctx := context.Background()

	if err := b.PublishEvent(ctx, testEvent("a")); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := b.PublishEvent(ctx, testEvent("a")); !errors.Is(err, ErrDuplicateEvent) {
		t.Errorf("duplicate publish err = %v", err)
	}
	if err := b.PublishEvent(ctx, testEvent("b")); err != nil {
		t.Errorf("distinct event rejected: %v", err)
	}
	if b.Pending() != 2 {
		t.Errorf("pending = %d, want 2", b.Pending())
	}
}

func TestPublishFullQueueForgetsKey(t *testing.T) {
	b := NewWithSize(1)
	_ = b.PublishEvent(context.Background(), testEvent("first"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.PublishEvent(ctx, testEvent("second")); !errors.Is(err, context.Canceled) {
		t.Fatalf("publish on full queue err = %v", err)
	}

	_, _ = b.ConsumeEvent(context.Background())
	if err := b.PublishEvent(context.Background(), testEvent("second")); err != nil {
		t.Errorf("retry after drop: %v", err)
	}
}

func TestConsumeCancelled(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := b.ConsumeEvent(ctx); ok {
		t.Error("consume returned an event on cancelled ctx")
	}
}

func TestDedupeCacheExpiry(t *testing.T) {
	d := NewDedupeCache(time.Millisecond, 0)
	if d.IsDuplicate("k") {
		t.Fatal("first sighting reported duplicate")
	}
	if !d.IsDuplicate("k") {
		t.Fatal("second sighting not duplicate")
	}
	time.Sleep(5 * time.Millisecond)
	if d.IsDuplicate("k") {
		t.Error("expired key still duplicate")
	}
}

func TestDedupeCacheMaxSize(t *testing.T) {
	d := NewDedupeCache(time.Hour, 3)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		d.IsDuplicate(k)
	}
	if d.Len() > 3 {
		t.Errorf("len = %d, want <= 3", d.Len())
	}
}
