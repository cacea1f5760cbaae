package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/upsrelay/internal/bus"
	"github.com/nextlevelbuilder/upsrelay/internal/state"
	"github.com/nextlevelbuilder/upsrelay/internal/store"
	"github.com/nextlevelbuilder/upsrelay/internal/store/storetest"
	"github.com/nextlevelbuilder/upsrelay/pkg/protocol"
)

type fakeChannel struct {
	mu    sync.Mutex
	sent  map[int64][]string
	fails map[int64]error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{sent: make(map[int64][]string), fails: make(map[int64]error)}
}

func (f *fakeChannel) Send(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fails[chatID]; err != nil {
		return err
	}
	f.sent[chatID] = append(f.sent[chatID], text)
	return nil
}

func (f *fakeChannel) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, msgs := range f.sent {
		n += len(msgs)
	}
	return n
}

func setup(t *testing.T) (*state.Cache, *storetest.Memory, *fakeChannel) {
	t.Helper()
	mem := storetest.New()
	cache := state.New(mem, mem, state.StatusRunning)
	if err := cache.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	return cache, mem, newFakeChannel()
}

func event(deviceID string) bus.Event {
	return bus.Event{
		DeviceID:  deviceID,
		Severity:  protocol.SeverityCritical,
		Message:   "UPS on battery power",
		Timestamp: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		Source:    bus.SourceWebhook,
	}
}

func TestDispatchNoSubscribers(t *testing.T) {
	cache, mem, ch := setup(t)
	d := New(cache, mem, ch)

	rep := d.Dispatch(context.Background(), event("1"))
	if ch.total() != 0 {
		t.Errorf("sends = %d, want 0", ch.total())
	}
	if !rep.Recorded || len(mem.Events()) != 1 {
		t.Errorf("event not recorded: %+v", rep)
	}
}

func TestDispatchPrunesUnreachableGroup(t *testing.T) {
	ctx := context.Background()
	cache, mem, ch := setup(t)
	_, _ = cache.AddDevice(ctx, "1", "Server Room")
	_, _ = cache.SubscribeGroup(ctx, -1, []string{"1"})
	_, _ = cache.SubscribeGroup(ctx, -2, []string{"1"})
	ch.fails[-1] = fmt.Errorf("telegram: chat not found: %w", store.ErrRecipientUnreachable)

	rep := New(cache, mem, ch).Dispatch(ctx, event("1"))

	if !slices.Equal(rep.Pruned, []int64{-1}) || !slices.Equal(rep.Delivered, []int64{-2}) {
		t.Fatalf("report = %+v", rep)
	}
	if _, ok := cache.Group(-1); ok {
		t.Error("G1 still cached")
	}
	if _, ok := mem.Group(-1); ok {
		t.Error("G1 still stored")
	}
	if len(ch.sent[-2]) != 1 {
		t.Errorf("G2 received %d messages", len(ch.sent[-2]))
	}
}

func TestDispatchTransientFailureKeepsGroup(t *testing.T) {
	ctx := context.Background()
	cache, mem, ch := setup(t)
	_, _ = cache.SubscribeGroup(ctx, -1, []string{"1"})
	_, _ = cache.SubscribeGroup(ctx, -2, []string{"1"})
	ch.fails[-1] = fmt.Errorf("timeout: %w", store.ErrTransientDelivery)

	rep := New(cache, mem, ch).Dispatch(ctx, event("1"))

	if !slices.Equal(rep.Failed, []int64{-1}) {
		t.Errorf("failed = %v", rep.Failed)
	}
	if _, ok := cache.Group(-1); !ok {
		t.Error("group deleted on transient failure")
	}
	if len(ch.sent[-2]) != 1 {
		t.Error("G2 not notified")
	}
}

func TestDispatchWhileIdle(t *testing.T) {
	ctx := context.Background()
	cache, mem, ch := setup(t)
	_, _ = cache.SubscribeGroup(ctx, -1, []string{"1"})

	for _, status := range []state.Status{state.StatusIdle, state.StatusError} {
		cache.SetStatus(status)
		rep := New(cache, mem, ch).Dispatch(ctx, event("1"))
		if !rep.Recorded {
			t.Errorf("%s: event not recorded", status)
		}
	}
	if ch.total() != 0 {
		t.Errorf("sends = %d, want 0", ch.total())
	}
	if n := len(mem.Events()); n != 2 {
		t.Errorf("recorded = %d, want 2", n)
	}
}

func TestDispatchRecordFailureStillDelivers(t *testing.T) {
	ctx := context.Background()
	cache, _, ch := setup(t)
	_, _ = cache.SubscribeGroup(ctx, -1, []string{"1"})

	broken := storetest.New()
	broken.SetErr(errors.New("disk full"))
	rep := New(cache, broken, ch).Dispatch(ctx, event("1"))

	if rep.Recorded {
		t.Error("report claims recorded")
	}
	if len(ch.sent[-1]) != 1 {
		t.Error("delivery skipped after record failure")
	}
}

func TestDispatchOnlySubscribedGroups(t *testing.T) {
	ctx := context.Background()
	cache, mem, ch := setup(t)
	_, _ = cache.SubscribeGroup(ctx, -1, []string{"1"})
	_, _ = cache.SubscribeGroup(ctx, -2, []string{"2"})
	_, _ = cache.SubscribeGroup(ctx, -3, []string{"1", "2"})

	rep := New(cache, mem, ch, WithMaxParallel(1)).Dispatch(ctx, event("2"))
	slices.Sort(rep.Delivered)
	if !slices.Equal(rep.Delivered, []int64{-3, -2}) {
		t.Errorf("delivered = %v", rep.Delivered)
	}
	if len(ch.sent[-1]) != 0 {
		t.Error("unsubscribed group notified")
	}
}

func TestFormatMessage(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	got := FormatMessage(protocol.SeverityWarning, "1223455", "Server Room", "Power restored", ts, nil)
	want := "⚠️ *Event:* Warning\n🔌 1223455 - Server Room\nPower restored\n04/03/2026 05:06:07"
	if got != want {
		t.Errorf("FormatMessage =\n%q\nwant\n%q", got, want)
	}
}

func TestDispatchUnknownDeviceUsesRawID(t *testing.T) {
	ctx := context.Background()
	cache, mem, ch := setup(t)
	_, _ = cache.SubscribeGroup(ctx, -1, []string{"77"})

	New(cache, mem, ch).Dispatch(ctx, event("77"))
	if msgs := ch.sent[-1]; len(msgs) != 1 || !strings.Contains(msgs[0], "🔌 77 - 77") {
		t.Errorf("sent = %v", msgs)
	}
	if !strings.HasPrefix(mem.Events()[0].Message, "🚨 *Event:* Critical") {
		t.Errorf("recorded message = %q", mem.Events()[0].Message)
	}
}
