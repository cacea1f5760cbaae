package conversation

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/nextlevelbuilder/upsrelay/internal/state"
	"github.com/nextlevelbuilder/upsrelay/internal/store"
	"github.com/nextlevelbuilder/upsrelay/internal/store/storetest"
)

type sent struct {
	chatID  int64
	text    string
	choices []Choice
}

type recordingChannel struct {
	mu   sync.Mutex
	msgs []sent
}

func (r *recordingChannel) Send(_ context.Context, chatID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{chatID: chatID, text: text})
	return nil
}

func (r *recordingChannel) SendChoices(_ context.Context, chatID int64, text string, choices []Choice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{chatID: chatID, text: text, choices: choices})
	return nil
}

func (r *recordingChannel) last() sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return sent{}
	}
	return r.msgs[len(r.msgs)-1]
}

func newEngine(t *testing.T) (*Engine, *state.Cache, *storetest.Memory, *recordingChannel) {
	t.Helper()
	mem := storetest.New()
	cache := state.New(mem, mem, state.StatusRunning)
	if err := cache.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	ch := &recordingChannel{}
	return NewEngine(cache, mem, ch), cache, mem, ch
}

func TestNewDeviceFlow(t *testing.T) {
	ctx := context.Background()
	e, cache, mem, ch := newEngine(t)

	if err := e.Start(ctx, 100, 1, state.KindNewDevice); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := ch.last().text; got != msgAskDeviceID {
		t.Fatalf("first prompt = %q", got)
	}
	if !e.HandleMessage(ctx, 100, 1, "1223455") {
		t.Fatal("id not consumed")
	}
	if !e.HandleMessage(ctx, 100, 1, "Server Room") {
		t.Fatal("location not consumed")
	}

	d, ok := cache.Device("1223455")
	if !ok || d.Location != "Server Room" {
		t.Fatalf("cached device = %+v, %v", d, ok)
	}
	stored, _ := mem.ListDevices(ctx)
	if len(stored) != 1 || stored[0].ID != "1223455" || stored[0].Location != "Server Room" {
		t.Fatalf("stored devices = %+v", stored)
	}
	if _, pending := cache.Conversation(100); pending {
		t.Error("conversation should have ended")
	}
	if !strings.Contains(ch.last().text, "1223455") {
		t.Errorf("confirmation = %q", ch.last().text)
	}
}

func TestValidationFailureReprompts(t *testing.T) {
	ctx := context.Background()
	e, cache, _, ch := newEngine(t)
	_, _ = cache.AddDevice(ctx, "42", "Lab")

	_ = e.Start(ctx, 100, 1, state.KindNewDevice)
	for _, bad := range []string{"", "abc", "42"} {
		e.HandleMessage(ctx, 100, 1, bad)
		conv, ok := cache.Conversation(100)
		if !ok || conv.Step() != 0 {
			t.Fatalf("input %q advanced the conversation: %+v", bad, conv)
		}
		if !strings.HasSuffix(ch.last().text, msgAskDeviceID) {
			t.Errorf("input %q reply = %q, want re-prompt", bad, ch.last().text)
		}
	}

	e.HandleMessage(ctx, 100, 1, "7")
	e.HandleMessage(ctx, 100, 1, "   ")
	conv, _ := cache.Conversation(100)
	if conv.Step() != 1 {
		t.Fatalf("empty location should keep step 1, got %d", conv.Step())
	}
	e.HandleMessage(ctx, 100, 1, "Basement")
	if d, ok := cache.Device("7"); !ok || d.Location != "Basement" {
		t.Fatalf("device 7 = %+v, %v", d, ok)
	}
}

func TestIsolationBetweenUsersAndChats(t *testing.T) {
	ctx := context.Background()
	e, cache, _, _ := newEngine(t)

	_ = e.Start(ctx, 100, 1, state.KindNewDevice)
	_ = e.Start(ctx, 200, 2, state.KindNewDevice)

	// user 2 talks in chat 100, user 1 talks in chat 200: both ignored
	if e.HandleMessage(ctx, 100, 2, "999") {
		t.Error("foreign user input consumed in chat 100")
	}
	if e.HandleMessage(ctx, 200, 1, "888") {
		t.Error("foreign user input consumed in chat 200")
	}
	if e.HandleSelection(ctx, 100, 2, "999") {
		t.Error("foreign selection consumed")
	}

	e.HandleMessage(ctx, 100, 1, "111")
	e.HandleMessage(ctx, 200, 2, "222")
	e.HandleMessage(ctx, 100, 3, "intruder")
	e.HandleMessage(ctx, 200, 2, "Roof")
	e.HandleMessage(ctx, 100, 1, "Cellar")

	if d, _ := cache.Device("111"); d.Location != "Cellar" {
		t.Errorf("device 111 location = %q", d.Location)
	}
	if d, _ := cache.Device("222"); d.Location != "Roof" {
		t.Errorf("device 222 location = %q", d.Location)
	}
	for _, id := range []string{"999", "888"} {
		if _, ok := cache.Device(id); ok {
			t.Errorf("device %s created from foreign input", id)
		}
	}
}

func TestStartWhilePending(t *testing.T) {
	ctx := context.Background()
	e, cache, _, ch := newEngine(t)
	_, _ = cache.AddDevice(ctx, "1", "A")

	_ = e.Start(ctx, 100, 1, state.KindNewDevice)
	e.HandleMessage(ctx, 100, 1, "5")

	err := e.Start(ctx, 100, 2, state.KindSubscribe)
	if !errors.Is(err, store.ErrConversationInProgress) {
		t.Fatalf("Start err = %v", err)
	}
	if !strings.Contains(ch.last().text, "/addups") {
		t.Errorf("reply = %q", ch.last().text)
	}
	conv, _ := cache.Conversation(100)
	if conv.Kind != state.KindNewDevice || !slices.Equal(conv.Inputs, []string{"5"}) {
		t.Errorf("existing conversation changed: %+v", conv)
	}
}

func TestStartWhilePendingWithoutDevices(t *testing.T) {
	ctx := context.Background()
	e, cache, _, ch := newEngine(t)

	_ = e.Start(ctx, 100, 1, state.KindNewDevice)
	err := e.Start(ctx, 100, 1, state.KindDeleteDevice)
	if !errors.Is(err, store.ErrConversationInProgress) {
		t.Fatalf("Start err = %v", err)
	}
	if got := ch.last().text; got == msgNoDevices || !strings.Contains(got, "/addups") {
		t.Errorf("reply = %q, want the in-progress notice", got)
	}
	if conv, _ := cache.Conversation(100); conv.Kind != state.KindNewDevice {
		t.Errorf("pending conversation replaced: %+v", conv)
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	e, cache, _, _ := newEngine(t)
	_ = e.Start(ctx, 100, 1, state.KindNewDevice)

	if e.Cancel(ctx, 100, 2) {
		t.Error("other user cancelled the conversation")
	}
	if !e.Cancel(ctx, 100, 1) {
		t.Error("issuer could not cancel")
	}
	if _, ok := cache.Conversation(100); ok {
		t.Error("conversation still pending")
	}
}

func TestDeleteDeviceSelection(t *testing.T) {
	ctx := context.Background()
	e, cache, _, ch := newEngine(t)
	_, _ = cache.AddDevice(ctx, "1", "A")
	_, _ = cache.AddDevice(ctx, "2", "B")

	_ = e.Start(ctx, 100, 1, state.KindDeleteDevice)
	choices := ch.last().choices
	if len(choices) != 3 || choices[2].Value != SelectAll {
		t.Fatalf("choices = %+v", choices)
	}

	e.HandleSelection(ctx, 100, 1, "nope")
	if _, ok := cache.Conversation(100); !ok {
		t.Fatal("unknown selection should keep the conversation")
	}
	e.HandleSelection(ctx, 100, 1, "1")
	if _, ok := cache.Device("1"); ok {
		t.Error("device 1 not deleted")
	}

	_ = e.Start(ctx, 100, 1, state.KindDeleteDevice)
	e.HandleSelection(ctx, 100, 1, SelectAll)
	if n := len(cache.Devices()); n != 0 {
		t.Errorf("devices left = %d", n)
	}
}

func TestUpdateDeviceFlow(t *testing.T) {
	ctx := context.Background()
	e, cache, _, _ := newEngine(t)
	_, _ = cache.AddDevice(ctx, "1", "A")

	_ = e.Start(ctx, 100, 1, state.KindUpdateDevice)
	e.HandleMessage(ctx, 100, 1, "1") // free text before selection is not accepted
	if conv, _ := cache.Conversation(100); conv.Step() != 0 {
		t.Fatalf("step = %d, want 0", conv.Step())
	}
	e.HandleSelection(ctx, 100, 1, "1")
	e.HandleMessage(ctx, 100, 1, "Server Room 2")

	if d, _ := cache.Device("1"); d.Location != "Server Room 2" {
		t.Errorf("location = %q", d.Location)
	}
}

func TestSubscriptionFlows(t *testing.T) {
	ctx := context.Background()
	e, cache, _, _ := newEngine(t)
	for _, id := range []string{"1", "2", "3"} {
		_, _ = cache.AddDevice(ctx, id, "loc"+id)
	}

	_ = e.Start(ctx, -100, 1, state.KindSubscribe)
	e.HandleMessage(ctx, -100, 1, "1, 3, 9")
	if _, ok := cache.Group(-100); ok {
		t.Fatal("unknown id in list should not subscribe anything")
	}
	e.HandleMessage(ctx, -100, 1, "1, 3")
	g, _ := cache.Group(-100)
	if !slices.Equal(g.DeviceIDs, []string{"1", "3"}) {
		t.Fatalf("subscriptions = %v", g.DeviceIDs)
	}

	_ = e.Start(ctx, -100, 1, state.KindSubscribe)
	e.HandleSelection(ctx, -100, 1, SelectAll)
	g, _ = cache.Group(-100)
	if !slices.Equal(g.DeviceIDs, []string{"1", "2", "3"}) {
		t.Fatalf("subscriptions after all = %v", g.DeviceIDs)
	}

	_ = e.Start(ctx, -100, 1, state.KindUnsubscribe)
	e.HandleSelection(ctx, -100, 1, "2")
	g, _ = cache.Group(-100)
	if !slices.Equal(g.DeviceIDs, []string{"1", "3"}) {
		t.Fatalf("subscriptions after unsubscribe = %v", g.DeviceIDs)
	}
}

func TestUnsubscribeWithoutGroup(t *testing.T) {
	e, cache, _, ch := newEngine(t)
	_ = e.Start(context.Background(), -5, 1, state.KindUnsubscribe)
	if _, ok := cache.Conversation(-5); ok {
		t.Error("conversation started with nothing to unsubscribe")
	}
	if ch.last().text != msgNoSubscriptions {
		t.Errorf("reply = %q", ch.last().text)
	}
}

func TestCommitFailureEndsConversation(t *testing.T) {
	ctx := context.Background()
	e, cache, mem, ch := newEngine(t)

	_ = e.Start(ctx, 100, 1, state.KindNewDevice)
	e.HandleMessage(ctx, 100, 1, "10")
	mem.SetErr(errors.New("connection reset"))
	e.HandleMessage(ctx, 100, 1, "Lab")

	if _, ok := cache.Conversation(100); ok {
		t.Error("conversation should end after failed commit")
	}
	if _, ok := cache.Device("10"); ok {
		t.Error("failed commit reflected in cache")
	}
	if strings.Contains(ch.last().text, "connection reset") {
		t.Errorf("driver error leaked to chat: %q", ch.last().text)
	}
}

func TestStatusQuery(t *testing.T) {
	ctx := context.Background()
	e, cache, mem, ch := newEngine(t)
	_, _ = cache.AddDevice(ctx, "1", "A")

	_ = e.Start(ctx, 100, 1, state.KindStatusQuery)
	e.HandleSelection(ctx, 100, 1, "1")
	if !strings.Contains(ch.last().text, "No messages") {
		t.Errorf("reply = %q", ch.last().text)
	}

	_ = mem.RecordEvent(ctx, store.EventRecord{DeviceID: "1", Severity: "warning", Message: "on battery"})
	_ = e.Start(ctx, 100, 1, state.KindStatusQuery)
	e.HandleSelection(ctx, 100, 1, "1")
	if ch.last().text != "on battery" {
		t.Errorf("reply = %q", ch.last().text)
	}
}

func TestFormatError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{store.ValidateDeviceID("x1"), "⚠️ Invalid input: device id must be numeric"},
		{store.ErrDuplicateEntity, "⚠️ That UPS is already registered."},
		{errors.New("boom"), "😰 An error occurred. Please try again."},
	}
	for _, tt := range tests {
		if got := FormatError(tt.err); got != tt.want {
			t.Errorf("FormatError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
