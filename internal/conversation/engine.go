// Package conversation drives the multi-step admin commands that collect
// input across several chat messages before committing to the state cache.
//
// Every chat has at most one pending conversation. Only the user who
// started it can feed it; messages from anyone else in the chat fall
// through untouched.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/upsrelay/internal/state"
	"github.com/nextlevelbuilder/upsrelay/internal/store"
)

// SelectAll is the wildcard selection payload.
const SelectAll = "all"

// Choice is one button of a pre-enumerated selection.
type Choice struct {
	Label string
	Value string
}

// Channel is the outbound side of a chat platform.
type Channel interface {
	Send(ctx context.Context, chatID int64, text string) error
	SendChoices(ctx context.Context, chatID int64, text string, choices []Choice) error
}

// Engine consumes inbound text and selections for pending conversations.
type Engine struct {
	cache   *state.Cache
	events  store.EventLog
	channel Channel
}

func NewEngine(cache *state.Cache, events store.EventLog, channel Channel) *Engine {
	return &Engine{cache: cache, events: events, channel: channel}
}

// Start begins a conversation of the given kind and emits its first prompt.
// If the chat already has a pending conversation the user is told so and
// store.ErrConversationInProgress is returned.
func (e *Engine) Start(ctx context.Context, chatID, userID int64, kind state.ConversationKind) error {
	if existing, ok := e.cache.Conversation(chatID); ok {
		_ = e.channel.Send(ctx, chatID, fmt.Sprintf(msgInProgress, commandFor(existing.Kind)))
		return store.ErrConversationInProgress
	}

	choices, empty := e.initialChoices(chatID, kind)
	if empty != "" {
		return e.channel.Send(ctx, chatID, empty)
	}

	existing, err := e.cache.BeginConversation(chatID, userID, kind)
	if err != nil {
		if errors.Is(err, store.ErrConversationInProgress) {
			_ = e.channel.Send(ctx, chatID, fmt.Sprintf(msgInProgress, commandFor(existing.Kind)))
		}
		return err
	}

	slog.Debug("conversation started", "chat_id", chatID, "user_id", userID, "kind", kind)
	if choices != nil {
		return e.channel.SendChoices(ctx, chatID, firstPrompt(kind), choices)
	}
	return e.channel.Send(ctx, chatID, firstPrompt(kind))
}

// Cancel ends the caller's pending conversation. It reports whether
// there was one to cancel.
func (e *Engine) Cancel(ctx context.Context, chatID, userID int64) bool {
	conv, ok := e.cache.Conversation(chatID)
	if !ok || conv.IssuedBy != userID {
		_ = e.channel.Send(ctx, chatID, msgNothingToCancel)
		return false
	}
	e.cache.EndConversation(chatID)
	_ = e.channel.Send(ctx, chatID, msgCancelled)
	return true
}

// HandleMessage feeds free text to the pending conversation of (chatID,
// userID). It reports whether the message was consumed; false means the
// caller should treat the message as unrelated.
func (e *Engine) HandleMessage(ctx context.Context, chatID, userID int64, text string) bool {
	conv, ok := e.pending(chatID, userID)
	if !ok {
		return false
	}
	text = strings.TrimSpace(text)

	switch conv.Kind {
	case state.KindNewDevice:
		e.newDeviceStep(ctx, conv, text)
	case state.KindUpdateDevice:
		if conv.Step() == 0 {
			_ = e.channel.Send(ctx, chatID, msgPickFromList)
			return true
		}
		e.updateDeviceStep(ctx, conv, text)
	case state.KindSubscribe, state.KindUnsubscribe:
		e.subscriptionStep(ctx, conv, text)
	default:
		// selection-only conversations ignore free text
		_ = e.channel.Send(ctx, chatID, msgPickFromList)
	}
	return true
}

// HandleSelection feeds a pre-enumerated choice (device id or SelectAll)
// to the pending conversation of (chatID, userID). It reports whether the
// selection belonged to that conversation.
func (e *Engine) HandleSelection(ctx context.Context, chatID, userID int64, value string) bool {
	conv, ok := e.pending(chatID, userID)
	if !ok {
		return false
	}

	switch conv.Kind {
	case state.KindDeleteDevice:
		e.deleteDeviceStep(ctx, conv, value)
	case state.KindUpdateDevice:
		if conv.Step() != 0 {
			_ = e.channel.Send(ctx, chatID, fmt.Sprintf(msgAskNewLocation, conv.Inputs[0]))
			return true
		}
		e.updateDeviceStep(ctx, conv, value)
	case state.KindSubscribe, state.KindUnsubscribe:
		e.subscriptionStep(ctx, conv, value)
	case state.KindStatusQuery:
		e.statusQueryStep(ctx, conv, value)
	default:
		_ = e.channel.Send(ctx, chatID, firstPrompt(conv.Kind))
	}
	return true
}

func (e *Engine) pending(chatID, userID int64) (state.Conversation, bool) {
	conv, ok := e.cache.Conversation(chatID)
	if !ok || conv.IssuedBy != userID {
		return state.Conversation{}, false
	}
	return conv, true
}

// finish ends the conversation and reports the commit outcome to the chat.
func (e *Engine) finish(ctx context.Context, conv state.Conversation, ok string, err error) {
	e.cache.EndConversation(conv.ChatID)
	if err != nil {
		slog.Warn("conversation commit failed",
			"chat_id", conv.ChatID, "user_id", conv.IssuedBy, "kind", conv.Kind, "error", err)
		_ = e.channel.Send(ctx, conv.ChatID, FormatError(err))
		return
	}
	slog.Info("conversation committed", "chat_id", conv.ChatID, "user_id", conv.IssuedBy, "kind", conv.Kind)
	_ = e.channel.Send(ctx, conv.ChatID, ok)
}

// reprompt keeps the conversation at its current step.
func (e *Engine) reprompt(ctx context.Context, chatID int64, reason error, prompt string) {
	slog.Debug("conversation input rejected", "chat_id", chatID, "error", reason)
	_ = e.channel.Send(ctx, chatID, FormatError(reason)+"\n"+prompt)
}

func (e *Engine) initialChoices(chatID int64, kind state.ConversationKind) ([]Choice, string) {
	switch kind {
	case state.KindNewDevice:
		return nil, ""
	case state.KindUnsubscribe:
		g, ok := e.cache.Group(chatID)
		if !ok || len(g.DeviceIDs) == 0 {
			return nil, msgNoSubscriptions
		}
		out := make([]Choice, 0, len(g.DeviceIDs)+1)
		for _, id := range g.DeviceIDs {
			out = append(out, Choice{Label: deviceLabel(id, e.cache.Location(id)), Value: id})
		}
		return append(out, Choice{Label: "All", Value: SelectAll}), ""
	}

	devices := e.cache.Devices()
	if len(devices) == 0 {
		return nil, msgNoDevices
	}
	out := make([]Choice, 0, len(devices)+1)
	for _, d := range devices {
		out = append(out, Choice{Label: deviceLabel(d.ID, d.Location), Value: d.ID})
	}
	if kind == state.KindDeleteDevice || kind == state.KindSubscribe {
		out = append(out, Choice{Label: "All", Value: SelectAll})
	}
	return out, ""
}

func deviceLabel(id, location string) string {
	if location == "" || location == id {
		return id
	}
	return id + " - " + location
}
