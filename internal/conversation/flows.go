package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/upsrelay/internal/state"
	"github.com/nextlevelbuilder/upsrelay/internal/store"
)

func (e *Engine) newDeviceStep(ctx context.Context, conv state.Conversation, text string) {
	switch conv.Step() {
	case 0:
		if err := store.ValidateDeviceID(text); err != nil {
			e.reprompt(ctx, conv.ChatID, err, msgAskDeviceID)
			return
		}
		if _, exists := e.cache.Device(text); exists {
			e.reprompt(ctx, conv.ChatID, fmt.Errorf("device %s: %w", text, store.ErrDuplicateEntity), msgAskDeviceID)
			return
		}
		e.cache.AppendConversationInput(conv.ChatID, text)
		_ = e.channel.Send(ctx, conv.ChatID, fmt.Sprintf(msgAskLocation, text))
	default:
		if err := store.ValidateLocation(text); err != nil {
			e.reprompt(ctx, conv.ChatID, err, fmt.Sprintf(msgAskLocation, conv.Inputs[0]))
			return
		}
		id := conv.Inputs[0]
		_, err := e.cache.AddDevice(ctx, id, text)
		e.finish(ctx, conv, fmt.Sprintf(msgDeviceAdded, id, text), err)
	}
}

func (e *Engine) updateDeviceStep(ctx context.Context, conv state.Conversation, input string) {
	switch conv.Step() {
	case 0:
		if _, ok := e.cache.Device(input); !ok {
			e.reprompt(ctx, conv.ChatID, fmt.Errorf("device %s: %w", input, store.ErrNotFound), msgPickFromList)
			return
		}
		e.cache.AppendConversationInput(conv.ChatID, input)
		_ = e.channel.Send(ctx, conv.ChatID, fmt.Sprintf(msgAskNewLocation, input))
	default:
		id := conv.Inputs[0]
		if err := store.ValidateLocation(input); err != nil {
			e.reprompt(ctx, conv.ChatID, err, fmt.Sprintf(msgAskNewLocation, id))
			return
		}
		err := e.cache.UpdateDeviceLocation(ctx, id, input)
		e.finish(ctx, conv, fmt.Sprintf(msgDeviceUpdated, id, input), err)
	}
}

func (e *Engine) deleteDeviceStep(ctx context.Context, conv state.Conversation, value string) {
	if value == SelectAll {
		e.finish(ctx, conv, msgAllDevicesDeleted, e.cache.DeleteAllDevices(ctx))
		return
	}
	if _, ok := e.cache.Device(value); !ok {
		e.reprompt(ctx, conv.ChatID, fmt.Errorf("device %s: %w", value, store.ErrNotFound), msgPickFromList)
		return
	}
	e.finish(ctx, conv, fmt.Sprintf(msgDeviceDeleted, value), e.cache.DeleteDevice(ctx, value))
}

func (e *Engine) subscriptionStep(ctx context.Context, conv state.Conversation, input string) {
	ids, err := e.resolveDeviceList(conv, input)
	if err != nil {
		e.reprompt(ctx, conv.ChatID, err, firstPrompt(conv.Kind))
		return
	}

	if conv.Kind == state.KindSubscribe {
		_, err = e.cache.SubscribeGroup(ctx, conv.ChatID, ids)
		e.finish(ctx, conv, fmt.Sprintf(msgSubscribed, strings.Join(ids, ", ")), err)
		return
	}
	err = e.cache.UnsubscribeGroup(ctx, conv.ChatID, ids)
	e.finish(ctx, conv, fmt.Sprintf(msgUnsubscribed, strings.Join(ids, ", ")), err)
}

// resolveDeviceList expands SelectAll and checks a comma separated list
// against the devices the conversation may act on.
func (e *Engine) resolveDeviceList(conv state.Conversation, input string) ([]string, error) {
	known := make(map[string]struct{})
	var all []string
	if conv.Kind == state.KindUnsubscribe {
		g, _ := e.cache.Group(conv.ChatID)
		for _, id := range g.DeviceIDs {
			known[id] = struct{}{}
			all = append(all, id)
		}
	} else {
		for _, d := range e.cache.Devices() {
			known[d.ID] = struct{}{}
			all = append(all, d.ID)
		}
	}

	if strings.EqualFold(strings.TrimSpace(input), SelectAll) {
		if len(all) == 0 {
			return nil, fmt.Errorf("no devices: %w", store.ErrNotFound)
		}
		return all, nil
	}

	var ids []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(input, ",") {
		id := strings.TrimSpace(part)
		if id == "" {
			continue
		}
		if _, ok := known[id]; !ok {
			return nil, fmt.Errorf("device %s: %w", id, store.ErrNotFound)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("empty device list: %w", store.ErrValidationFailed)
	}
	return ids, nil
}

func (e *Engine) statusQueryStep(ctx context.Context, conv state.Conversation, value string) {
	if _, ok := e.cache.Device(value); !ok {
		e.reprompt(ctx, conv.ChatID, fmt.Errorf("device %s: %w", value, store.ErrNotFound), msgPickFromList)
		return
	}
	e.cache.EndConversation(conv.ChatID)

	rec, err := e.events.LastEvent(ctx, value)
	switch {
	case errors.Is(err, store.ErrNotFound):
		_ = e.channel.Send(ctx, conv.ChatID, fmt.Sprintf(msgNoEvents, value))
	case err != nil:
		_ = e.channel.Send(ctx, conv.ChatID, FormatError(err))
	default:
		_ = e.channel.Send(ctx, conv.ChatID, rec.Message)
	}
}
