package conversation

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/upsrelay/internal/state"
	"github.com/nextlevelbuilder/upsrelay/internal/store"
)

const (
	msgAskDeviceID       = "Please enter the ID of the UPS"
	msgAskLocation       = "Please enter the location of the UPS %s"
	msgAskNewLocation    = "Please enter the new location of the UPS %s"
	msgAskDelete         = "Select the UPS to delete"
	msgAskUpdate         = "Select the UPS to update"
	msgAskSubscribe      = "Select the UPS to subscribe to, or send a comma separated list of IDs"
	msgAskUnsubscribe    = "Select the UPS to unsubscribe from, or send a comma separated list of IDs"
	msgAskStatus         = "Select the UPS"
	msgPickFromList      = "Please pick one of the options above"
	msgDeviceAdded       = "✅ UPS %s added at %s"
	msgDeviceUpdated     = "✅ UPS %s moved to %s"
	msgDeviceDeleted     = "🗑️ UPS %s deleted"
	msgAllDevicesDeleted = "🗑️ All UPS deleted"
	msgSubscribed        = "🔔 This group is now subscribed to: %s"
	msgUnsubscribed      = "🔕 This group is no longer subscribed to: %s"
	msgNoEvents          = "No messages recorded for UPS %s yet"
	msgNoDevices         = "No UPS registered. Use /addups first."
	msgNoSubscriptions   = "This group has no subscriptions."
	msgInProgress        = "⏳ Please finish %s first, or send /cancel."
	msgCancelled         = "Cancelled."
	msgNothingToCancel   = "Nothing to cancel."
)

func firstPrompt(kind state.ConversationKind) string {
	switch kind {
	case state.KindNewDevice:
		return msgAskDeviceID
	case state.KindDeleteDevice:
		return msgAskDelete
	case state.KindUpdateDevice:
		return msgAskUpdate
	case state.KindSubscribe:
		return msgAskSubscribe
	case state.KindUnsubscribe:
		return msgAskUnsubscribe
	default:
		return msgAskStatus
	}
}

// commandFor maps a conversation kind back to the command that starts it.
func commandFor(kind state.ConversationKind) string {
	switch kind {
	case state.KindNewDevice:
		return "/addups"
	case state.KindDeleteDevice:
		return "/deleteups"
	case state.KindUpdateDevice:
		return "/updateups"
	case state.KindSubscribe:
		return "/subscribegroup"
	case state.KindUnsubscribe:
		return "/unsubscribegroup"
	default:
		return "/getlastupsmessage"
	}
}

// FormatError turns an error into chat-safe text. Driver errors never
// reach the chat; unknown errors get a generic message.
func FormatError(err error) string {
	switch {
	case errors.Is(err, store.ErrValidationFailed):
		return "⚠️ Invalid input: " + validationDetail(err)
	case errors.Is(err, store.ErrDuplicateEntity):
		return "⚠️ That UPS is already registered."
	case errors.Is(err, store.ErrNotFound):
		return "⚠️ Unknown UPS."
	case errors.Is(err, store.ErrConversationInProgress):
		return "⏳ Another command is still waiting for input. Finish it or send /cancel."
	case errors.Is(err, store.ErrStoreUnavailable):
		return "😰 An error occurred: the database is unavailable. Please try again later."
	}
	slog.Warn("unclassified command error", "error", err)
	return "😰 An error occurred. Please try again."
}

// validationDetail strips the sentinel prefix from a validation error.
func validationDetail(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, store.ErrValidationFailed.Error()+": "); i >= 0 {
		return msg[i+len(store.ErrValidationFailed.Error())+2:]
	}
	return msg
}
