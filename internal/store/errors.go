package store

import "errors"

var (
	// ErrDuplicateEntity is returned when creating an entity whose key already exists.
	ErrDuplicateEntity = errors.New("entity already exists")

	// ErrNotFound is returned when the addressed entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConversationInProgress is returned when a chat already has a pending conversation.
	ErrConversationInProgress = errors.New("conversation already in progress")

	// ErrValidationFailed marks bad user input during a conversation step.
	ErrValidationFailed = errors.New("validation failed")

	// ErrStoreUnavailable wraps any failure of the persistent store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrRecipientUnreachable is reported by a channel when the target chat is gone
	// or the bot was removed from it.
	ErrRecipientUnreachable = errors.New("recipient unreachable")

	// ErrTransientDelivery covers every other send failure.
	ErrTransientDelivery = errors.New("delivery failed")
)
