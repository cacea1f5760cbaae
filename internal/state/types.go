package state

import "time"

// Status is the process-wide operational flag.
type Status string

const (
	StatusRunning Status = "running"
	StatusIdle    Status = "idle"
	StatusError   Status = "error"
)

// ParseStatus validates a status name from config or a command.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusRunning, StatusIdle, StatusError:
		return Status(s), true
	}
	return "", false
}

// ConversationKind names the multi-step command a conversation collects input for.
type ConversationKind string

const (
	KindNewDevice    ConversationKind = "NEW_DEVICE"
	KindDeleteDevice ConversationKind = "DELETE_DEVICE"
	KindUpdateDevice ConversationKind = "UPDATE_DEVICE"
	KindSubscribe    ConversationKind = "SUBSCRIBE"
	KindUnsubscribe  ConversationKind = "UNSUBSCRIBE"
	KindStatusQuery  ConversationKind = "STATUS_QUERY"
)

// Conversation is the transient input-collection state of one chat.
// It is never persisted.
type Conversation struct {
	ChatID    int64            `json:"chat_id"`
	IssuedBy  int64            `json:"issued_by"`
	Kind      ConversationKind `json:"kind"`
	Inputs    []string         `json:"inputs"`
	StartedAt time.Time        `json:"started_at"`
}

// Step is the index of the next input to collect.
func (c Conversation) Step() int {
	return len(c.Inputs)
}

func (c Conversation) clone() Conversation {
	c.Inputs = append([]string{}, c.Inputs...)
	return c
}
