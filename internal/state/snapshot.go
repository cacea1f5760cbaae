package state

import "github.com/nextlevelbuilder/upsrelay/internal/store"

// Snapshot is a point-in-time view of the whole cache, used by the
// /getstate admin command.
type Snapshot struct {
	Status        Status         `json:"status"`
	Devices       []store.Device `json:"devices"`
	Groups        []store.Group  `json:"groups"`
	Conversations []Conversation `json:"pending_conversations"`
}

// Snapshot copies the current state.
func (c *Cache) Snapshot() Snapshot {
	return Snapshot{
		Status:        c.Status(),
		Devices:       c.Devices(),
		Groups:        c.Groups(),
		Conversations: c.Conversations(),
	}
}
