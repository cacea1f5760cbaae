// Package state holds the process-wide mirror of the persistent store plus
// the transient conversation state.
//
// Every mutation persists first and updates memory only after the store
// call succeeded, so a failed write never shows up in the cache. Mutations
// are serialized by a single lock; readers never block on store I/O.
package state

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/upsrelay/internal/store"
)

type group struct {
	deviceIDs map[string]struct{}
	createdAt time.Time
}

func (g *group) toStore(chatID int64) store.Group {
	ids := slices.Sorted(maps.Keys(g.deviceIDs))
	if ids == nil {
		ids = []string{}
	}
	return store.Group{ChatID: chatID, DeviceIDs: ids, CreatedAt: g.createdAt}
}

// Cache is the single in-process authority for devices, groups,
// conversations and the system status.
type Cache struct {
	devicesStore store.DeviceStore
	groupsStore  store.GroupStore

	writeMu sync.Mutex // serializes persist+apply sequences
	mu      sync.RWMutex

	devices       map[string]store.Device
	groups        map[int64]*group
	conversations map[int64]*Conversation
	status        Status
}

// New creates an empty cache. Call Hydrate before serving traffic.
func New(devices store.DeviceStore, groups store.GroupStore, initial Status) *Cache {
	if _, ok := ParseStatus(string(initial)); !ok {
		initial = StatusRunning
	}
	return &Cache{
		devicesStore:  devices,
		groupsStore:   groups,
		devices:       make(map[string]store.Device),
		groups:        make(map[int64]*group),
		conversations: make(map[int64]*Conversation),
		status:        initial,
	}
}

// Hydrate loads all groups and devices from the store. On failure the
// caches stay empty, the status becomes error and the error is returned
// for logging; the process is expected to keep running.
func (c *Cache) Hydrate(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	groups, err := c.groupsStore.ListGroups(ctx)
	if err == nil {
		var devices []store.Device
		devices, err = c.devicesStore.ListDevices(ctx)
		if err == nil {
			c.mu.Lock()
			c.devices = make(map[string]store.Device, len(devices))
			for _, d := range devices {
				c.devices[d.ID] = d
			}
			c.groups = make(map[int64]*group, len(groups))
			for _, g := range groups {
				set := make(map[string]struct{}, len(g.DeviceIDs))
				for _, id := range g.DeviceIDs {
					set[id] = struct{}{}
				}
				c.groups[g.ChatID] = &group{deviceIDs: set, createdAt: g.CreatedAt}
			}
			c.mu.Unlock()
			slog.Info("state hydrated", "devices", len(devices), "groups", len(groups))
			return nil
		}
	}

	c.mu.Lock()
	c.devices = make(map[string]store.Device)
	c.groups = make(map[int64]*group)
	c.status = StatusError
	c.mu.Unlock()
	slog.Error("state hydration failed", "error", err)
	return fmt.Errorf("hydrate state: %w", err)
}

// --- system status ---

func (c *Cache) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Cache) SetStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != s {
		slog.Info("system status changed", "from", c.status, "to", s)
	}
	c.status = s
}

// --- devices ---

// Device returns a device by id.
func (c *Cache) Device(id string) (store.Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.devices[id]
	return d, ok
}

// Devices returns all devices ordered by creation time.
func (c *Cache) Devices() []store.Device {
	c.mu.RLock()
	out := make([]store.Device, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Location returns the display location of a device, or the raw id when unknown.
func (c *Cache) Location(id string) string {
	if d, ok := c.Device(id); ok && d.Location != "" {
		return d.Location
	}
	return id
}

// AddDevice persists a new device and then caches it.
func (c *Cache) AddDevice(ctx context.Context, id, location string) (store.Device, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, ok := c.Device(id); ok {
		return store.Device{}, fmt.Errorf("device %s: %w", id, store.ErrDuplicateEntity)
	}

	d := store.Device{ID: id, Location: location, CreatedAt: time.Now().UTC()}
	if err := c.devicesStore.CreateDevice(ctx, d); err != nil {
		return store.Device{}, err
	}

	c.mu.Lock()
	c.devices[id] = d
	c.mu.Unlock()
	return d, nil
}

// UpdateDeviceLocation persists and caches a new location.
func (c *Cache) UpdateDeviceLocation(ctx context.Context, id, location string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	d, ok := c.Device(id)
	if !ok {
		return fmt.Errorf("device %s: %w", id, store.ErrNotFound)
	}
	if err := c.devicesStore.UpdateDeviceLocation(ctx, id, location); err != nil {
		return err
	}

	d.Location = location
	c.mu.Lock()
	c.devices[id] = d
	c.mu.Unlock()
	return nil
}

// DeleteDevice removes one device. Group subscriptions are left untouched.
func (c *Cache) DeleteDevice(ctx context.Context, id string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, ok := c.Device(id); !ok {
		return fmt.Errorf("device %s: %w", id, store.ErrNotFound)
	}
	if err := c.devicesStore.DeleteDevice(ctx, id); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.devices, id)
	c.mu.Unlock()
	return nil
}

// DeleteAllDevices removes every device. Group subscriptions are left untouched.
func (c *Cache) DeleteAllDevices(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.devicesStore.DeleteAllDevices(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.devices = make(map[string]store.Device)
	c.mu.Unlock()
	return nil
}

// --- groups ---

// Group returns a copy of a group.
func (c *Cache) Group(chatID int64) (store.Group, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.groups[chatID]
	if !ok {
		return store.Group{}, false
	}
	return g.toStore(chatID), true
}

// Groups returns copies of all groups ordered by chat id.
func (c *Cache) Groups() []store.Group {
	c.mu.RLock()
	out := make([]store.Group, 0, len(c.groups))
	for chatID, g := range c.groups {
		out = append(out, g.toStore(chatID))
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}

// SubscribersOf returns the chat ids of every group subscribed to deviceID.
func (c *Cache) SubscribersOf(deviceID string) []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []int64
	for chatID, g := range c.groups {
		if _, ok := g.deviceIDs[deviceID]; ok {
			out = append(out, chatID)
		}
	}
	slices.Sort(out)
	return out
}

// SubscribeGroup adds deviceIDs to a chat's subscriptions, creating the
// group record on first use.
func (c *Cache) SubscribeGroup(ctx context.Context, chatID int64, deviceIDs []string) (store.Group, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	existing, ok := c.groups[chatID]
	var createdAt time.Time
	merged := make(map[string]struct{})
	if ok {
		createdAt = existing.createdAt
		for id := range existing.deviceIDs {
			merged[id] = struct{}{}
		}
	}
	c.mu.RUnlock()

	if !ok {
		created, err := c.groupsStore.CreateGroup(ctx, chatID)
		if err != nil {
			return store.Group{}, err
		}
		createdAt = created.CreatedAt
		// The store may already hold a record the cache lost track of.
		for _, id := range created.DeviceIDs {
			merged[id] = struct{}{}
		}
		c.mu.Lock()
		c.groups[chatID] = &group{deviceIDs: copySet(merged), createdAt: createdAt}
		c.mu.Unlock()
	}

	for _, id := range deviceIDs {
		merged[id] = struct{}{}
	}
	if err := c.groupsStore.SetGroupDevices(ctx, chatID, slices.Sorted(maps.Keys(merged))); err != nil {
		return store.Group{}, err
	}

	g := &group{deviceIDs: merged, createdAt: createdAt}
	c.mu.Lock()
	c.groups[chatID] = g
	c.mu.Unlock()
	return g.toStore(chatID), nil
}

// UnsubscribeGroup removes deviceIDs from a chat's subscriptions. It is a
// no-op when the chat has no group; the group record itself is kept even
// when its set becomes empty.
func (c *Cache) UnsubscribeGroup(ctx context.Context, chatID int64, deviceIDs []string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	existing, ok := c.groups[chatID]
	var reduced map[string]struct{}
	var createdAt time.Time
	if ok {
		reduced = copySet(existing.deviceIDs)
		createdAt = existing.createdAt
	}
	c.mu.RUnlock()
	if !ok {
		return nil
	}

	for _, id := range deviceIDs {
		delete(reduced, id)
	}
	if err := c.groupsStore.SetGroupDevices(ctx, chatID, slices.Sorted(maps.Keys(reduced))); err != nil {
		return err
	}

	c.mu.Lock()
	c.groups[chatID] = &group{deviceIDs: reduced, createdAt: createdAt}
	c.mu.Unlock()
	return nil
}

// DeleteGroup removes a group from the store and the cache.
func (c *Cache) DeleteGroup(ctx context.Context, chatID int64) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.groupsStore.DeleteGroup(ctx, chatID); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.groups, chatID)
	c.mu.Unlock()
	return nil
}

func copySet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

// --- conversations ---

// BeginConversation starts a conversation for chatID. It fails with
// store.ErrConversationInProgress if one is already pending for the chat.
func (c *Cache) BeginConversation(chatID, userID int64, kind ConversationKind) (Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.conversations[chatID]; ok {
		return existing.clone(), fmt.Errorf("chat %d (%s): %w", chatID, existing.Kind, store.ErrConversationInProgress)
	}
	conv := &Conversation{
		ChatID:    chatID,
		IssuedBy:  userID,
		Kind:      kind,
		Inputs:    []string{},
		StartedAt: time.Now(),
	}
	c.conversations[chatID] = conv
	return conv.clone(), nil
}

// Conversation returns a copy of the pending conversation of a chat.
func (c *Cache) Conversation(chatID int64) (Conversation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conv, ok := c.conversations[chatID]
	if !ok {
		return Conversation{}, false
	}
	return conv.clone(), true
}

// AppendConversationInput records a validated input. No-op without a pending conversation.
func (c *Cache) AppendConversationInput(chatID int64, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conv, ok := c.conversations[chatID]; ok {
		conv.Inputs = append(conv.Inputs, value)
	}
}

// EndConversation drops the pending conversation of a chat. Idempotent.
func (c *Cache) EndConversation(chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conversations, chatID)
}

// Conversations returns copies of all pending conversations.
func (c *Cache) Conversations() []Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Conversation, 0, len(c.conversations))
	for _, conv := range c.conversations {
		out = append(out, conv.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}
