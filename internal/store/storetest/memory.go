// Package storetest provides in-memory store implementations with failure
// injection for tests of the packages built on top of the store layer.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/upsrelay/internal/store"
)

// Memory implements store.DeviceStore, store.GroupStore and store.EventLog.
// Setting Err makes every call fail with it until cleared.
type Memory struct {
	mu      sync.Mutex
	devices map[string]store.Device
	groups  map[int64]store.Group
	events  []store.EventRecord

	Err error
}

func New() *Memory {
	return &Memory{
		devices: make(map[string]store.Device),
		groups:  make(map[int64]store.Group),
	}
}

// Stores wraps m as a store.Stores bundle.
func (m *Memory) Stores() *store.Stores {
	return store.NewStores(m, m, m, nil)
}

// SetErr sets or clears the injected failure.
func (m *Memory) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

func (m *Memory) fail(op string) error {
	if m.Err != nil {
		return fmt.Errorf("%s: %w: %w", op, store.ErrStoreUnavailable, m.Err)
	}
	return nil
}

// --- devices ---

func (m *Memory) ListDevices(_ context.Context) ([]store.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list devices"); err != nil {
		return nil, err
	}
	out := make([]store.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateDevice(_ context.Context, d store.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("create device"); err != nil {
		return err
	}
	if _, ok := m.devices[d.ID]; ok {
		return fmt.Errorf("device %s: %w", d.ID, store.ErrDuplicateEntity)
	}
	m.devices[d.ID] = d
	return nil
}

func (m *Memory) UpdateDeviceLocation(_ context.Context, id, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("update device"); err != nil {
		return err
	}
	d, ok := m.devices[id]
	if !ok {
		return fmt.Errorf("device %s: %w", id, store.ErrNotFound)
	}
	d.Location = location
	m.devices[id] = d
	return nil
}

func (m *Memory) DeleteDevice(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete device"); err != nil {
		return err
	}
	delete(m.devices, id)
	return nil
}

func (m *Memory) DeleteAllDevices(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete all devices"); err != nil {
		return err
	}
	m.devices = make(map[string]store.Device)
	return nil
}

// --- groups ---

func (m *Memory) ListGroups(_ context.Context) ([]store.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list groups"); err != nil {
		return nil, err
	}
	out := make([]store.Group, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, copyGroup(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out, nil
}

func (m *Memory) CreateGroup(_ context.Context, chatID int64) (*store.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("create group"); err != nil {
		return nil, err
	}
	g, ok := m.groups[chatID]
	if !ok {
		g = store.Group{ChatID: chatID, DeviceIDs: []string{}, CreatedAt: time.Now()}
		m.groups[chatID] = g
	}
	out := copyGroup(g)
	return &out, nil
}

func (m *Memory) SetGroupDevices(_ context.Context, chatID int64, deviceIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("update group subscriptions"); err != nil {
		return err
	}
	g, ok := m.groups[chatID]
	if !ok {
		return fmt.Errorf("group %d: %w", chatID, store.ErrNotFound)
	}
	g.DeviceIDs = append([]string{}, deviceIDs...)
	m.groups[chatID] = g
	return nil
}

func (m *Memory) DeleteGroup(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete group"); err != nil {
		return err
	}
	delete(m.groups, chatID)
	return nil
}

// Group returns the stored group, for assertions.
func (m *Memory) Group(chatID int64) (store.Group, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[chatID]
	return copyGroup(g), ok
}

func copyGroup(g store.Group) store.Group {
	g.DeviceIDs = append([]string{}, g.DeviceIDs...)
	return g
}

// --- events ---

func (m *Memory) RecordEvent(_ context.Context, rec store.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("record event"); err != nil {
		return err
	}
	if rec.ID == uuid.Nil {
		rec.ID = store.GenNewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.events = append(m.events, rec)
	return nil
}

func (m *Memory) LastEvent(_ context.Context, deviceID string) (*store.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("last event"); err != nil {
		return nil, err
	}
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].DeviceID == deviceID {
			rec := m.events[i]
			return &rec, nil
		}
	}
	return nil, fmt.Errorf("events for device %s: %w", deviceID, store.ErrNotFound)
}

func (m *Memory) LastEvents(_ context.Context, limit int) ([]store.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("last events"); err != nil {
		return nil, err
	}
	var out []store.EventRecord
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

func (m *Memory) EventsSince(_ context.Context, since time.Time) ([]store.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("events since"); err != nil {
		return nil, err
	}
	var out []store.EventRecord
	for _, rec := range m.events {
		if !rec.CreatedAt.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Events returns a copy of every recorded event.
func (m *Memory) Events() []store.EventRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.EventRecord{}, m.events...)
}
