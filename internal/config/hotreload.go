package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 300 * time.Millisecond

// ChangeHandler receives the reloaded config when a hot-reloadable field
// (admin ids, creator ids, digest schedule) changed.
type ChangeHandler func(cfg *Config)

// Watcher reloads the config file when it is written.
type Watcher struct {
	path    string
	fsw     *fsnotify.Watcher
	stop    chan struct{}
	stopped sync.Once

	mu       sync.Mutex
	handlers []ChangeHandler
	last     reloadable
}

// reloadable is the part of the config applied without a restart.
type reloadable struct {
	admins   []int64
	creators []int64
	schedule string
}

func reloadableOf(c *Config) reloadable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return reloadable{
		admins:   slices.Clone(c.Telegram.AdminIDs),
		creators: slices.Clone(c.Telegram.CreatorIDs),
		schedule: c.Digest.Schedule,
	}
}

func (r reloadable) equal(o reloadable) bool {
	return r.schedule == o.schedule && slices.Equal(r.admins, o.admins) && slices.Equal(r.creators, o.creators)
}

// NewWatcher creates a watcher for configPath. The file's current content
// is the baseline; only later changes reach the handlers.
func NewWatcher(configPath string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	w := &Watcher{
		path: filepath.Clean(ExpandHome(configPath)),
		fsw:  fsw,
		stop: make(chan struct{}),
	}
	if cur, err := Load(w.path); err == nil {
		w.last = reloadableOf(cur)
	}
	return w, nil
}

// OnChange registers a handler.
func (w *Watcher) OnChange(h ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Start watches the parent directory, so editors that replace the file on
// save are still seen.
func (w *Watcher) Start() error {
	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", w.path, err)
	}
	go w.loop()
	slog.Info("config watcher started", "path", w.path)
	return nil
}

// Stop ends watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopped.Do(func() {
		close(w.stop)
		w.fsw.Close()
	})
}

func (w *Watcher) loop() {
	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(reloadDebounce, w.reload)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load(w.path)
	if err != nil {
		slog.Error("config reload failed, keeping current settings", "path", w.path, "error", err)
		return
	}
	if expr := next.Digest.Schedule; expr != "" && !gronx.New().IsValid(expr) {
		slog.Error("config reload rejected", "path", w.path, "digest", expr)
		return
	}

	cur := reloadableOf(next)
	w.mu.Lock()
	if cur.equal(w.last) {
		w.mu.Unlock()
		slog.Debug("config changed, nothing to reload", "path", w.path)
		return
	}
	w.last = cur
	handlers := slices.Clone(w.handlers)
	w.mu.Unlock()

	for _, h := range handlers {
		h(next)
	}
}
