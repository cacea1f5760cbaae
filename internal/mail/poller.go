// Package mail polls an IMAP mailbox for UPS notification mails and turns
// them into device events.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/upsrelay/internal/bus"
	"github.com/nextlevelbuilder/upsrelay/internal/state"
)

var nowFunc = time.Now

// ErrAlreadyRunning is returned by Start when polling is active.
var ErrAlreadyRunning = errors.New("imap poller already running")

// ErrNotRunning is returned by Stop when polling is not active.
var ErrNotRunning = errors.New("imap poller not running")

// Config is the IMAP account the poller reads.
type Config struct {
	Host         string
	Port         int
	TLS          bool
	User         string
	Password     string
	Mailbox      string
	Sender       string // only mails from this address are accepted
	PollInterval time.Duration
	Location     *time.Location
}

// Publisher queues normalized events.
type Publisher interface {
	PublishEvent(ctx context.Context, ev bus.Event) error
}

// Status is a snapshot of the poller, shown by /getimapstatus.
type Status struct {
	Running   bool
	LastPoll  time.Time
	LastError string
	Accepted  int
	Rejected  int
}

// Poller fetches unseen mails on an interval.
type Poller struct {
	cfg    Config
	cache  *state.Cache
	events Publisher
	dial   dialFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	status Status
}

func NewPoller(cfg Config, cache *state.Cache, events Publisher) *Poller {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	cfg.Sender = strings.ToLower(strings.TrimSpace(cfg.Sender))
	return &Poller{cfg: cfg, cache: cache, events: events, dial: dialIMAP}
}

// Start launches the poll loop under parent.
func (p *Poller) Start(parent context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.status.Running = true
	go p.loop(ctx, p.done)

	slog.Info("imap poller started", "host", p.cfg.Host, "mailbox", p.cfg.Mailbox, "interval", p.cfg.PollInterval)
	return nil
}

// Stop ends the poll loop and waits for an in-flight poll to finish.
func (p *Poller) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.status.Running = false
	p.mu.Unlock()

	if cancel == nil {
		return ErrNotRunning
	}
	cancel()
	<-done
	slog.Info("imap poller stopped")
	return nil
}

// Status returns a copy of the poller state.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("imap poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll runs one fetch-parse-publish cycle.
func (p *Poller) Poll(ctx context.Context) error {
	pollCtx, cancel := context.WithTimeout(ctx, p.cfg.PollInterval)
	defer cancel()

	err := p.poll(pollCtx)

	p.mu.Lock()
	p.status.LastPoll = nowFunc()
	p.status.LastError = ""
	if err != nil {
		p.status.LastError = err.Error()
	}
	p.mu.Unlock()
	return err
}

func (p *Poller) poll(ctx context.Context) error {
	mb, err := p.dial(ctx, p.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := mb.Close(); err != nil {
			slog.Debug("imap logout failed", "error", err)
		}
	}()

	msgs, err := mb.FetchUnseen(ctx)
	if err != nil && len(msgs) == 0 {
		return err
	}

	var seen []uint32
	for _, raw := range msgs {
		ev, herr := p.handle(raw)
		if herr != nil {
			// marked seen so the next poll does not fetch and count it again
			slog.Info("imap mail ignored", "uid", raw.UID, "reason", herr)
			p.count(false)
			seen = append(seen, raw.UID)
			continue
		}
		if perr := p.events.PublishEvent(ctx, ev); perr != nil && !errors.Is(perr, bus.ErrDuplicateEvent) {
			// leave unseen so the next poll retries it
			slog.Warn("imap event not queued", "uid", raw.UID, "error", perr)
			continue
		}
		p.count(true)
		seen = append(seen, raw.UID)
	}

	if serr := mb.MarkSeen(seen); serr != nil {
		return serr
	}
	return err
}

func (p *Poller) count(accepted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if accepted {
		p.status.Accepted++
	} else {
		p.status.Rejected++
	}
}

// handle turns one raw mail into an event, or explains why not.
func (p *Poller) handle(raw rawMessage) (bus.Event, error) {
	m, err := readMessage(bytes.NewReader(raw.Body))
	if err != nil {
		return bus.Event{}, err
	}
	if p.cfg.Sender != "" && m.From != p.cfg.Sender {
		return bus.Event{}, fmt.Errorf("sender %q not accepted", m.From)
	}
	if m.Text == "" {
		return bus.Event{}, errors.New("no text body")
	}

	rep, err := ParseReport(m.Text, p.cfg.Location)
	if err != nil {
		return bus.Event{}, err
	}
	if _, ok := p.cache.Device(rep.DeviceID); !ok {
		return bus.Event{}, fmt.Errorf("unknown device %s", rep.DeviceID)
	}

	return bus.Event{
		DeviceID:  rep.DeviceID,
		Severity:  rep.Severity,
		Message:   rep.Message,
		Timestamp: rep.OccurredAt,
		Source:    bus.SourceMail,
	}, nil
}
