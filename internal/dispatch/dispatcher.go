// Package dispatch fans normalized device events out to the chat groups
// subscribed to the device.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/upsrelay/internal/bus"
	"github.com/nextlevelbuilder/upsrelay/internal/state"
	"github.com/nextlevelbuilder/upsrelay/internal/store"
	"github.com/nextlevelbuilder/upsrelay/internal/tracing"
)

// Channel sends one text message to one chat. Implementations report a
// gone chat with store.ErrRecipientUnreachable.
type Channel interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Report summarizes one dispatch.
type Report struct {
	Recorded  bool
	Delivered []int64
	Pruned    []int64
	Failed    []int64
}

// Dispatcher delivers events.
type Dispatcher struct {
	cache    *state.Cache
	events   store.EventLog
	channel  Channel
	tracer   trace.Tracer
	location *time.Location

	// maxParallel caps concurrent sends per event; 0 means unlimited.
	maxParallel int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimezone renders timestamps in loc.
func WithTimezone(loc *time.Location) Option {
	return func(d *Dispatcher) { d.location = loc }
}

// WithMaxParallel caps the number of concurrent sends per event.
func WithMaxParallel(n int) Option {
	return func(d *Dispatcher) { d.maxParallel = n }
}

func New(cache *state.Cache, events store.EventLog, channel Channel, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cache:   cache,
		events:  events,
		channel: channel,
		tracer:  tracing.Tracer("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch records ev and, while the system is running, sends it to every
// subscribed group. Groups whose chat is gone are deleted. A failure for
// one group never affects delivery to the others.
func (d *Dispatcher) Dispatch(ctx context.Context, ev bus.Event) Report {
	ctx, span := d.tracer.Start(ctx, "dispatch.event", trace.WithAttributes(
		attribute.String("upsrelay.device_id", ev.DeviceID),
		attribute.String("upsrelay.severity", string(ev.Severity)),
		attribute.String("upsrelay.source", ev.Source),
	))
	defer span.End()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	text := FormatMessage(ev.Severity, ev.DeviceID, d.cache.Location(ev.DeviceID), ev.Message, ev.Timestamp, d.location)

	var report Report
	rec := store.EventRecord{
		ID:         store.GenNewID(),
		DeviceID:   ev.DeviceID,
		Severity:   string(ev.Severity),
		Message:    text,
		OccurredAt: ev.Timestamp.UTC(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := d.events.RecordEvent(ctx, rec); err != nil {
		slog.Error("record event failed", "device_id", ev.DeviceID, "error", err)
		span.RecordError(err)
	} else {
		report.Recorded = true
	}

	if status := d.cache.Status(); status != state.StatusRunning {
		slog.Info("event not delivered, system not running", "device_id", ev.DeviceID, "status", status)
		span.SetAttributes(attribute.String("upsrelay.skipped", string(status)))
		return report
	}

	targets := d.cache.SubscribersOf(ev.DeviceID)
	span.SetAttributes(attribute.Int("upsrelay.recipients", len(targets)))
	if len(targets) == 0 {
		slog.Debug("no subscribers", "device_id", ev.DeviceID)
		return report
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if d.maxParallel > 0 {
		g.SetLimit(d.maxParallel)
	}
	for _, chatID := range targets {
		g.Go(func() error {
			outcome := d.deliver(gctx, chatID, text)
			mu.Lock()
			switch outcome {
			case outcomeDelivered:
				report.Delivered = append(report.Delivered, chatID)
			case outcomePruned:
				report.Pruned = append(report.Pruned, chatID)
			default:
				report.Failed = append(report.Failed, chatID)
			}
			mu.Unlock()
			return nil // never cancel siblings
		})
	}
	_ = g.Wait()

	slog.Info("event dispatched",
		"device_id", ev.DeviceID,
		"severity", ev.Severity,
		"delivered", len(report.Delivered),
		"pruned", len(report.Pruned),
		"failed", len(report.Failed),
	)
	return report
}

type outcome int

const (
	outcomeDelivered outcome = iota
	outcomePruned
	outcomeFailed
)

func (d *Dispatcher) deliver(ctx context.Context, chatID int64, text string) outcome {
	ctx, span := d.tracer.Start(ctx, "dispatch.send", trace.WithAttributes(
		attribute.Int64("upsrelay.chat_id", chatID),
	))
	defer span.End()

	err := d.channel.Send(ctx, chatID, text)
	if err == nil {
		return outcomeDelivered
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if !errors.Is(err, store.ErrRecipientUnreachable) {
		slog.Warn("notification delivery failed", "chat_id", chatID, "error", err)
		return outcomeFailed
	}

	slog.Warn("recipient unreachable, deleting group", "chat_id", chatID, "error", err)
	if derr := d.cache.DeleteGroup(ctx, chatID); derr != nil {
		slog.Error("delete unreachable group failed", "chat_id", chatID, "error", derr)
		return outcomeFailed
	}
	return outcomePruned
}
