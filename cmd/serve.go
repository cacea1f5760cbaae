package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/upsrelay/internal/bus"
	"github.com/nextlevelbuilder/upsrelay/internal/channels/telegram"
	"github.com/nextlevelbuilder/upsrelay/internal/config"
	"github.com/nextlevelbuilder/upsrelay/internal/cron"
	"github.com/nextlevelbuilder/upsrelay/internal/dispatch"
	httpapi "github.com/nextlevelbuilder/upsrelay/internal/http"
	"github.com/nextlevelbuilder/upsrelay/internal/mail"
	"github.com/nextlevelbuilder/upsrelay/internal/state"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay (webhook, IMAP poller, Telegram bot)",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	cfgPath := resolveConfigPath()
	cfg := mustLoadConfig()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer := initOTelExporter(ctx, cfg)

	stores, err := openStores(cfg)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	initial, ok := state.ParseStatus(cfg.System.InitialStatus)
	if !ok {
		initial = state.StatusRunning
	}
	cache := state.New(stores.Devices, stores.Groups, initial)
	if err := cache.Hydrate(ctx); err != nil {
		// keep serving: /wakebot retries hydration
		slog.Error("starting with empty state", "error", err)
	}

	events := bus.New()

	var poller *mail.Poller
	var mailer telegram.MailControl
	if cfg.IMAP.Host != "" {
		poller = mail.NewPoller(mail.Config{
			Host:         cfg.IMAP.Host,
			Port:         cfg.IMAP.Port,
			TLS:          cfg.IMAP.TLS,
			User:         cfg.IMAP.User,
			Password:     cfg.IMAP.Password,
			Mailbox:      cfg.IMAP.Mailbox,
			Sender:       cfg.IMAP.Sender,
			PollInterval: cfg.IMAP.PollEvery(),
			Location:     cfg.Location(),
		}, cache, events)
		mailer = poller
	}

	tg, err := telegram.New(cfg, cache, stores.Events, mailer)
	if err != nil {
		slog.Error("failed to create telegram channel", "error", err)
		os.Exit(1)
	}

	dispatcher := dispatch.New(cache, stores.Events, tg,
		dispatch.WithTimezone(cfg.Location()),
		dispatch.WithMaxParallel(cfg.System.MaxParallel),
	)

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:          cfg.Gateway.Host,
		Port:          cfg.Gateway.Port,
		WebhookSecret: cfg.Gateway.WebhookSecret,
		RateLimitRPM:  cfg.Gateway.RateLimitRPM,
	}, events, cache)

	digest := cron.NewDigest(cache, stores.Events, tg, cfg.CreatorIDs, cfg.Location())
	digestSvc, err := cron.NewService("digest", cfg.DigestSchedule(), digest.Run)
	if err != nil {
		slog.Error("invalid digest schedule", "schedule", cfg.DigestSchedule(), "error", err)
		os.Exit(1)
	}

	watcher, err := config.NewWatcher(cfgPath)
	if err != nil {
		slog.Warn("config hot reload disabled", "error", err)
	} else {
		watcher.OnChange(func(next *config.Config) {
			cfg.ApplyReload(next)
			if err := digestSvc.SetSchedule(cfg.DigestSchedule()); err != nil {
				slog.Warn("digest schedule not reloaded", "error", err)
			}
			slog.Info("config reloaded", "digest", digestSvc.Status())
		})
		if err := watcher.Start(); err != nil {
			slog.Warn("config hot reload disabled", "error", err)
		}
		defer watcher.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return tg.Run(gctx) })
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error {
		digestSvc.Run(gctx)
		return nil
	})
	g.Go(func() error {
		consumeEvents(gctx, events, dispatcher)
		return nil
	})

	if poller != nil && cfg.IMAP.Enabled {
		if err := poller.Start(gctx); err != nil {
			slog.Warn("imap poller not started", "error", err)
		}
	}

	slog.Info("upsrelay started", "version", Version, "status", cache.Status(),
		"devices", len(cache.Devices()), "groups", len(cache.Groups()))

	if err := g.Wait(); err != nil {
		slog.Error("relay stopped with error", "error", err)
	}

	if poller != nil {
		if err := poller.Stop(); err != nil && !errors.Is(err, mail.ErrNotRunning) {
			slog.Warn("imap poller stop", "error", err)
		}
	}
	events.Close()

	if tracer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown", "error", err)
		}
	}
	slog.Info("upsrelay stopped")
}

// consumeEvents dispatches each queued event in its own goroutine until
// ctx is done, then waits for in-flight dispatches.
func consumeEvents(ctx context.Context, events *bus.EventBus, d *dispatch.Dispatcher) {
	var wg sync.WaitGroup
	for {
		ev, ok := events.ConsumeEvent(ctx)
		if !ok {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep := d.Dispatch(ctx, ev)
			slog.Debug("event dispatched", "device_id", ev.DeviceID, "source", ev.Source,
				"delivered", len(rep.Delivered), "pruned", len(rep.Pruned), "failed", len(rep.Failed))
		}()
	}
	wg.Wait()
}
