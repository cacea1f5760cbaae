// Package cron runs a single recurring job on a cron expression (parsed
// by gronx). The relay uses it for the daily event digest; the schedule
// can be swapped at runtime when the config file changes.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// JobFunc is the work done on each tick.
type JobFunc func(ctx context.Context) error

// Service fires a job whenever its cron expression is due.
type Service struct {
	name     string
	job      JobFunc
	retryCfg RetryConfig

	mu      sync.Mutex
	expr    string
	nextRun time.Time
	lastRun time.Time
	lastErr error
	now     func() time.Time
}

// NewService creates a stopped service. An empty expr disables it until
// SetSchedule is called.
func NewService(name, expr string, job JobFunc) (*Service, error) {
	s := &Service{
		name:     name,
		job:      job,
		retryCfg: DefaultRetryConfig(),
		now:      time.Now,
	}
	if err := s.SetSchedule(expr); err != nil {
		return nil, err
	}
	return s, nil
}

// SetRetryConfig overrides the default retry configuration.
func (s *Service) SetRetryConfig(cfg RetryConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryCfg = cfg
}

// ValidateExpr reports whether expr is a usable cron expression.
// The empty string is valid and means disabled.
func ValidateExpr(expr string) error {
	if expr == "" {
		return nil
	}
	if !gronx.New().IsValid(expr) {
		return fmt.Errorf("invalid cron expression: %s", expr)
	}
	return nil
}

// SetSchedule replaces the cron expression and recomputes the next run.
func (s *Service) SetSchedule(expr string) error {
	if err := ValidateExpr(expr); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if expr == s.expr && !s.nextRun.IsZero() {
		return nil
	}
	s.expr = expr
	s.nextRun = s.computeNextRun(s.now())
	if expr != "" {
		slog.Info("cron schedule set", "job", s.name, "expr", expr, "next_run", s.nextRun)
	}
	return nil
}

// NextRun returns the next scheduled time, zero when disabled.
func (s *Service) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun
}

// Status summarizes the service for diagnostics.
func (s *Service) Status() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := map[string]any{
		"job":     s.name,
		"expr":    s.expr,
		"enabled": s.expr != "",
	}
	if !s.nextRun.IsZero() {
		st["nextRun"] = s.nextRun
	}
	if !s.lastRun.IsZero() {
		st["lastRun"] = s.lastRun
	}
	if s.lastErr != nil {
		st["lastError"] = s.lastErr.Error()
	}
	return st
}

// Run checks once per second until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	slog.Info("cron service started", "job", s.name)

	for {
		select {
		case <-ctx.Done():
			slog.Info("cron service stopped", "job", s.name)
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs the job if it is due.
func (s *Service) tick(ctx context.Context) {
	s.mu.Lock()
	now := s.now()
	if s.nextRun.IsZero() || now.Before(s.nextRun) {
		s.mu.Unlock()
		return
	}
	// clear before running so a slow job cannot fire twice
	s.nextRun = time.Time{}
	cfg := s.retryCfg
	s.mu.Unlock()

	slog.Info("cron executing job", "job", s.name)
	attempts, err := ExecuteWithRetry(ctx, func(ctx context.Context) error { return s.job(ctx) }, cfg)
	if attempts > 1 {
		slog.Info("cron job retried", "job", s.name, "attempts", attempts, "success", err == nil)
	}
	if err != nil {
		slog.Error("cron job failed", "job", s.name, "error", err)
	} else {
		slog.Info("cron job completed", "job", s.name)
	}

	s.mu.Lock()
	s.lastRun = now
	s.lastErr = err
	if s.nextRun.IsZero() {
		s.nextRun = s.computeNextRun(s.now())
	}
	s.mu.Unlock()
}

// computeNextRun must be called with s.mu held.
func (s *Service) computeNextRun(now time.Time) time.Time {
	if s.expr == "" {
		return time.Time{}
	}
	next, err := gronx.NextTickAfter(s.expr, now, false)
	if err != nil {
		slog.Error("cron: failed to compute next run", "expr", s.expr, "error", err)
		return time.Time{}
	}
	return next
}
