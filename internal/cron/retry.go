package cron

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/nextlevelbuilder/upsrelay/internal/store"
)

// RetryConfig bounds how often a failed job or delivery is attempted again.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig is used for scheduled jobs.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// deliveryRetryConfig is used per digest recipient.
func deliveryRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   5 * time.Second,
	}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether retrying err cannot help: explicitly marked
// errors, recipients that are gone, and rejected input.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p) ||
		errors.Is(err, store.ErrRecipientUnreachable) ||
		errors.Is(err, store.ErrValidationFailed)
}

// ExecuteWithRetry calls fn until it succeeds, fails permanently, the
// retries are used up or ctx is done. It returns the number of calls and
// the last error.
func ExecuteWithRetry(ctx context.Context, fn func(context.Context) error, cfg RetryConfig) (attempts int, err error) {
	for attempts = 1; ; attempts++ {
		err = fn(ctx)
		if err == nil || IsPermanent(err) || attempts > cfg.MaxRetries {
			return attempts, err
		}

		t := time.NewTimer(backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempts-1))
		select {
		case <-ctx.Done():
			t.Stop()
			return attempts, err
		case <-t.C:
		}
	}
}

// backoffWithJitter doubles base per attempt, capped at max, then spreads
// the result by up to a quarter either way.
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		delay = max
	}
	if quarter := delay / 4; quarter > 0 {
		delay += time.Duration(rand.Int64N(int64(quarter*2))) - quarter
	}
	return delay
}
