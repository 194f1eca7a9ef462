// Package backoff retries an operation with exponential delays.
package backoff

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/atomic"
)

// Config controls the retry schedule.
type Config struct {
	MaxRetries int           // attempts after the first failure; <0 retries forever
	Initial    time.Duration // first delay
	Max        time.Duration // delay cap
}

// DefaultConfig returns 5 retries from 1s doubling up to 30s.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 5,
		Initial:    1 * time.Second,
		Max:        30 * time.Second,
	}
}

// Retrier runs operations under a Config and counts attempts across runs.
type Retrier struct {
	cfg      Config
	label    string
	attempts atomic.Uint64
	failures atomic.Uint64
}

// New creates a Retrier. label prefixes log lines.
func New(label string, cfg Config) *Retrier {
	if cfg.Initial <= 0 {
		cfg.Initial = DefaultConfig().Initial
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = cfg.Initial
	}
	return &Retrier{cfg: cfg, label: label}
}

// Do calls fn until it succeeds, retries are exhausted or ctx ends.
//
// Delay schedule: Initial * 2^(attempt-1), capped at Max.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	for retry := 0; ; retry++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.attempts.Inc()
		err := fn(ctx)
		if err == nil {
			if retry > 0 {
				slog.Info(r.label+": succeeded after retry", "retries", retry)
			}
			return nil
		}
		r.failures.Inc()

		if r.cfg.MaxRetries >= 0 && retry >= r.cfg.MaxRetries {
			return fmt.Errorf("%s: max retries exceeded (%d attempts): %w", r.label, retry+1, err)
		}

		delay := Delay(retry+1, r.cfg)
		slog.Warn(r.label+": attempt failed, retrying",
			"attempt", retry+1,
			"max_retries", r.cfg.MaxRetries,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Attempts returns the total number of calls made to operations.
func (r *Retrier) Attempts() uint64 { return r.attempts.Load() }

// Failures returns the total number of failed calls.
func (r *Retrier) Failures() uint64 { return r.failures.Load() }

// Delay returns the wait before retry number attempt (1-based).
func Delay(attempt int, cfg Config) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := cfg.Initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cfg.Max {
			return cfg.Max
		}
	}
	if delay > cfg.Max {
		return cfg.Max
	}
	return delay
}
