// Package retry runs an operation again with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = 1 * time.Second
	defaultMaxDelay     = 10 * time.Second
)

// Config tunes Do. Zero values take the defaults.
type Config struct {
	MaxAttempts    int           // default 3
	InitialBackoff time.Duration // default 1s
	MaxBackoff     time.Duration // default 10s
	// Retryable decides whether a failure is worth another attempt.
	// Defaults to IsRetryable.
	Retryable func(error) bool
}

// Do calls fn until it succeeds, fails with a non-retryable error, the
// attempts run out, or ctx is done.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialDelay
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxDelay
	}
	if cfg.Retryable == nil {
		cfg.Retryable = IsRetryable
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !cfg.Retryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(backoff(attempt, cfg.InitialBackoff, cfg.MaxBackoff))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", cfg.MaxAttempts, lastErr)
}

// IsRetryable reports whether err looks transient: timeouts, dropped
// connections, rate limits and 5xx responses. Cancellation and 4xx
// responses other than 429 are final.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"400", "401", "403", "404", "bad request", "unauthorized", "forbidden", "chat not found"} {
		if strings.Contains(msg, pattern) {
			return false
		}
	}
	for _, pattern := range []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary",
		"eof",
		"429",
		"too many requests",
		"rate limit",
		"500", "502", "503", "504",
		"network",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// backoff is 2^attempt * initial, capped at max.
func backoff(attempt int, initial, max time.Duration) time.Duration {
	d := time.Duration(1<<uint(attempt)) * initial
	if d > max || d <= 0 {
		return max
	}
	return d
}
