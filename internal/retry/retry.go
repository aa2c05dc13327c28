// Package retry implements the bounded exponential-backoff retry used by
// every outbound call in the pipeline that may hit a transient transport
// error: the embedding provider, the classifier/compiler LLM calls, and
// the batch worker pool's persistence step. In-node errors (a node's own
// deterministic output) are never retried here — only the caller decides
// whether an error is transport-shaped via IsTransient.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
)

// ErrExhausted is returned when every retry attempt failed with a
// transient error.
var ErrExhausted = errors.New("retry: attempts exhausted while the system was experiencing a transient failure")

// Schedule holds the backoff delays tried between attempts and the
// ceiling any single delay is capped at.
type Schedule struct {
	Delays  []time.Duration
	Ceiling time.Duration
}

// DefaultSchedule is 500ms -> 1000ms -> 2000ms, capped at 4s.
var DefaultSchedule = Schedule{
	Delays:  []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond, 2000 * time.Millisecond},
	Ceiling: 4 * time.Second,
}

// IsTransient reports whether err looks like a transport-level failure
// (rate limiting, unavailability) rather than a shape/parse error that
// should be handled by the caller's documented degraded-mode behavior.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return IsTransientStatus(gerr.Code)
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "EOF")
}

// IsTransientStatus reports whether an HTTP status code warrants a retry.
func IsTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable || code == http.StatusBadGateway
}

// Do executes fn, retrying per sched when the error IsTransient, up to
// len(sched.Delays)+1 total attempts. Non-transient errors return
// immediately without consuming a retry.
func Do[T any](ctx context.Context, operation string, sched Schedule, fn func() (T, error)) (T, error) {
	result, err := fn()
	if err == nil {
		return result, nil
	}
	if !IsTransient(err) {
		return result, err
	}

	for i, delay := range sched.Delays {
		if delay > sched.Ceiling {
			delay = sched.Ceiling
		}

		slog.Warn("retrying after transient error",
			"operation", operation,
			"attempt", i+2,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("%s: context cancelled during retry: %w", operation, ctx.Err())
		case <-time.After(delay):
		}

		result, err = fn()
		if err == nil {
			slog.Info("retry succeeded", "operation", operation, "attempt", i+2)
			return result, nil
		}
		if !IsTransient(err) {
			return result, err
		}
	}

	var zero T
	slog.Error("retries exhausted", "operation", operation, "attempts", len(sched.Delays)+1)
	return zero, ErrExhausted
}
