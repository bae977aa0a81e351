package providers

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// RetryConfig controls RetryDo's backoff behavior.
type RetryConfig struct {
	MaxAttempts int           // total attempts including the first, 0 = use default
	BaseDelay   time.Duration // base delay for exponential backoff
	MaxDelay    time.Duration // cap on any single backoff delay
}

// DefaultRetryConfig returns sensible retry defaults for LLM HTTP calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    20 * time.Second,
	}
}

// HTTPError wraps a non-2xx HTTP response from a provider API.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration // 0 if the server didn't send Retry-After
}

func (e *HTTPError) Error() string {
	return "provider: http " + strconv.Itoa(e.Status) + ": " + e.Body
}

// retryable reports whether the HTTP status is worth retrying:
// 429 (rate limit) and 5xx (server error), but not other 4xx.
func (e *HTTPError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// ParseRetryAfter parses an HTTP Retry-After header, which is either a
// number of seconds or an HTTP-date. Returns 0 if the header is absent
// or unparseable, in which case the caller falls back to its own backoff.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

type retryHookKey struct{}

// RetryHookFunc is notified on every retry attempt: attempt is the attempt
// number that just failed (1-indexed), maxAttempts is the configured cap.
type RetryHookFunc func(attempt, maxAttempts int, err error)

// WithRetryHook attaches a retry-notification callback to ctx. RetryDo
// invokes it (if present) before sleeping ahead of each retry, so callers
// like channel gateways can update a "retrying..." placeholder message.
func WithRetryHook(ctx context.Context, hook RetryHookFunc) context.Context {
	return context.WithValue(ctx, retryHookKey{}, hook)
}

func retryHookFromContext(ctx context.Context) RetryHookFunc {
	hook, _ := ctx.Value(retryHookKey{}).(RetryHookFunc)
	return hook
}

// RetryDo runs fn, retrying with exponential backoff plus jitter when fn
// returns a retryable *HTTPError (429 or 5xx). Non-retryable errors and
// context cancellation return immediately.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultRetryConfig().MaxAttempts
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultRetryConfig().BaseDelay
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultRetryConfig().MaxDelay
	}

	var result T
	var err error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}

		var httpErr *HTTPError
		if !errors.As(err, &httpErr) || !httpErr.retryable() || attempt == maxAttempts {
			return result, err
		}

		if hook := retryHookFromContext(ctx); hook != nil {
			hook(attempt, maxAttempts, err)
		}

		delay := httpErr.RetryAfter
		if delay <= 0 {
			delay = backoffDelay(attempt, baseDelay, maxDelay)
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(delay):
		}
	}

	return result, err
}

// backoffDelay computes exponential backoff capped at maxDelay, with jitter
// that picks a value between half the capped delay and the full capped delay.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	d := base << uint(attempt-1)
	if d <= 0 || d > max {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	d = d/2 + jitter
	if d > max {
		d = max
	}
	return d
}
