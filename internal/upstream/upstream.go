// Package upstream wraps calls to external collaborators (price oracle,
// transaction feed, staking registry) with a per-call timeout, retries with
// backoff, and a per-upstream circuit breaker.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mbd888/walletrisk/internal/circuitbreaker"
	"github.com/mbd888/walletrisk/internal/retry"
)

// Error reports that an upstream could not be reached. It renders as 503.
type Error struct {
	Upstream string
	Err      error
}

func (e *Error) Error() string { return fmt.Sprintf("%s unavailable: %v", e.Upstream, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus implements apierror.Coded.
func (e *Error) HTTPStatus() (int, string) {
	return http.StatusServiceUnavailable, "upstream_unavailable"
}

// Guard applies timeout, retry and circuit breaking to upstream calls.
type Guard struct {
	breaker   *circuitbreaker.Breaker
	attempts  int
	baseDelay time.Duration
	timeout   time.Duration
}

// Options configures a Guard.
type Options struct {
	Attempts         int
	BaseDelay        time.Duration
	Timeout          time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
	Logger           *slog.Logger
}

// New creates a Guard.
func New(opts Options) *Guard {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 100 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Guard{
		breaker:   circuitbreaker.New(opts.BreakerThreshold, opts.BreakerCooldown).WithLogger(opts.Logger),
		attempts:  opts.Attempts,
		baseDelay: opts.BaseDelay,
		timeout:   opts.Timeout,
	}
}

// Call runs fn against the named upstream. Errors wrapped with
// retry.Permanent are returned unwrapped and not retried; they also do not
// count against the breaker. Everything else comes back as *Error.
func (g *Guard) Call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	var permanent error
	err := g.breaker.Do(name, func() error {
		err := retry.Do(ctx, g.attempts, g.baseDelay, func() error {
			callCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()
			err := fn(callCtx)
			var pe *retry.PermanentError
			if errors.As(err, &pe) {
				permanent = pe.Err
			}
			return err
		})
		if permanent != nil {
			return nil
		}
		return err
	})
	if permanent != nil {
		return permanent
	}
	if err != nil {
		return &Error{Upstream: name, Err: err}
	}
	return nil
}

// State reports the breaker state for an upstream.
func (g *Guard) State(name string) circuitbreaker.State {
	return g.breaker.State(name)
}

// Snapshot reports the breaker state, failure count and cooldown left.
func (g *Guard) Snapshot(name string) circuitbreaker.Snapshot {
	return g.breaker.Snapshot(name)
}
