package health

import (
	"context"
	"fmt"
	"time"

	"github.com/mbd888/walletrisk/internal/circuitbreaker"
)

// PingCheck reports healthy while ping succeeds.
func PingCheck(name string, ping func(ctx context.Context) error) Checker {
	return func(ctx context.Context) Status {
		if err := ping(ctx); err != nil {
			return Status{Name: name, Healthy: false, Detail: err.Error()}
		}
		return Status{Name: name, Healthy: true}
	}
}

// BreakerCheck reports an upstream unhealthy while its circuit is open.
// A half-open circuit is probing and still counts as healthy.
func BreakerCheck(name string, snapshot func(name string) circuitbreaker.Snapshot) Checker {
	return func(context.Context) Status {
		snap := snapshot(name)
		detail := "circuit " + snap.State.String()
		if snap.State == circuitbreaker.StateOpen {
			detail = fmt.Sprintf("%s, %d failures, retry in %s", detail, snap.Failures, snap.RetryIn.Round(time.Second))
		}
		return Status{Name: name, Healthy: snap.State != circuitbreaker.StateOpen, Detail: detail}
	}
}
