package staking

import (
	"context"
	"errors"

	"github.com/mbd888/walletrisk/internal/retry"
	"github.com/mbd888/walletrisk/internal/upstream"
)

// Guarded routes position lookups through an upstream guard and treats an
// address with no position as unstaked.
type Guarded struct {
	adapter Adapter
	guard   *upstream.Guard
}

// NewGuarded wraps an adapter.
func NewGuarded(adapter Adapter, guard *upstream.Guard) *Guarded {
	return &Guarded{adapter: adapter, guard: guard}
}

func (g *Guarded) Position(ctx context.Context, address string) (Position, error) {
	var pos Position
	err := g.guard.Call(ctx, "staking", func(ctx context.Context) error {
		var err error
		pos, err = g.adapter.Position(ctx, address)
		if errors.Is(err, ErrNotFound) {
			return retry.Permanent(err)
		}
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return None(address), nil
	}
	if err != nil {
		return Position{}, err
	}
	return pos, nil
}
