package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_Outcomes(t *testing.T) {
	transient := errors.New("oracle status 503")
	notFound := errors.New("unknown asset")

	tests := []struct {
		name      string
		attempts  int
		failFirst int
		failWith  error
		wantCalls int
		wantErr   error
	}{
		{"first try", 3, 0, transient, 1, nil},
		{"recovers", 3, 2, transient, 3, nil},
		{"exhausted", 3, 10, transient, 3, transient},
		{"permanent stops", 5, 10, Permanent(notFound), 1, notFound},
		{"zero attempts rounds up", 0, 0, transient, 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), tt.attempts, time.Millisecond, func() error {
				calls++
				if calls <= tt.failFirst {
					return tt.failWith
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestDo_PermanentIsUnwrapped(t *testing.T) {
	inner := errors.New("bad request")
	err := Do(context.Background(), 3, time.Millisecond, func() error { return Permanent(inner) })

	var pe *PermanentError
	assert.False(t, errors.As(err, &pe), "caller should see the inner error")
	assert.Equal(t, inner, err)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	calls := 0
	err := Do(ctx, 10, time.Second, func() error {
		calls++
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}

func TestDo_ThrottledWaitsAtLeastRequested(t *testing.T) {
	var stamps []time.Time
	err := Do(context.Background(), 2, time.Millisecond, func() error {
		stamps = append(stamps, time.Now())
		if len(stamps) == 1 {
			return After(errors.New("status 429"), 60*time.Millisecond)
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, stamps, 2)
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 60*time.Millisecond)
}

func TestDo_BackoffGrows(t *testing.T) {
	var stamps []time.Time
	_ = Do(context.Background(), 3, 20*time.Millisecond, func() error {
		stamps = append(stamps, time.Now())
		return errors.New("fail")
	})
	require.Len(t, stamps, 3)

	// 20ms then 40ms, each within 25% jitter.
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 15*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 30*time.Millisecond)
}

func TestAfter_Unwraps(t *testing.T) {
	inner := errors.New("rate limited")
	err := After(inner, time.Second)
	assert.ErrorIs(t, err, inner)

	var te *ThrottledError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, time.Second, te.Wait)
}
