package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New(threshold, cooldown)
	b.now = clock.now
	return b, clock
}

var errUpstream = errors.New("oracle status 502")

func fail(b *Breaker, name string, n int) {
	for i := 0; i < n; i++ {
		_ = b.Do(name, func() error { return errUpstream })
	}
}

func TestBreaker_TripsAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	fail(b, "oracle", 2)
	assert.Equal(t, StateClosed, b.State("oracle"))

	fail(b, "oracle", 1)
	assert.Equal(t, StateOpen, b.State("oracle"))

	called := false
	err := b.Do("oracle", func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	fail(b, "feed", 2)
	require.NoError(t, b.Do("feed", func() error { return nil }))
	fail(b, "feed", 2)
	assert.Equal(t, StateClosed, b.State("feed"))
}

func TestBreaker_TrialAfterCooldown(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)
	fail(b, "staking", 1)

	clock.advance(30 * time.Second)
	assert.False(t, b.Allow("staking"))
	assert.Equal(t, 30*time.Second, b.Snapshot("staking").RetryIn)

	clock.advance(30 * time.Second)
	assert.True(t, b.Allow("staking"), "first caller after cooldown is admitted")
	assert.Equal(t, StateHalfOpen, b.State("staking"))
	assert.False(t, b.Allow("staking"), "only one trial at a time")

	b.RecordSuccess("staking")
	assert.Equal(t, StateClosed, b.State("staking"))
	assert.Equal(t, 0, b.Snapshot("staking").Failures)
}

func TestBreaker_FailedTrialReopens(t *testing.T) {
	b, clock := newTestBreaker(2, time.Minute)
	fail(b, "oracle", 2)

	clock.advance(time.Minute)
	err := b.Do("oracle", func() error { return errUpstream })
	assert.ErrorIs(t, err, errUpstream)
	assert.Equal(t, StateOpen, b.State("oracle"))
	assert.Equal(t, time.Minute, b.Snapshot("oracle").RetryIn, "cooldown restarts from the failed trial")
}

func TestBreaker_UpstreamsAreIndependent(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)
	fail(b, "oracle", 1)

	assert.Equal(t, StateOpen, b.State("oracle"))
	assert.Equal(t, StateClosed, b.State("feed"))
	assert.Equal(t, Snapshot{State: StateClosed}, b.Snapshot("never-called"))
}

func TestBreaker_Defaults(t *testing.T) {
	b := New(0, 0)
	assert.Equal(t, 5, b.threshold)
	assert.Equal(t, 30*time.Second, b.cooldown)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
