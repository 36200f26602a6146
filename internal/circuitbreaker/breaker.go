// Package circuitbreaker trips per-upstream circuits after repeated
// failures so scoring falls back instead of waiting on a dead dependency.
package circuitbreaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State is the circuit state of one upstream.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var (
	transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletrisk",
		Subsystem: "circuitbreaker",
		Name:      "state_transitions_total",
		Help:      "Circuit state transitions by upstream.",
	}, []string{"upstream", "from_state", "to_state"})

	stateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "walletrisk",
		Subsystem: "circuitbreaker",
		Name:      "state",
		Help:      "Current circuit state per upstream (0 closed, 1 open, 2 half-open).",
	}, []string{"upstream"})
)

func init() {
	prometheus.MustRegister(transitionsTotal, stateGauge)
}

// ErrOpen is returned by Do while an upstream's circuit is open.
var ErrOpen = errors.New("circuit breaker open")

// Snapshot describes one upstream's circuit for health reporting.
type Snapshot struct {
	State    State
	Failures int
	// RetryIn is how long an open circuit stays closed to traffic.
	RetryIn time.Duration
}

type entry struct {
	state    State
	failures int
	openedAt time.Time
}

// Breaker keeps one circuit per upstream name. A circuit opens after
// threshold consecutive failures, admits a single trial call after cooldown,
// and closes again when the trial succeeds.
type Breaker struct {
	mu        sync.Mutex
	entries   map[string]*entry
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a breaker. Non-positive arguments fall back to 5 failures and
// a 30 second cooldown.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		entries:   make(map[string]*entry),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		logger:    slog.Default(),
	}
}

// WithLogger sets the logger used for state transitions.
func (b *Breaker) WithLogger(l *slog.Logger) *Breaker {
	if l != nil {
		b.logger = l
	}
	return b
}

func (b *Breaker) get(name string) *entry {
	e, ok := b.entries[name]
	if !ok {
		e = &entry{}
		b.entries[name] = e
	}
	return e
}

// Allow reports whether a call to the upstream may proceed. An open circuit
// past its cooldown moves to half-open and admits the caller as the trial.
func (b *Breaker) Allow(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.get(name)
	switch e.state {
	case StateOpen:
		if b.now().Sub(e.openedAt) < b.cooldown {
			return false
		}
		b.transition(e, name, StateHalfOpen)
		return true
	case StateHalfOpen:
		return false
	default:
		return true
	}
}

// RecordSuccess clears the failure count and closes a probing circuit.
func (b *Breaker) RecordSuccess(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.get(name)
	e.failures = 0
	if e.state != StateClosed {
		b.transition(e, name, StateClosed)
	}
}

// RecordFailure counts a failure. A failed trial reopens the circuit
// immediately.
func (b *Breaker) RecordFailure(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.get(name)
	e.failures++

	if e.state == StateHalfOpen || (e.state == StateClosed && e.failures >= b.threshold) {
		e.openedAt = b.now()
		b.transition(e, name, StateOpen)
	}
}

// State returns the upstream's state. Unknown upstreams are closed.
func (b *Breaker) State(name string) State {
	return b.Snapshot(name).State
}

// Snapshot returns the upstream's state, failure count and remaining
// cooldown.
func (b *Breaker) Snapshot(name string) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[name]
	if !ok {
		return Snapshot{State: StateClosed}
	}
	s := Snapshot{State: e.state, Failures: e.failures}
	if e.state == StateOpen {
		if left := b.cooldown - b.now().Sub(e.openedAt); left > 0 {
			s.RetryIn = left
		}
	}
	return s
}

// caller holds b.mu
func (b *Breaker) transition(e *entry, name string, to State) {
	from := e.state
	if from == to {
		return
	}
	e.state = to
	transitionsTotal.WithLabelValues(name, from.String(), to.String()).Inc()
	stateGauge.WithLabelValues(name).Set(float64(to))
	b.logger.Warn("circuit state changed", "upstream", name, "from", from.String(), "to", to.String(), "failures", e.failures)
}

// Do runs fn when the upstream's circuit allows it and records the outcome.
func (b *Breaker) Do(name string, fn func() error) error {
	if !b.Allow(name) {
		return ErrOpen
	}
	if err := fn(); err != nil {
		b.RecordFailure(name)
		return err
	}
	b.RecordSuccess(name)
	return nil
}
