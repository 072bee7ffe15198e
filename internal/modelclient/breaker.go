// Package modelclient implements the External-Model Adapter (spec §4.9):
// a circuit-breaker-protected, offline-gated client for the optional
// reasoning and embedding backends the Privilege Service and Search
// Facade escalate to.
package modelclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/connexus-ai/ediscovery-core/internal/metrics"
)

// ErrBreakerOpen is returned when a call is rejected without dispatching
// because the breaker (or its doubled cooldown extension) is open.
var ErrBreakerOpen = errors.New("modelclient: circuit breaker open")

const (
	defaultFailureThreshold = 5
	defaultCooldown         = 60 * time.Second
	maxCooldown             = 16 * time.Minute
)

// State mirrors spec §4.9's three-state machine.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Breaker wraps gobreaker.CircuitBreaker for the CLOSED/OPEN/HALF_OPEN
// mechanics (threshold-based tripping, single-probe half-open recovery)
// and layers an additional doubling-cooldown gate on top: gobreaker's own
// Timeout is fixed at construction, so a failed half-open probe extends
// the effective block via blockedUntil rather than by reconstructing the
// breaker (which would lose its current state).
type Breaker struct {
	mu           sync.Mutex
	cb           *gobreaker.CircuitBreaker
	baseCooldown time.Duration
	cooldown     time.Duration
	blockedUntil time.Time
	m            *metrics.Metrics
}

// NewBreaker creates a Breaker. failureThreshold <= 0 and cooldown <= 0
// use the spec defaults (5 failures, 60s).
func NewBreaker(name string, failureThreshold int, cooldown time.Duration, m *metrics.Metrics) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}

	b := &Breaker{baseCooldown: cooldown, cooldown: cooldown, m: m}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failureThreshold)
		},
		OnStateChange: b.onStateChange,
	})
	b.reportGauge(StateClosed)
	return b
}

func (b *Breaker) onStateChange(name string, from, to gobreaker.State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if to == gobreaker.StateOpen && from == gobreaker.StateHalfOpen {
		b.cooldown *= 2
		if b.cooldown > maxCooldown {
			b.cooldown = maxCooldown
		}
		// gobreaker's own Open state already runs for baseCooldown (its
		// Timeout, fixed at construction); blockedUntil must cover the full
		// doubled cooldown itself, not just the extra span past base, or
		// the two windows overlap and the doubling has no effect until the
		// second re-trip.
		b.blockedUntil = time.Now().Add(b.cooldown)
		slog.Warn("[DEBUG-MODELCLIENT] breaker tripped again after half-open probe failure, cooldown doubled",
			"breaker", name, "cooldown", b.cooldown)
	}
	if to == gobreaker.StateClosed {
		b.cooldown = b.baseCooldown
		b.blockedUntil = time.Time{}
	}
	b.reportGauge(mapState(to))
}

func (b *Breaker) reportGauge(s State) {
	if b.m == nil {
		return
	}
	switch s {
	case StateClosed:
		b.m.BreakerState.Set(0)
	case StateHalfOpen:
		b.m.BreakerState.Set(1)
	case StateOpen:
		b.m.BreakerState.Set(2)
	}
}

func mapState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// State reports the breaker's current state, accounting for the doubled-
// cooldown extension layered on top of gobreaker's own Open state.
func (b *Breaker) State() State {
	b.mu.Lock()
	blocked := time.Now().Before(b.blockedUntil)
	b.mu.Unlock()
	if blocked {
		return StateOpen
	}
	return mapState(b.cb.State())
}

// Execute runs fn through the breaker. It fails fast with ErrBreakerOpen
// if the breaker (or its doubled-cooldown extension) is open, without
// calling fn.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	b.mu.Lock()
	blocked := time.Now().Before(b.blockedUntil)
	b.mu.Unlock()
	if blocked {
		return nil, ErrBreakerOpen
	}

	result, err := b.cb.Execute(func() (any, error) {
		return fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrBreakerOpen
	}
	return result, err
}
