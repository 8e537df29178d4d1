package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrCircuitOpen is returned when a call is short-circuited without I/O.
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerState represents the state of a circuit breaker.
type BreakerState int

const (
	// BreakerClosed allows calls to pass through.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls immediately until the cooldown elapses.
	BreakerOpen

	// BreakerHalfOpen allows limited probe calls after the cooldown.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int

	// Cooldown is how long calls are rejected before a half-open probe.
	Cooldown time.Duration

	// HalfOpenProbes is the number of successful probes required to close.
	HalfOpenProbes int
}

// DefaultBreakerConfig returns the default breaker thresholds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenProbes:   3,
	}
}

// Breaker is a per-provider circuit breaker. After FailureThreshold
// consecutive failures it rejects calls for Cooldown, then lets probe calls
// through and closes again once enough probes succeed.
type Breaker struct {
	mu           sync.Mutex
	state        BreakerState
	failures     int
	probeHits    int
	openedAt     time.Time
	config       BreakerConfig
	logger       zerolog.Logger
	provider     string
	clock        func() time.Time
}

// NewBreaker creates a closed breaker for the named provider.
func NewBreaker(provider string, config BreakerConfig) *Breaker {
	b := &Breaker{
		state:    BreakerClosed,
		config:   config,
		provider: provider,
		logger:   log.With().Str("component", "circuit_breaker").Str("provider", provider).Logger(),
		clock:    time.Now,
	}
	recordBreakerState(provider, b.state)
	return b
}

// Allow reports whether a call may proceed. A rejected call must not attempt I/O.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if b.clock().Sub(b.openedAt) >= b.config.Cooldown {
			b.transition(BreakerHalfOpen)
			b.probeHits = 0
			b.logger.Info().Msg("cooldown elapsed, probing")
			return true
		}
		return false
	case BreakerHalfOpen:
		return b.probeHits < b.config.HalfOpenProbes
	default:
		return false
	}
}

// RecordSuccess records a successful call outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures = 0
	case BreakerHalfOpen:
		b.probeHits++
		if b.probeHits >= b.config.HalfOpenProbes {
			b.transition(BreakerClosed)
			b.failures = 0
			b.probeHits = 0
			b.logger.Info().Msg("recovered, closing")
		}
	}
}

// RecordFailure records a failed call outcome.
func (b *Breaker) RecordFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++

	switch b.state {
	case BreakerClosed:
		if b.failures >= b.config.FailureThreshold {
			b.openedAt = b.clock()
			b.transition(BreakerOpen)
			b.logger.Warn().Err(err).
				Int("failures", b.failures).
				Dur("cooldown", b.config.Cooldown).
				Msg("opening after consecutive failures")
		}
	case BreakerHalfOpen:
		// Any failure during probing re-opens immediately.
		b.openedAt = b.clock()
		b.probeHits = 0
		b.transition(BreakerOpen)
		b.logger.Warn().Err(err).Msg("probe failed, re-opening")
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset forces the breaker back to closed. Used by the admin surface.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transition(BreakerClosed)
	b.failures = 0
	b.probeHits = 0
	b.logger.Info().Msg("manually reset")
}

func (b *Breaker) transition(next BreakerState) {
	b.state = next
	recordBreakerState(b.provider, next)
}
