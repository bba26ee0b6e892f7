// Package execution implements the venue-agnostic order execution contract
// of spec section 4.B: idempotent submission, cancellation, fill tracking,
// slippage-protected market orders, and a per-venue circuit breaker. It
// wraps the platform-specific adapters (internal/platform/polymarket,
// internal/platform/kalshi) behind one uniform surface the router and
// position manager call into.
package execution

import (
	"sync"
	"time"
)

// CircuitState is one of the three breaker states of spec section 4.B.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreakerConfig tunes the per-venue breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive failures before tripping
	Cooldown         time.Duration // time spent in CircuitOpen before probing
}

// DefaultCircuitBreakerConfig mirrors the thresholds the rest of the pack
// uses for venue-failure guards (grounded on 0xtitan6-polymarket-mm's risk
// manager cooldown idiom, adapted here to failure counting rather than PnL).
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// CircuitBreaker is a rolling counter of consecutive adapter failures or
// latency violations for one venue. It is safe for concurrent use.
type CircuitBreaker struct {
	mu                  sync.Mutex
	cfg                 CircuitBreakerConfig
	state               CircuitState
	consecutiveFailures int
	openedAt            time.Time
	halfOpenProbeInFlight bool
}

// NewCircuitBreaker creates a closed breaker with the given config.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultCircuitBreakerConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCircuitBreakerConfig().Cooldown
	}
	return &CircuitBreaker{cfg: cfg, state: CircuitClosed}
}

// Allow reports whether a new submission may proceed, and if so whether it
// is a half-open probe (the caller must then call RecordResult promptly so
// the breaker can decide whether to close or re-open).
func (cb *CircuitBreaker) Allow() (allowed bool, isProbe bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true, false
	case CircuitOpen:
		if time.Since(cb.openedAt) < cb.cfg.Cooldown {
			return false, false
		}
		if cb.halfOpenProbeInFlight {
			return false, false
		}
		cb.state = CircuitHalfOpen
		cb.halfOpenProbeInFlight = true
		return true, true
	case CircuitHalfOpen:
		if cb.halfOpenProbeInFlight {
			return false, false
		}
		cb.halfOpenProbeInFlight = true
		return true, true
	default:
		return true, false
	}
}

// RecordResult updates the breaker's state based on whether a submission
// counted toward circuit-breaker accounting succeeded. Permanent failures
// and validation failures must not be passed here (spec section 7: they do
// not count toward circuit-breaker state). It reports tripped=true the call
// that transitions the breaker into CircuitOpen, so callers can notify on
// the edge rather than on every rejected submission while it stays open.
func (cb *CircuitBreaker) RecordResult(success bool) (tripped bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.halfOpenProbeInFlight = false

	if success {
		cb.consecutiveFailures = 0
		cb.state = CircuitClosed
		return false
	}

	cb.consecutiveFailures++
	wasOpen := cb.state == CircuitOpen
	if cb.state == CircuitHalfOpen || cb.consecutiveFailures >= cb.cfg.FailureThreshold {
		cb.state = CircuitOpen
		cb.openedAt = time.Now()
		return !wasOpen
	}
	return false
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && time.Since(cb.openedAt) >= cb.cfg.Cooldown && !cb.halfOpenProbeInFlight {
		return CircuitHalfOpen
	}
	return cb.state
}
