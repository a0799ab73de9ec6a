// Package breaker implements a circuit breaker guarding calls to the
// exchange: too many consecutive failures trip it open, and once a cooldown
// has elapsed it only closes again after a run of consecutive successes. A
// guarded component can also force it open directly (loss-limit breach,
// watchdog trip, ...), which always fires the emergency callback exactly
// once per open transition regardless of how the breaker got there.
package breaker

import (
	"time"

	"trading-core/internal/model"
)

// Config tunes breaker sensitivity.
type Config struct {
	FailureThreshold  int           // consecutive failures before tripping open
	ResetTimeout      time.Duration // cooldown before successes are allowed to close it
	RequiredSuccesses int           // consecutive successes after cooldown needed to close
}

// DefaultConfig matches the original watchdog's trip threshold, extended
// with the spec's recovery requirement of three consecutive clean calls.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:  5,
		ResetTimeout:      60 * time.Second,
		RequiredSuccesses: 3,
	}
}

// EmergencyCallback is invoked exactly once per open transition, however the
// breaker got there (threshold trip or ForceOpen). Implementations should be
// fast and non-blocking; this is typically wired to the supervisor's
// shutdown/liquidation path.
type EmergencyCallback func(reason string)

// Breaker gates calls to a flaky or risk-sensitive dependency.
type Breaker interface {
	// Allow reports whether a call may proceed right now.
	Allow() bool
	// RecordSuccess reports a successful call.
	RecordSuccess()
	// RecordFailure reports a failed call.
	RecordFailure()
	// ForceOpen trips the breaker open immediately regardless of failure
	// count, recording reason for observability.
	ForceOpen(reason string)
	// State returns the current state for observability.
	State() model.CircuitState
}
