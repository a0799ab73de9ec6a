package breaker

import (
	"log"
	"sync"
	"time"

	"trading-core/internal/model"
)

// LocalBreaker is an in-process circuit breaker, one per guarded dependency.
type LocalBreaker struct {
	cfg    Config
	onOpen EmergencyCallback

	mu             sync.Mutex
	state          model.CircuitState
	failureCount   int
	openedAt       time.Time
	consecutiveOK  int
	emergencyFired bool
}

// NewLocalBreaker creates a closed breaker. onOpen may be nil.
func NewLocalBreaker(cfg Config, onOpen EmergencyCallback) *LocalBreaker {
	return &LocalBreaker{cfg: cfg, state: model.CircuitClosed, onOpen: onOpen}
}

// Allow reports whether a call may proceed. Once open, calls are refused
// until ResetTimeout has elapsed; after that, calls are admitted so
// RecordSuccess/RecordFailure can observe whether the dependency has
// actually recovered.
func (b *LocalBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == model.CircuitClosed {
		return true
	}
	return time.Since(b.openedAt) >= b.cfg.ResetTimeout
}

// RecordSuccess counts a clean call. While open, it takes RequiredSuccesses
// consecutive clean calls after the cooldown to close the breaker again.
func (b *LocalBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == model.CircuitClosed {
		b.failureCount = 0
		return
	}
	if time.Since(b.openedAt) < b.cfg.ResetTimeout {
		return
	}

	b.consecutiveOK++
	if b.consecutiveOK >= b.cfg.RequiredSuccesses {
		log.Printf("breaker: %d consecutive successes after cooldown, closing", b.consecutiveOK)
		b.close()
	}
}

// RecordFailure counts a failure, tripping the breaker open once the
// threshold is reached. Any failure observed after the cooldown resets the
// recovery streak.
func (b *LocalBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != model.CircuitClosed {
		b.consecutiveOK = 0
		return
	}

	b.failureCount++
	if b.failureCount >= b.cfg.FailureThreshold {
		b.trip("failure threshold reached")
	}
}

// ForceOpen trips the breaker immediately regardless of failure count.
func (b *LocalBreaker) ForceOpen(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trip(reason)
}

// trip must be called with mu held.
func (b *LocalBreaker) trip(reason string) {
	alreadyOpen := b.state != model.CircuitClosed
	b.state = model.CircuitOpen
	b.openedAt = time.Now()
	b.failureCount = 0
	b.consecutiveOK = 0
	log.Printf("breaker: tripped OPEN (%s), cooldown %s", reason, b.cfg.ResetTimeout)

	if !alreadyOpen && !b.emergencyFired {
		b.emergencyFired = true
		if b.onOpen != nil {
			go b.onOpen(reason)
		}
	}
}

// close must be called with mu held.
func (b *LocalBreaker) close() {
	b.state = model.CircuitClosed
	b.failureCount = 0
	b.consecutiveOK = 0
	b.emergencyFired = false
}

// State returns the current breaker state.
func (b *LocalBreaker) State() model.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
