package breaker

import (
	"sync/atomic"
	"testing"
	"time"

	"trading-core/internal/model"
)

func TestLocalBreakerTripsAtThreshold(t *testing.T) {
	b := NewLocalBreaker(Config{FailureThreshold: 3, ResetTimeout: time.Hour, RequiredSuccesses: 1}, nil)

	for i := 0; i < 2; i++ {
		if !b.Allow() {
			t.Fatalf("expected Allow() true before threshold reached")
		}
		b.RecordFailure()
	}
	if b.State() != model.CircuitClosed {
		t.Fatalf("state = %v, want CLOSED before threshold", b.State())
	}

	b.RecordFailure()
	if b.State() != model.CircuitOpen {
		t.Fatalf("state = %v, want OPEN at threshold", b.State())
	}
	if b.Allow() {
		t.Fatalf("expected Allow() false while open and within cooldown")
	}
}

func TestLocalBreakerRecoversAfterConsecutiveSuccesses(t *testing.T) {
	b := NewLocalBreaker(Config{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond, RequiredSuccesses: 3}, nil)

	b.RecordFailure()
	if b.State() != model.CircuitOpen {
		t.Fatalf("state = %v, want OPEN", b.State())
	}

	time.Sleep(20 * time.Millisecond)

	if !b.Allow() {
		t.Fatalf("expected calls to be allowed again after cooldown")
	}

	b.RecordSuccess()
	b.RecordSuccess()
	if b.State() != model.CircuitOpen {
		t.Fatalf("state = %v, want still OPEN before required successes reached", b.State())
	}

	b.RecordSuccess()
	if b.State() != model.CircuitClosed {
		t.Fatalf("state = %v, want CLOSED after required consecutive successes", b.State())
	}
}

func TestLocalBreakerFailureAfterCooldownResetsStreak(t *testing.T) {
	b := NewLocalBreaker(Config{FailureThreshold: 1, ResetTimeout: time.Millisecond, RequiredSuccesses: 2}, nil)

	b.RecordFailure()
	time.Sleep(5 * time.Millisecond)

	b.RecordSuccess()
	b.RecordFailure()
	b.RecordSuccess()
	if b.State() != model.CircuitOpen {
		t.Fatalf("state = %v, want still OPEN: failure should have reset the success streak", b.State())
	}
	b.RecordSuccess()
	if b.State() != model.CircuitClosed {
		t.Fatalf("state = %v, want CLOSED after a fresh streak of required successes", b.State())
	}
}

func TestLocalBreakerEmergencyCallbackFiresOncePerOpen(t *testing.T) {
	var fired int32
	var lastReason string
	b := NewLocalBreaker(Config{FailureThreshold: 1, ResetTimeout: time.Hour, RequiredSuccesses: 1}, func(reason string) {
		atomic.AddInt32(&fired, 1)
		lastReason = reason
	})

	b.RecordFailure()
	b.RecordFailure() // already open; must not re-fire
	b.ForceOpen("redundant")

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&fired) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Fatalf("emergency callback fired %d times, want exactly 1", got)
	}
	if lastReason == "" {
		t.Fatalf("expected a non-empty reason")
	}
}

func TestLocalBreakerForceOpen(t *testing.T) {
	b := NewLocalBreaker(Config{FailureThreshold: 100, ResetTimeout: time.Hour, RequiredSuccesses: 1}, nil)
	b.ForceOpen("drawdown watchdog")
	if b.State() != model.CircuitOpen {
		t.Fatalf("state = %v, want OPEN after ForceOpen", b.State())
	}
	if b.Allow() {
		t.Fatalf("expected Allow() false immediately after ForceOpen")
	}
}
