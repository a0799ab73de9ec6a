package breaker

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"trading-core/internal/model"
)

// RedisBreaker is a circuit breaker whose state is shared across processes
// through Redis, so every instance watching the same exchange connection
// trips and recovers together, and the emergency callback fires on exactly
// one process per open transition.
type RedisBreaker struct {
	client *redis.Client
	cfg    Config
	key    string // base key; state/failcount/openedAt/successes/emergency keys derive from it
	onOpen EmergencyCallback
}

// NewRedisBreaker creates a breaker that stores its state under keys
// prefixed by key. onOpen may be nil.
func NewRedisBreaker(client *redis.Client, key string, cfg Config, onOpen EmergencyCallback) *RedisBreaker {
	return &RedisBreaker{client: client, cfg: cfg, key: key, onOpen: onOpen}
}

func (b *RedisBreaker) stateKey() string     { return b.key + ":state" }
func (b *RedisBreaker) failuresKey() string  { return b.key + ":failures" }
func (b *RedisBreaker) openedAtKey() string  { return b.key + ":opened_at" }
func (b *RedisBreaker) successesKey() string { return b.key + ":successes" }
func (b *RedisBreaker) emergencyKey() string { return b.key + ":emergency_fired" }

// Allow reports whether a call may proceed right now, consulting the shared
// state. Once open, calls are refused until ResetTimeout has elapsed.
func (b *RedisBreaker) Allow() bool {
	ctx := context.Background()

	state, err := b.client.Get(ctx, b.stateKey()).Result()
	if err == redis.Nil {
		return true // never tripped
	}
	if err != nil {
		log.Printf("breaker: redis read failed, failing open: %v", err)
		return true
	}
	if model.CircuitState(state) == model.CircuitClosed {
		return true
	}

	openedAtUnix, err := b.client.Get(ctx, b.openedAtKey()).Int64()
	if err != nil {
		return false
	}
	return time.Since(time.Unix(openedAtUnix, 0)) >= b.cfg.ResetTimeout
}

// RecordSuccess counts a clean call toward closing the breaker once
// RequiredSuccesses consecutive clean calls land after the cooldown.
func (b *RedisBreaker) RecordSuccess() {
	ctx := context.Background()

	state, err := b.client.Get(ctx, b.stateKey()).Result()
	if err == redis.Nil || model.CircuitState(state) == model.CircuitClosed {
		b.client.Set(ctx, b.failuresKey(), 0, 0)
		return
	}

	openedAtUnix, err := b.client.Get(ctx, b.openedAtKey()).Int64()
	if err != nil || time.Since(time.Unix(openedAtUnix, 0)) < b.cfg.ResetTimeout {
		return
	}

	count, err := b.client.Incr(ctx, b.successesKey()).Result()
	if err != nil {
		log.Printf("breaker: redis incr successes failed: %v", err)
		return
	}
	if int(count) >= b.cfg.RequiredSuccesses {
		pipe := b.client.TxPipeline()
		pipe.Set(ctx, b.stateKey(), string(model.CircuitClosed), 0)
		pipe.Set(ctx, b.failuresKey(), 0, 0)
		pipe.Set(ctx, b.successesKey(), 0, 0)
		pipe.Del(ctx, b.emergencyKey())
		if _, err := pipe.Exec(ctx); err != nil {
			log.Printf("breaker: redis write failed on close: %v", err)
			return
		}
		log.Printf("breaker: %d consecutive successes after cooldown, closing (shared)", count)
	}
}

// RecordFailure increments the shared failure count, tripping the breaker
// open once the threshold is reached. A failure observed after the cooldown
// resets the recovery streak without re-tripping.
func (b *RedisBreaker) RecordFailure() {
	ctx := context.Background()

	state, _ := b.client.Get(ctx, b.stateKey()).Result()
	if model.CircuitState(state) != model.CircuitClosed && state != "" {
		b.client.Set(ctx, b.successesKey(), 0, 0)
		return
	}

	count, err := b.client.Incr(ctx, b.failuresKey()).Result()
	if err != nil {
		log.Printf("breaker: redis incr failed: %v", err)
		return
	}
	if int(count) >= b.cfg.FailureThreshold {
		b.trip(ctx, "failure threshold reached")
	}
}

// ForceOpen trips the breaker immediately regardless of failure count.
func (b *RedisBreaker) ForceOpen(reason string) {
	b.trip(context.Background(), reason)
}

func (b *RedisBreaker) trip(ctx context.Context, reason string) {
	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.stateKey(), string(model.CircuitOpen), 0)
	pipe.Set(ctx, b.openedAtKey(), time.Now().Unix(), 0)
	pipe.Set(ctx, b.failuresKey(), 0, 0)
	pipe.Set(ctx, b.successesKey(), 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("breaker: redis write failed on trip: %v", err)
		return
	}
	log.Printf("breaker: tripped OPEN (%s, shared), cooldown %s", reason, b.cfg.ResetTimeout)

	// Whichever process wins this SetNX is the one that runs the emergency
	// callback for this open transition.
	won, err := b.client.SetNX(ctx, b.emergencyKey(), 1, 0).Result()
	if err == nil && won && b.onOpen != nil {
		go b.onOpen(reason)
	}
}

// State returns the current shared state.
func (b *RedisBreaker) State() model.CircuitState {
	ctx := context.Background()
	state, err := b.client.Get(ctx, b.stateKey()).Result()
	if err != nil {
		return model.CircuitClosed
	}
	return model.CircuitState(state)
}
