package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultRequestTimeout is used by Request callers that don't specify one.
const DefaultRequestTimeout = 5 * time.Second

// Bus is the publish/subscribe/request-response fabric every component
// talks through. LocalBus and RedisBus both implement it.
type Bus interface {
	// Publish sends value (already JSON-encoded by the caller) on channel,
	// optionally carrying a correlation id.
	Publish(ctx context.Context, channel string, value []byte, correlationID *uuid.UUID) error

	// SetKey stores value as a last-known-value cache entry for channel,
	// expiring after ttl. A ttl of zero means no expiry.
	SetKey(ctx context.Context, channel string, value []byte, ttl time.Duration) error

	// GetKey retrieves the most recent value stored with SetKey, or
	// ErrKeyNotFound if absent or expired.
	GetKey(ctx context.Context, channel string) ([]byte, error)

	// Subscribe returns a channel of Envelopes published on channel, and an
	// unsubscribe function.
	Subscribe(ctx context.Context, channel string) (<-chan Envelope, func(), error)

	// Close releases the bus's resources.
	Close() error
}

// ErrKeyNotFound is returned by GetKey when no value (or no unexpired value)
// is stored under the given channel.
var ErrKeyNotFound = fmt.Errorf("bus: key not found")

// Request publishes value on reqChannel with a fresh correlation id, then
// waits up to timeout for a reply on respChannel carrying that same
// correlation id. A zero timeout uses DefaultRequestTimeout.
func Request(ctx context.Context, b Bus, reqChannel, respChannel string, value []byte, timeout time.Duration) (Envelope, error) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	replies, unsubscribe, err := b.Subscribe(ctx, respChannel)
	if err != nil {
		return Envelope{}, fmt.Errorf("bus request: subscribe reply channel: %w", err)
	}
	defer unsubscribe()

	correlationID := uuid.New()
	if err := b.Publish(ctx, reqChannel, value, &correlationID); err != nil {
		return Envelope{}, fmt.Errorf("bus request: publish: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return Envelope{}, fmt.Errorf("bus request: %w", ctx.Err())
		case env, ok := <-replies:
			if !ok {
				return Envelope{}, fmt.Errorf("bus request: reply channel closed")
			}
			if env.CorrelationID != nil && *env.CorrelationID == correlationID {
				return env, nil
			}
			// Not our reply (another requester sharing respChannel); keep waiting.
		}
	}
}
