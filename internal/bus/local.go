package bus

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// subBuffer is the default channel depth for a local subscription. A slow
// subscriber drops messages rather than stalling the publisher.
const subBuffer = 256

type cacheEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// LocalBus fans messages out to in-process subscribers over buffered
// channels. Publish never blocks: a full subscriber channel drops the
// message and logs a warning.
type LocalBus struct {
	mu    sync.RWMutex
	subs  map[string][]chan Envelope
	cache map[string]cacheEntry
}

var _ Bus = (*LocalBus)(nil)

// NewLocalBus creates an empty in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{
		subs:  make(map[string][]chan Envelope),
		cache: make(map[string]cacheEntry),
	}
}

// Subscribe returns a channel that receives envelopes published on topic,
// and an unsubscribe function that must be called to release it.
func (b *LocalBus) Subscribe(_ context.Context, topic string) (<-chan Envelope, func(), error) {
	ch := make(chan Envelope, subBuffer)

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		chans := b.subs[topic]
		for i, c := range chans {
			if c == ch {
				b.subs[topic] = append(chans[:i], chans[i+1:]...)
				close(c)
				break
			}
		}
	}
	return ch, unsubscribe, nil
}

// Publish delivers value to every current subscriber of topic. Delivery is
// non-blocking per subscriber.
func (b *LocalBus) Publish(_ context.Context, topic string, value []byte, correlationID *uuid.UUID) error {
	b.mu.RLock()
	chans := b.subs[topic]
	b.mu.RUnlock()

	env := Envelope{Topic: topic, Value: value, CorrelationID: correlationID}
	for _, ch := range chans {
		select {
		case ch <- env:
		default:
			log.Printf("bus: dropping message on topic %q, subscriber channel full", topic)
		}
	}
	return nil
}

// SetKey stores the last-known value for channel, expiring after ttl (zero
// means no expiry).
func (b *LocalBus) SetKey(_ context.Context, channel string, value []byte, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	b.mu.Lock()
	b.cache[channel] = cacheEntry{value: append([]byte(nil), value...), expiresAt: expiresAt}
	b.mu.Unlock()
	return nil
}

// GetKey returns the last value stored with SetKey, or ErrKeyNotFound if
// absent or expired.
func (b *LocalBus) GetKey(_ context.Context, channel string) ([]byte, error) {
	b.mu.RLock()
	entry, ok := b.cache[channel]
	b.mu.RUnlock()
	if !ok {
		return nil, ErrKeyNotFound
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		return nil, ErrKeyNotFound
	}
	return entry.value, nil
}

// Close releases all subscriber channels.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.subs = make(map[string][]chan Envelope)
	return nil
}
