package bus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisBus publishes and subscribes through Redis Pub/Sub, letting the
// gateway, order manager, portfolio, strategy and risk components run as
// separate processes sharing one event stream.
type RedisBus struct {
	client *redis.Client
	prefix string
}

var _ Bus = (*RedisBus)(nil)

// NewRedisBus wraps an existing Redis client. prefix namespaces every
// channel name, so multiple trading-core instances can share a Redis
// instance without cross-talk.
func NewRedisBus(client *redis.Client, prefix string) *RedisBus {
	return &RedisBus{client: client, prefix: prefix}
}

func (b *RedisBus) channel(topic string) string {
	if b.prefix == "" {
		return topic
	}
	return b.prefix + ":" + topic
}

// Publish encodes value as an envelope and publishes it on topic's Redis
// channel.
func (b *RedisBus) Publish(ctx context.Context, topic string, value []byte, correlationID *uuid.UUID) error {
	payload, err := EncodeEnvelope(Envelope{Topic: topic, Value: value, CorrelationID: correlationID})
	if err != nil {
		return fmt.Errorf("redis bus publish: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(topic), payload).Err(); err != nil {
		return fmt.Errorf("redis bus publish: %w", err)
	}
	return nil
}

// Subscribe subscribes to topic's Redis channel and decodes incoming
// messages into Envelopes. The returned channel closes when the context is
// canceled or the unsubscribe function is called.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (<-chan Envelope, func(), error) {
	sub := b.client.Subscribe(ctx, b.channel(topic))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis bus subscribe %q: %w", topic, err)
	}

	out := make(chan Envelope, subBuffer)
	done := make(chan struct{})

	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				env, err := DecodeEnvelope([]byte(msg.Payload))
				if err != nil {
					log.Printf("bus: dropping malformed message on topic %q: %v", topic, err)
					continue
				}
				select {
				case out <- env:
				default:
					log.Printf("bus: dropping message on topic %q, subscriber channel full", topic)
				}
			}
		}
	}()

	unsubscribe := func() {
		close(done)
		_ = sub.Close()
	}
	return out, unsubscribe, nil
}

// SetKey stores value under channel with expiry ttl (zero means no expiry),
// implemented as a plain Redis SET ... EX.
func (b *RedisBus) SetKey(ctx context.Context, channel string, value []byte, ttl time.Duration) error {
	if err := b.client.Set(ctx, b.channel(channel), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis bus set key %q: %w", channel, err)
	}
	return nil
}

// GetKey retrieves the value stored by SetKey, or ErrKeyNotFound.
func (b *RedisBus) GetKey(ctx context.Context, channel string) ([]byte, error) {
	val, err := b.client.Get(ctx, b.channel(channel)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis bus get key %q: %w", channel, err)
	}
	return val, nil
}

// Close closes the underlying Redis client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
