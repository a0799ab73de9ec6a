// Package ordermanager is the order manager (C4): it consumes normalized
// execution reports off execution:<symbol> and upserts them into the
// persisted order store, keyed by exchange order id, one transaction per
// event (§4.4).
package ordermanager

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"trading-core/internal/bus"
	"trading-core/internal/model"
)

const executionPrefix = "execution:"

// Store is the persistence boundary the manager writes through;
// pkg/db.OrderStore implements it.
type Store interface {
	Upsert(ctx context.Context, evt model.OrderEvent) error
}

// Manager owns the persisted order store. It is the store's only writer.
type Manager struct {
	b       bus.Bus
	store   Store
	symbols []string
}

// NewManager builds an order manager for the given symbols, writing
// through store.
func NewManager(b bus.Bus, store Store, symbols []string) *Manager {
	return &Manager{b: b, store: store, symbols: symbols}
}

// Run subscribes to execution:<symbol> for every configured symbol and
// upserts each event until ctx is canceled.
func (m *Manager) Run(ctx context.Context) error {
	type sub struct {
		ch   <-chan bus.Envelope
		stop func()
	}
	subs := make([]sub, 0, len(m.symbols))
	defer func() {
		for _, s := range subs {
			s.stop()
		}
	}()

	merged := make(chan bus.Envelope, 1)
	stopAll := make(chan struct{})
	defer close(stopAll)

	for _, symbol := range m.symbols {
		topic := executionPrefix + symbol
		ch, stop, err := m.b.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("ordermanager: subscribe %s: %w", topic, err)
		}
		subs = append(subs, sub{ch: ch, stop: stop})

		go func(ch <-chan bus.Envelope) {
			for {
				select {
				case env, ok := <-ch:
					if !ok {
						return
					}
					select {
					case merged <- env:
					case <-stopAll:
						return
					}
				case <-stopAll:
					return
				}
			}
		}(ch)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-merged:
			m.handleExecution(ctx, env)
		}
	}
}

// handleExecution decodes one execution event and upserts it. A decode
// failure or an unknown enum value is logged and dropped, never
// corrupting the store (§4.4, §9).
func (m *Manager) handleExecution(ctx context.Context, env bus.Envelope) {
	var evt model.OrderEvent
	if err := json.Unmarshal(env.Value, &evt); err != nil {
		log.Printf("ordermanager: bad execution event: %v", err)
		return
	}
	if !validEnums(evt) {
		log.Printf("ordermanager: order %d has unknown enum value, dropping", evt.ExchangeOrderID)
		return
	}
	if err := m.store.Upsert(ctx, evt); err != nil {
		log.Printf("ordermanager: upsert order %d: %v", evt.ExchangeOrderID, err)
	}
}

// validEnums rejects a record whose side, execution type, or status
// didn't deserialize into one of the canonical domain values, per the
// "dynamic enum values from the exchange" redesign note in §9: an unknown
// string demotes the record to a log-only warning rather than crashing
// the worker or writing a corrupt row.
func validEnums(evt model.OrderEvent) bool {
	switch evt.Side {
	case model.SideBuy, model.SideSell:
	default:
		return false
	}
	switch evt.ExecutionType {
	case model.ExecTypeNew, model.ExecTypeTrade, model.ExecTypeCanceled,
		model.ExecTypeExpired, model.ExecTypeCalculated, model.ExecTypeAmendment:
	default:
		return false
	}
	switch evt.Status {
	case model.OrderStatusNew, model.OrderStatusPartiallyFilled, model.OrderStatusFilled,
		model.OrderStatusCanceled, model.OrderStatusExpired, model.OrderStatusRejected:
	default:
		return false
	}
	return true
}
