// Package gateway is the market gateway (C3): it drives an Exchange
// binding's depth/kline/user-data streams, normalizes and publishes them
// onto the bus, and answers the API@* request topics that place orders and
// query account state on the exchange's behalf.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"trading-core/internal/breaker"
	"trading-core/internal/bus"
	"trading-core/internal/model"
)

const lastValueTTL = 180 * time.Second

// Gateway owns one Exchange binding and republishes its streams onto the
// bus for the configured symbols, per §4.3.
type Gateway struct {
	b        bus.Bus
	brk      breaker.Breaker
	ex       Exchange
	symbols  []string
	interval model.TimeInterval
}

// NewGateway builds a Gateway driving ex for symbols at interval.
func NewGateway(b bus.Bus, brk breaker.Breaker, ex Exchange, symbols []string, interval model.TimeInterval) *Gateway {
	return &Gateway{b: b, brk: brk, ex: ex, symbols: symbols, interval: interval}
}

// Run starts the depth, kline, and user-data subscriptions for every
// configured symbol plus the API responder, and blocks until ctx is
// canceled, at which point it closes the exchange binding.
func (g *Gateway) Run(ctx context.Context) error {
	defer g.ex.Close()

	for _, symbol := range g.symbols {
		symbol := symbol
		if err := g.runDepth(ctx, symbol); err != nil {
			log.Printf("gateway: depth subscription for %s: %v", symbol, err)
		}
		if err := g.runKlines(ctx, symbol); err != nil {
			log.Printf("gateway: kline subscription for %s: %v", symbol, err)
		}
	}
	if err := g.runUserData(ctx); err != nil {
		log.Printf("gateway: user-data subscription: %v", err)
	}

	return g.runAPIResponder(ctx)
}

func (g *Gateway) runDepth(ctx context.Context, symbol string) error {
	ch, err := g.ex.SubscribeDepth(ctx, symbol)
	if err != nil {
		return err
	}
	go func() {
		for ob := range ch {
			g.publish(ctx, "orderbook:"+symbol, ob)
		}
	}()
	return nil
}

func (g *Gateway) runKlines(ctx context.Context, symbol string) error {
	ch, err := g.ex.SubscribeKlines(ctx, symbol, g.interval)
	if err != nil {
		return err
	}
	go func() {
		for k := range ch {
			g.publish(ctx, "candlestick:"+symbol, k)
		}
	}()
	return nil
}

func (g *Gateway) runUserData(ctx context.Context) error {
	ch, err := g.ex.SubscribeUserData(ctx)
	if err != nil {
		return err
	}
	go func() {
		for evt := range ch {
			g.publishNoCache(ctx, "execution:"+evt.Symbol, evt)
		}
	}()
	return nil
}

// publish JSON-encodes value and publishes it on topic, also refreshing
// the last-value cache with a 180s TTL so late subscribers can snapshot
// (§6). Publish failures record against the breaker per §4.1.
func (g *Gateway) publish(ctx context.Context, topic string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		log.Printf("gateway: marshal %s: %v", topic, err)
		return
	}
	if !g.brk.Allow() {
		return
	}
	if err := g.b.Publish(ctx, topic, payload, nil); err != nil {
		g.brk.RecordFailure()
		log.Printf("gateway: publish %s: %v", topic, err)
		return
	}
	g.brk.RecordSuccess()
	if err := g.b.SetKey(ctx, topic, payload, lastValueTTL); err != nil {
		log.Printf("gateway: set last-value key %s: %v", topic, err)
	}
}

// publishNoCache is publish without the last-value cache write, used for
// execution events: those are a stream of discrete updates, not a
// snapshot a late subscriber should resume from.
func (g *Gateway) publishNoCache(ctx context.Context, topic string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		log.Printf("gateway: marshal %s: %v", topic, err)
		return
	}
	if !g.brk.Allow() {
		return
	}
	if err := g.b.Publish(ctx, topic, payload, nil); err != nil {
		g.brk.RecordFailure()
		log.Printf("gateway: publish %s: %v", topic, err)
		return
	}
	g.brk.RecordSuccess()
}
