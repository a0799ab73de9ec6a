// Package portfolio is the single-writer book-keeper (C5): it consumes
// execution reports and order-book tops for a set of symbols and maintains
// positions, realized/unrealized PnL and commission totals, exposing a
// read-only snapshot to the rest of the system over the bus's
// request/response pattern.
package portfolio

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"trading-core/internal/bus"
	"trading-core/internal/model"
)

// statsTopic is where other components request a symbol's portfolio
// snapshot; respTopic is where the reply is published.
const statsTopic = "PortfolioManager@stats"
const respTopic = "Response"

// BidAsk is the last known top-of-book for a symbol.
type BidAsk struct {
	BestBid float64 `json:"best_bid"`
	BestAsk float64 `json:"best_ask"`
}

// Stats is the read-only snapshot returned by a PortfolioManager@stats
// request.
type Stats struct {
	Symbol           string         `json:"symbol"`
	Position         model.Position `json:"position"`
	UnrealizedPnL    float64        `json:"unrealized_pnl"`
	LastMarketPrice  BidAsk         `json:"last_market_price"`
	RealizedPnL      float64        `json:"realized_pnl"`
	TotalCommissions float64        `json:"total_commissions"`
	TotalPnL         float64        `json:"total_pnl"`
	CashBalance      float64        `json:"cash_balance"`
	AveragePrice     float64        `json:"average_price"`
}

// StatsRequest is the JSON payload published on statsTopic.
type StatsRequest struct {
	Symbol string `json:"symbol"`
}

// Manager owns all portfolio state for the symbols it is configured with.
// It must only be mutated from the goroutine running Run.
type Manager struct {
	b       bus.Bus
	symbols []string

	positions        map[string]model.Position
	realizedPnL      float64
	unrealizedPnL    map[string]float64
	lastMarketPrice  map[string]BidAsk
	totalCommissions float64
	tradeHistory     []model.OrderEvent
	cashBalance      float64

	applied *dedupeSet
}

// NewManager creates a portfolio manager for the given symbols. cashBalance
// is the starting wallet balance (e.g. from an account query at startup);
// it is not independently refreshed here since the exchange is the source
// of truth for realized cash movements outside of trading (funding,
// transfers) and this core does not poll for those.
func NewManager(b bus.Bus, symbols []string, cashBalance float64) *Manager {
	return &Manager{
		b:               b,
		symbols:         symbols,
		positions:       make(map[string]model.Position),
		unrealizedPnL:   make(map[string]float64),
		lastMarketPrice: make(map[string]BidAsk),
		cashBalance:     cashBalance,
		applied:         newDedupeSet(dedupeCapacity),
	}
}

// Run subscribes to execution:<symbol> and orderbook:<symbol> for every
// configured symbol plus the stats request topic, and processes them until
// ctx is canceled.
func (m *Manager) Run(ctx context.Context) error {
	var subs []topicSub
	defer func() {
		for _, s := range subs {
			s.stop()
		}
	}()

	for _, symbol := range m.symbols {
		for _, prefix := range []string{"execution:", "orderbook:"} {
			topic := prefix + symbol
			ch, stop, err := m.b.Subscribe(ctx, topic)
			if err != nil {
				return fmt.Errorf("portfolio: subscribe %s: %w", topic, err)
			}
			subs = append(subs, topicSub{topic: topic, ch: ch, stop: stop})
		}
	}

	statsCh, stopStats, err := m.b.Subscribe(ctx, statsTopic)
	if err != nil {
		return fmt.Errorf("portfolio: subscribe %s: %w", statsTopic, err)
	}
	subs = append(subs, topicSub{topic: statsTopic, ch: statsCh, stop: stopStats})

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		env, topic, ok := recvAny(ctx, subs)
		if !ok {
			return nil
		}

		switch {
		case topic == statsTopic:
			m.handleStatsRequest(ctx, env)
		case len(topic) > len("execution:") && topic[:len("execution:")] == "execution:":
			m.handleExecution(env)
		case len(topic) > len("orderbook:") && topic[:len("orderbook:")] == "orderbook:":
			m.handleOrderBook(env)
		}
	}
}

// topicSub pairs a subscription channel with the topic it was opened for
// and its unsubscribe function.
type topicSub struct {
	topic string
	ch    <-chan bus.Envelope
	stop  func()
}

// recvAny is a small fan-in over an arbitrary number of subscription
// channels; it favors simplicity over a generated reflect.Select since the
// subscription set here is small and fixed per run.
func recvAny(ctx context.Context, subs []topicSub) (bus.Envelope, string, bool) {
	type result struct {
		env   bus.Envelope
		topic string
	}
	out := make(chan result, 1)
	done := ctx.Done()

	// A small local select tree would not scale to an arbitrary subscription
	// count; spin one goroutine per channel feeding a shared result channel,
	// which is cheap since sets here are small (≤ a few symbols × 2 + stats).
	stopAll := make(chan struct{})
	for _, s := range subs {
		go func(topic string, ch <-chan bus.Envelope) {
			select {
			case env, ok := <-ch:
				if ok {
					select {
					case out <- result{env: env, topic: topic}:
					case <-stopAll:
					}
				}
			case <-stopAll:
			}
		}(s.topic, s.ch)
	}

	select {
	case <-done:
		close(stopAll)
		return bus.Envelope{}, "", false
	case r := <-out:
		close(stopAll)
		return r.env, r.topic, true
	}
}

func (m *Manager) handleStatsRequest(ctx context.Context, env bus.Envelope) {
	var req StatsRequest
	if err := json.Unmarshal(env.Value, &req); err != nil {
		log.Printf("portfolio: bad stats request: %v", err)
		return
	}

	stats := m.Stats(req.Symbol)
	payload, err := json.Marshal(stats)
	if err != nil {
		log.Printf("portfolio: marshal stats: %v", err)
		return
	}
	if err := m.b.Publish(ctx, respTopic, payload, env.CorrelationID); err != nil {
		log.Printf("portfolio: publish stats response: %v", err)
	}
}

// Stats returns a snapshot for symbol. total_pnl sums realized plus every
// symbol's unrealized, not just this symbol's, per spec.md §4.5.
func (m *Manager) Stats(symbol string) Stats {
	var totalUnrealized float64
	for _, v := range m.unrealizedPnL {
		totalUnrealized += v
	}

	pos := m.positions[symbol]
	return Stats{
		Symbol:           symbol,
		Position:         pos,
		UnrealizedPnL:    m.unrealizedPnL[symbol],
		LastMarketPrice:  m.lastMarketPrice[symbol],
		RealizedPnL:      m.realizedPnL,
		TotalCommissions: m.totalCommissions,
		TotalPnL:         m.realizedPnL + totalUnrealized,
		CashBalance:      m.cashBalance,
		AveragePrice:     pos.AvgPrice,
	}
}

func (m *Manager) handleExecution(env bus.Envelope) {
	var evt model.OrderEvent
	if err := json.Unmarshal(env.Value, &evt); err != nil {
		log.Printf("portfolio: bad execution event: %v", err)
		return
	}
	m.ApplyFill(evt)
}

func (m *Manager) handleOrderBook(env bus.Envelope) {
	var ob model.OrderBook
	if err := json.Unmarshal(env.Value, &ob); err != nil {
		log.Printf("portfolio: bad orderbook event: %v", err)
		return
	}
	m.ApplyOrderBook(ob)
}

// ApplyFill applies one execution report to portfolio state. Only actual
// trade executions move positions: New/Canceled/Expired/Calculated reports
// carry no fill quantity and are order-manager's concern, not ours.
// Duplicate redeliveries of the same trade are suppressed by a bounded LRU
// keyed on (order_id, last_qty, trade_time_ms).
func (m *Manager) ApplyFill(evt model.OrderEvent) {
	if evt.ExecutionType != model.ExecTypeTrade {
		return
	}
	lastQty, _ := evt.LastFilledQty.Float64()
	if lastQty <= 0 {
		return
	}

	key := evt.DedupeKey()
	if m.applied.seen(key) {
		return
	}
	m.applied.add(key)

	commission, _ := evt.Commission.Float64()
	m.totalCommissions += commission

	price, _ := evt.LastFilledPrice.Float64()
	filledQty := lastQty
	if evt.Side == model.SideSell {
		filledQty = -lastQty
	}

	pos := m.positions[evt.Symbol]
	pos.Symbol = evt.Symbol
	newPos, realizedDelta := applyFillToPosition(pos, filledQty, price)
	m.positions[evt.Symbol] = newPos
	m.realizedPnL += realizedDelta

	m.tradeHistory = append(m.tradeHistory, evt)
	m.recomputeUnrealized(evt.Symbol)
}

// applyFillToPosition implements the weighted-average-entry trade
// application algorithm from spec.md §4.5: open / add / partial-close /
// flat / reverse, returning the resulting position and any realized PnL
// delta produced by closing part or all of the prior position.
func applyFillToPosition(pos model.Position, filledQty, filledPrice float64) (model.Position, float64) {
	q, avg := pos.Qty, pos.AvgPrice

	if q == 0 {
		return model.Position{Symbol: pos.Symbol, Qty: filledQty, AvgPrice: filledPrice, RealizedPnL: pos.RealizedPnL}, 0
	}

	sameSign := (q > 0) == (filledQty > 0)
	if sameSign {
		newQty := q + filledQty
		newAvg := (absf(q)*avg + absf(filledQty)*filledPrice) / (absf(q) + absf(filledQty))
		return model.Position{Symbol: pos.Symbol, Qty: newQty, AvgPrice: newAvg, RealizedPnL: pos.RealizedPnL}, 0
	}

	// Opposite sign: closing, possibly flipping through flat.
	var pnlPerUnit float64
	if q > 0 {
		pnlPerUnit = filledPrice - avg
	} else {
		pnlPerUnit = avg - filledPrice
	}

	switch {
	case absf(filledQty) < absf(q):
		realized := pnlPerUnit * absf(filledQty)
		newQty := q + filledQty
		return model.Position{Symbol: pos.Symbol, Qty: newQty, AvgPrice: avg, RealizedPnL: pos.RealizedPnL + realized}, realized
	case absf(filledQty) == absf(q):
		realized := pnlPerUnit * absf(filledQty)
		return model.Position{Symbol: pos.Symbol, Qty: 0, AvgPrice: 0, RealizedPnL: pos.RealizedPnL + realized}, realized
	default: // reverse
		realized := pnlPerUnit * absf(q)
		remainder := absf(filledQty) - absf(q)
		sign := 1.0
		if filledQty < 0 {
			sign = -1.0
		}
		newPos := model.Position{Symbol: pos.Symbol, Qty: remainder * sign, AvgPrice: filledPrice, RealizedPnL: pos.RealizedPnL + realized}
		return newPos, realized
	}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// ApplyOrderBook refreshes the last-known top-of-book for a symbol and
// recomputes its unrealized PnL.
func (m *Manager) ApplyOrderBook(ob model.OrderBook) {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	bidF, _ := bid.Price.Float64()
	askF, _ := ask.Price.Float64()

	m.lastMarketPrice[ob.Symbol] = BidAsk{BestBid: bidF, BestAsk: askF}
	m.recomputeUnrealized(ob.Symbol)
}

// recomputeUnrealized applies spec.md §4.5's unrealized-PnL rule: long
// positions mark against the best bid, shorts against the best ask.
func (m *Manager) recomputeUnrealized(symbol string) {
	pos, ok := m.positions[symbol]
	if !ok || pos.IsFlat() {
		m.unrealizedPnL[symbol] = 0
		return
	}
	quote, ok := m.lastMarketPrice[symbol]
	if !ok {
		return
	}

	if pos.Qty > 0 {
		m.unrealizedPnL[symbol] = (quote.BestBid - pos.AvgPrice) * pos.Qty
	} else {
		m.unrealizedPnL[symbol] = (pos.AvgPrice - quote.BestAsk) * absf(pos.Qty)
	}
}

// RequestStats is the client-side helper other components use to fetch a
// symbol's snapshot over the bus.
func RequestStats(ctx context.Context, b bus.Bus, symbol string, timeout time.Duration) (Stats, error) {
	payload, err := json.Marshal(StatsRequest{Symbol: symbol})
	if err != nil {
		return Stats{}, err
	}
	env, err := bus.Request(ctx, b, statsTopic, respTopic, payload, timeout)
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	if err := json.Unmarshal(env.Value, &stats); err != nil {
		return Stats{}, fmt.Errorf("portfolio: decode stats response: %w", err)
	}
	return stats, nil
}
