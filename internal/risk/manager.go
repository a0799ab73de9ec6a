package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"trading-core/internal/breaker"
	"trading-core/internal/bus"
	"trading-core/internal/gateway"
	"trading-core/internal/model"
	"trading-core/internal/portfolio"
)

const (
	signalTopic       = "signal"
	candlestickPrefix = "candlestick:"
	orderbookPrefix   = "orderbook:"

	candleRingCapacity = 500
	statsTimeout       = 5 * time.Second
)

// Manager sizes and places orders off MACD signals, manages each open
// position's take-profit/stop-loss intent, and watches portfolio
// drawdown, force-opening the breaker and liquidating on breach. It
// exclusively owns active TP/SL intent, per the single-writer ownership
// rule the portfolio manager follows for position state.
type Manager struct {
	b       bus.Bus
	brk     breaker.Breaker
	symbols []string
	cfg     Config

	mu      sync.RWMutex
	candles map[string]*candleRing
	mid     map[string]float64
	active  map[string]tpsl

	emergency atomic.Bool

	ddMu         sync.Mutex
	ddInitial    float64
	ddPeak       float64
	ddInitialSet bool
}

// NewManager builds a Manager for symbols using cfg.
func NewManager(b bus.Bus, brk breaker.Breaker, symbols []string, cfg Config) *Manager {
	candles := make(map[string]*candleRing, len(symbols))
	for _, s := range symbols {
		candles[s] = newCandleRing(candleRingCapacity)
	}
	return &Manager{
		b:       b,
		brk:     brk,
		symbols: symbols,
		cfg:     cfg,
		candles: candles,
		mid:     make(map[string]float64),
		active:  make(map[string]tpsl),
	}
}

// Run subscribes to the signal topic plus orderbook:<symbol> and
// candlestick:<symbol> for every configured symbol, and drives the
// drawdown watchdog, until ctx is canceled.
func (m *Manager) Run(ctx context.Context) error {
	watchdogCtx, cancelWatchdog := context.WithCancel(ctx)
	defer cancelWatchdog()
	go m.drawdownWatchdog(watchdogCtx)

	type topicSub struct {
		topic  string
		symbol string
		ch     <-chan bus.Envelope
		stop   func()
	}

	var subs []topicSub
	defer func() {
		for _, s := range subs {
			s.stop()
		}
	}()

	sigCh, stopSig, err := m.b.Subscribe(ctx, signalTopic)
	if err != nil {
		return fmt.Errorf("risk: subscribe %s: %w", signalTopic, err)
	}
	subs = append(subs, topicSub{topic: signalTopic, ch: sigCh, stop: stopSig})

	for _, symbol := range m.symbols {
		for _, prefix := range []string{orderbookPrefix, candlestickPrefix} {
			topic := prefix + symbol
			ch, stop, err := m.b.Subscribe(ctx, topic)
			if err != nil {
				return fmt.Errorf("risk: subscribe %s: %w", topic, err)
			}
			subs = append(subs, topicSub{topic: topic, symbol: symbol, ch: ch, stop: stop})
		}
	}

	type result struct {
		env   bus.Envelope
		topic string
	}
	out := make(chan result, 1)
	stopAll := make(chan struct{})
	defer close(stopAll)

	for _, s := range subs {
		go func(topic string, ch <-chan bus.Envelope) {
			for {
				select {
				case env, ok := <-ch:
					if !ok {
						return
					}
					select {
					case out <- result{env: env, topic: topic}:
					case <-stopAll:
						return
					}
				case <-stopAll:
					return
				}
			}
		}(s.topic, s.ch)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-out:
			switch {
			case r.topic == signalTopic:
				m.handleSignal(ctx, r.env)
			case len(r.topic) > len(orderbookPrefix) && r.topic[:len(orderbookPrefix)] == orderbookPrefix:
				m.handleOrderBook(r.env)
			case len(r.topic) > len(candlestickPrefix) && r.topic[:len(candlestickPrefix)] == candlestickPrefix:
				m.handleCandlestick(r.env)
			}
		}
	}
}

func (m *Manager) handleOrderBook(env bus.Envelope) {
	var ob model.OrderBook
	if err := json.Unmarshal(env.Value, &ob); err != nil {
		log.Printf("risk: bad orderbook event: %v", err)
		return
	}
	mid := ob.MidPrice()
	if mid.IsZero() {
		return
	}
	midFloat, _ := mid.Float64()

	m.mu.Lock()
	m.mid[ob.Symbol] = midFloat
	m.mu.Unlock()
}

func (m *Manager) handleCandlestick(env bus.Envelope) {
	var k model.Kline
	if err := json.Unmarshal(env.Value, &k); err != nil {
		log.Printf("risk: bad candlestick event: %v", err)
		return
	}
	if !k.Closed {
		return
	}

	m.mu.Lock()
	ring, ok := m.candles[k.Symbol]
	if ok {
		ring.push(k)
	}
	m.mu.Unlock()
}

// handleSignal implements on_signal_update (§4.7): reject while the
// breaker is open or emergency shutdown is active, otherwise fetch
// portfolio state, run managePosition, then act on Buy/Sell/Hold.
func (m *Manager) handleSignal(ctx context.Context, env bus.Envelope) {
	var sig model.Signal
	if err := json.Unmarshal(env.Value, &sig); err != nil {
		log.Printf("risk: bad signal event: %v", err)
		return
	}
	m.OnSignal(ctx, sig)
}

// OnSignal is on_signal_update's exported entry point, usable directly in
// tests without going through the bus.
func (m *Manager) OnSignal(ctx context.Context, sig model.Signal) {
	if m.emergency.Load() || !m.brk.Allow() {
		return
	}

	stats, err := portfolio.RequestStats(ctx, m.b, sig.Symbol, statsTimeout)
	if err != nil {
		log.Printf("risk: request portfolio stats for %s: %v", sig.Symbol, err)
		return
	}

	m.mu.RLock()
	mid, haveMid := m.mid[sig.Symbol]
	m.mu.RUnlock()
	if !haveMid {
		return
	}

	currentExposure := abs(stats.Position.Qty * mid)
	maxExposure := (stats.CashBalance + stats.UnrealizedPnL) * m.cfg.MaxExposurePct

	tpslRes, havePos := m.managePosition(sig.Symbol, stats.Position, mid)

	switch sig.Action {
	case model.ActionBuy:
		m.actOnBuy(ctx, sig.Symbol, stats.Position, mid, currentExposure, maxExposure, tpslRes, havePos)
	case model.ActionSell:
		m.actOnSell(ctx, sig.Symbol, stats.Position, mid, currentExposure, maxExposure, tpslRes, havePos)
	case model.ActionHold:
		// TP/SL management already ran above; no order action.
	}
}

func (m *Manager) actOnBuy(ctx context.Context, symbol string, pos model.Position, mid, currentExposure, maxExposure float64, tpslRes tpslResult, havePos bool) {
	switch {
	case pos.IsFlat():
		m.openPosition(ctx, symbol, model.SideBuy, mid)
	case pos.Qty > 0:
		if havePos && tpslRes.hit {
			m.closePosition(ctx, symbol, pos)
			return
		}
		if currentExposure < maxExposure {
			m.openPosition(ctx, symbol, model.SideBuy, mid)
		}
	case pos.Qty < 0:
		if havePos && tpslRes.hit {
			m.closePosition(ctx, symbol, pos)
		}
		// short, no TP/SL hit: ignore, no auto-reversal.
	}
}

func (m *Manager) actOnSell(ctx context.Context, symbol string, pos model.Position, mid, currentExposure, maxExposure float64, tpslRes tpslResult, havePos bool) {
	switch {
	case pos.IsFlat():
		m.openPosition(ctx, symbol, model.SideSell, mid)
	case pos.Qty < 0:
		if havePos && tpslRes.hit {
			m.closePosition(ctx, symbol, pos)
			return
		}
		if currentExposure < maxExposure {
			m.openPosition(ctx, symbol, model.SideSell, mid)
		}
	case pos.Qty > 0:
		if havePos && tpslRes.hit {
			m.closePosition(ctx, symbol, pos)
		}
		// long, no TP/SL hit: ignore, no auto-reversal.
	}
}

func (m *Manager) openPosition(ctx context.Context, symbol string, side model.Side, mid float64) {
	m.mu.RLock()
	ring := m.candles[symbol]
	m.mu.RUnlock()

	atrValue, ok := atr(ring, m.cfg.ATRPeriod)
	if !ok {
		return
	}
	qty, ok := positionSize(mid, atrValue, m.cfg.MaxRiskPerTradePct)
	if !ok || qty <= 0 {
		return
	}

	req := marketOrder(symbol, side, decimal.NewFromFloat(qty), false)
	if _, err := placeOrder(ctx, m.b, req); err != nil {
		log.Printf("risk: place order for %s: %v", symbol, err)
	}
}

func (m *Manager) closePosition(ctx context.Context, symbol string, pos model.Position) {
	side := model.SideSell
	if pos.Qty < 0 {
		side = model.SideBuy
	}
	req := marketOrder(symbol, side, decimal.NewFromFloat(abs(pos.Qty)), true)
	if _, err := placeOrder(ctx, m.b, req); err != nil {
		log.Printf("risk: close position for %s: %v", symbol, err)
	}
}

// managePosition implements manage_position (§4.7): computes the tiered
// TP/SL levels for symbol's open position and records them as the active
// intent. Returns (zero, false) when the position is flat or ATR isn't
// valid yet.
func (m *Manager) managePosition(symbol string, pos model.Position, mid float64) (tpslResult, bool) {
	if pos.IsFlat() {
		m.mu.Lock()
		delete(m.active, symbol)
		m.mu.Unlock()
		return tpslResult{}, false
	}

	m.mu.RLock()
	ring := m.candles[symbol]
	m.mu.RUnlock()

	atrValue, ok := atr(ring, m.cfg.ATRPeriod)
	if !ok {
		return tpslResult{}, false
	}
	risk := atrValue * m.cfg.ATRMultiplier

	m.mu.RLock()
	prev, havePrev := m.active[symbol]
	m.mu.RUnlock()

	unrealized := (mid - pos.AvgPrice) * pos.Qty
	res := computeTPSL(pos.AvgPrice, pos.Qty, mid, risk, unrealized, prev, havePrev)

	m.mu.Lock()
	m.active[symbol] = tpsl{stopLoss: res.stopLoss, takeProfit: res.takeProfit}
	m.mu.Unlock()

	return res, true
}

// drawdownWatchdog periodically samples portfolio value (cash + sum of
// unrealized) and force-opens the breaker plus triggers emergency
// liquidation on a relative or absolute drawdown breach (§4.7). It exits
// after firing once.
func (m *Manager) drawdownWatchdog(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.DrawdownCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.checkDrawdown(ctx) {
				return
			}
		}
	}
}

// checkDrawdown samples portfolio value once and returns true if it fired
// liquidation, signaling the watchdog to exit.
func (m *Manager) checkDrawdown(ctx context.Context) bool {
	value, ok := m.portfolioValue(ctx)
	if !ok {
		return false
	}

	m.ddMu.Lock()
	if !m.ddInitialSet {
		m.ddInitial = value
		m.ddPeak = value
		m.ddInitialSet = true
	}
	if value > m.ddPeak {
		m.ddPeak = value
	}
	initial, peak := m.ddInitial, m.ddPeak
	m.ddMu.Unlock()

	relativeDD := (peak - value) / peak
	absoluteDD := (initial - value) / initial

	if relativeDD >= m.cfg.MaxRelativeDD || absoluteDD >= m.cfg.MaxAbsoluteDD {
		reason := fmt.Sprintf("drawdown breach: relative=%.4f absolute=%.4f", relativeDD, absoluteDD)
		log.Printf("risk: %s", reason)
		m.EmergencyLiquidate(ctx)
		m.brk.ForceOpen(reason)
		return true
	}
	return false
}

// portfolioValue sums cash plus every configured symbol's unrealized PnL
// from the portfolio manager's read-only snapshot.
func (m *Manager) portfolioValue(ctx context.Context) (float64, bool) {
	var total float64
	var haveAny bool
	var cash float64

	for _, symbol := range m.symbols {
		stats, err := portfolio.RequestStats(ctx, m.b, symbol, statsTimeout)
		if err != nil {
			log.Printf("risk: drawdown sample: request stats for %s: %v", symbol, err)
			continue
		}
		cash = stats.CashBalance
		total += stats.UnrealizedPnL
		haveAny = true
	}
	if !haveAny {
		return 0, false
	}
	return cash + total, true
}

// EmergencyLiquidate fetches real positions and submits a Market order of
// each non-zero position's opposite side. Best-effort and idempotent: a
// second call against an already-flat book submits nothing, and individual
// failures are logged without reverting the emergency flag (§4.7/§9).
func (m *Manager) EmergencyLiquidate(ctx context.Context) {
	m.emergency.Store(true)

	positions, err := requestPositions(ctx, m.b)
	if err != nil {
		log.Printf("risk: emergency liquidate: fetch positions: %v", err)
		return
	}

	for _, pos := range positions {
		qty, _ := pos.PositionAmt.Float64()
		if qty == 0 {
			continue
		}
		side := model.SideSell
		if qty < 0 {
			side = model.SideBuy
		}
		req := gateway.PlaceOrderRequest{
			Symbol:     pos.Symbol,
			Side:       side,
			Type:       model.OrderTypeMarket,
			Quantity:   pos.PositionAmt.Abs(),
			ReduceOnly: true,
		}
		if _, err := placeOrder(ctx, m.b, req); err != nil {
			log.Printf("risk: emergency liquidate %s: %v", pos.Symbol, err)
		}
	}
}
