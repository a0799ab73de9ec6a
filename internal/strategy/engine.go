package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"trading-core/internal/bus"
	"trading-core/internal/model"
)

const candlestickPrefix = "candlestick:"
const signalTopic = "signal"

// Manager runs one macdSeries per configured symbol, fed from
// candlestick:<symbol> on the bus, and publishes a model.Signal to the
// signal topic for every closed candle it admits, Hold included.
type Manager struct {
	b        bus.Bus
	symbols  []string
	interval model.TimeInterval
	params   Params
	fetcher  HistoricalFetcher

	series map[string]*macdSeries
}

// NewManager builds a Manager for symbols at interval using DefaultParams.
// fetcher may be nil, in which case the strategy skips historical seeding
// and runs warm-up purely off live candles.
func NewManager(b bus.Bus, symbols []string, interval model.TimeInterval, fetcher HistoricalFetcher) *Manager {
	series := make(map[string]*macdSeries, len(symbols))
	for _, s := range symbols {
		series[s] = newMACDSeries(DefaultParams())
	}
	return &Manager{
		b:        b,
		symbols:  symbols,
		interval: interval,
		params:   DefaultParams(),
		fetcher:  fetcher,
		series:   series,
	}
}

// seed warms every symbol's EMAs from up to historySeedCandles closed
// candles before Run admits live ones. If the fetch fails or returns no
// candles, the symbol instead warms up from its live stream and holds its
// verdict until both periods are filled, per spec.md §4.6.
func (m *Manager) seed(ctx context.Context) {
	for _, symbol := range m.symbols {
		series := m.series[symbol]

		if m.fetcher == nil {
			series.requireWarmup(m.params.SlowPeriod)
			continue
		}

		klines, err := m.fetcher.GetKlines(symbol, m.interval, historySeedCandles)
		if err != nil {
			log.Printf("strategy: historical seed %s: %v", symbol, err)
			series.requireWarmup(m.params.SlowPeriod)
			continue
		}
		if len(klines) == 0 {
			series.requireWarmup(m.params.SlowPeriod)
			continue
		}
		for _, k := range klines {
			series.update(k)
		}
	}
}

// Run subscribes to candlestick:<symbol> for every configured symbol and
// processes closed candles until ctx is canceled.
func (m *Manager) Run(ctx context.Context) error {
	m.seed(ctx)

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

	for _, symbol := range m.symbols {
		topic := candlestickPrefix + symbol
		ch, stop, err := m.b.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("strategy: subscribe %s: %w", topic, err)
		}
		subs = append(subs, topicSub{topic: topic, symbol: symbol, ch: ch, stop: stop})
	}

	type result struct {
		env    bus.Envelope
		symbol string
	}
	out := make(chan result, 1)
	stopAll := make(chan struct{})
	defer close(stopAll)

	for _, s := range subs {
		go func(symbol string, ch <-chan bus.Envelope) {
			for {
				select {
				case env, ok := <-ch:
					if !ok {
						return
					}
					select {
					case out <- result{env: env, symbol: symbol}:
					case <-stopAll:
						return
					}
				case <-stopAll:
					return
				}
			}
		}(s.symbol, s.ch)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-out:
			m.handleCandlestick(ctx, r.symbol, r.env)
		}
	}
}

// handleCandlestick feeds one closed candle into its symbol's series and
// publishes a Signal on every closed candle, including Hold, so the risk
// manager's TP/SL management runs on every candle per spec.md §4.7/§4.6.
// Non-closed (in-progress) candles are dropped before reaching the series,
// per spec.md §9(b).
func (m *Manager) handleCandlestick(ctx context.Context, symbol string, env bus.Envelope) {
	var k model.Kline
	if err := json.Unmarshal(env.Value, &k); err != nil {
		log.Printf("strategy: bad candlestick for %s: %v", symbol, err)
		return
	}
	if !k.Closed {
		return
	}

	series, ok := m.series[symbol]
	if !ok {
		return
	}

	action := series.update(k)

	sig := model.Signal{
		Symbol:    symbol,
		Action:    action,
		Score:     series.macd - series.signalLine,
		Price:     k.Close,
		Timestamp: time.Now(),
	}
	payload, err := json.Marshal(sig)
	if err != nil {
		log.Printf("strategy: marshal signal for %s: %v", symbol, err)
		return
	}
	if err := m.b.Publish(ctx, signalTopic, payload, nil); err != nil {
		log.Printf("strategy: publish signal for %s: %v", symbol, err)
	}
}
