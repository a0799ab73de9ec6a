// Package mock implements gateway.Exchange with a synthetic random-walk
// price feed, adapted from the teacher's internal/market.MockFeed so the
// core runs end-to-end without live exchange credentials.
package mock

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"trading-core/internal/gateway"
	"trading-core/internal/model"
)

// Config tunes the synthetic feed.
type Config struct {
	StartPrice float64
	Step       float64
	Interval   time.Duration
}

// DefaultConfig matches the teacher's mock feed defaults.
func DefaultConfig() Config {
	return Config{StartPrice: 50000, Step: 25, Interval: time.Second}
}

// Exchange is a synthetic venue: it generates a random-walk mid-price per
// symbol and acknowledges every order with status FILLED. Its user-data
// stream emits no execution reports.
type Exchange struct {
	cfg Config

	mu     sync.Mutex
	prices map[string]float64

	orderSeq atomic.Int64
	closed   atomic.Bool
}

var _ gateway.Exchange = (*Exchange)(nil)

// New builds a mock Exchange using cfg.
func New(cfg Config) *Exchange {
	return &Exchange{cfg: cfg, prices: make(map[string]float64)}
}

func (e *Exchange) priceFor(symbol string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.prices[symbol]
	if !ok {
		p = e.cfg.StartPrice
		if p == 0 {
			p = 50000
		}
	}
	step := e.cfg.Step
	if step == 0 {
		step = 25
	}
	p += (rand.Float64()*2 - 1) * step
	if p <= 0 {
		p = step
	}
	e.prices[symbol] = p
	return p
}

func (e *Exchange) SubmitOrder(_ context.Context, req gateway.OrderRequest) (gateway.OrderResult, error) {
	id := e.orderSeq.Add(1)
	return gateway.OrderResult{
		ExchangeOrderID: id,
		ClientOrderID:   req.ClientOrderID,
		Status:          model.OrderStatusFilled,
	}, nil
}

func (e *Exchange) CancelOrder(_ context.Context, _ string, _ int64) error {
	return nil
}

func (e *Exchange) GetPositions(_ context.Context) ([]gateway.PositionRisk, error) {
	return nil, nil
}

func (e *Exchange) GetAccountBalance(_ context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(10000), nil
}

func (e *Exchange) SubscribeDepth(ctx context.Context, symbol string) (<-chan model.OrderBook, error) {
	interval := e.cfg.Interval
	if interval == 0 {
		interval = time.Second
	}
	out := make(chan model.OrderBook, 16)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if e.closed.Load() {
					return
				}
				mid := decimal.NewFromFloat(e.priceFor(symbol))
				spread := decimal.NewFromFloat(0.5)
				ob := model.OrderBook{
					Symbol: symbol,
					Bids:   []model.PriceLevel{{Price: mid.Sub(spread), Size: decimal.NewFromInt(1)}},
					Asks:   []model.PriceLevel{{Price: mid.Add(spread), Size: decimal.NewFromInt(1)}},
					UpdatedAt: time.Now(),
				}
				select {
				case out <- ob:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (e *Exchange) SubscribeKlines(ctx context.Context, symbol string, interval model.TimeInterval) (<-chan model.Kline, error) {
	tickInterval := e.cfg.Interval
	if tickInterval == 0 {
		tickInterval = time.Second
	}
	out := make(chan model.Kline, 16)
	go func() {
		defer close(out)
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if e.closed.Load() {
					return
				}
				open := e.priceFor(symbol)
				closePrice := e.priceFor(symbol)
				high, low := open, closePrice
				if closePrice > high {
					high = closePrice
				}
				if closePrice < low {
					low = closePrice
				}
				now := time.Now()
				k := model.Kline{
					Symbol:    symbol,
					Interval:  interval,
					OpenTime:  now,
					CloseTime: now,
					Open:      open,
					High:      high,
					Low:       low,
					Close:     closePrice,
					Volume:    rand.Float64() * 10,
					Closed:    true,
				}
				select {
				case out <- k:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (e *Exchange) SubscribeUserData(ctx context.Context) (<-chan model.OrderEvent, error) {
	out := make(chan model.OrderEvent)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}

func (e *Exchange) Close() error {
	e.closed.Store(true)
	return nil
}
