package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"trading-core/internal/breaker"
	"trading-core/internal/bus"
	"trading-core/internal/model"
)

// fakeExchange is a minimal Exchange double driving fixed channels so the
// gateway's publish/responder wiring can be tested without a live venue.
type fakeExchange struct {
	depth   chan model.OrderBook
	klines  chan model.Kline
	userData chan model.OrderEvent

	submitted []OrderRequest
	canceled  []int64
	positions []PositionRisk
	balance   decimal.Decimal
	closed    bool
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		depth:    make(chan model.OrderBook, 4),
		klines:   make(chan model.Kline, 4),
		userData: make(chan model.OrderEvent, 4),
		balance:  decimal.NewFromInt(1000),
	}
}

func (f *fakeExchange) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	f.submitted = append(f.submitted, req)
	return OrderResult{ExchangeOrderID: 42, ClientOrderID: req.ClientOrderID, Status: model.OrderStatusNew}, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, symbol string, exchangeOrderID int64) error {
	f.canceled = append(f.canceled, exchangeOrderID)
	return nil
}

func (f *fakeExchange) GetPositions(ctx context.Context) ([]PositionRisk, error) {
	return f.positions, nil
}

func (f *fakeExchange) GetAccountBalance(ctx context.Context) (decimal.Decimal, error) {
	return f.balance, nil
}

func (f *fakeExchange) SubscribeDepth(ctx context.Context, symbol string) (<-chan model.OrderBook, error) {
	return f.depth, nil
}

func (f *fakeExchange) SubscribeKlines(ctx context.Context, symbol string, interval model.TimeInterval) (<-chan model.Kline, error) {
	return f.klines, nil
}

func (f *fakeExchange) SubscribeUserData(ctx context.Context) (<-chan model.OrderEvent, error) {
	return f.userData, nil
}

func (f *fakeExchange) Close() error {
	f.closed = true
	return nil
}

func TestGatewayPublishesDepthAndKlines(t *testing.T) {
	b := bus.NewLocalBus()
	ex := newFakeExchange()
	brk := breaker.NewLocalBreaker(breaker.DefaultConfig(), nil)
	g := NewGateway(b, brk, ex, []string{"BTCUSDT"}, model.Interval1m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)

	time.Sleep(20 * time.Millisecond)

	obCh, stop, err := b.Subscribe(ctx, "orderbook:BTCUSDT")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	ex.depth <- model.OrderBook{Symbol: "BTCUSDT", Bids: []model.PriceLevel{{Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)}}}

	select {
	case env := <-obCh:
		var ob model.OrderBook
		if err := json.Unmarshal(env.Value, &ob); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if ob.Symbol != "BTCUSDT" {
			t.Fatalf("symbol = %q, want BTCUSDT", ob.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatalf("did not receive published order book")
	}

	kCh, stopK, err := b.Subscribe(ctx, "candlestick:BTCUSDT")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stopK()

	ex.klines <- model.Kline{Symbol: "BTCUSDT", Closed: true}

	select {
	case env := <-kCh:
		var k model.Kline
		if err := json.Unmarshal(env.Value, &k); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if k.Symbol != "BTCUSDT" {
			t.Fatalf("symbol = %q, want BTCUSDT", k.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatalf("did not receive published kline")
	}
}

func TestGatewayPublishSkipsWhenBreakerOpen(t *testing.T) {
	b := bus.NewLocalBus()
	ex := newFakeExchange()
	brk := breaker.NewLocalBreaker(breaker.Config{FailureThreshold: 1, ResetTimeout: time.Hour, RequiredSuccesses: 1}, nil)
	brk.ForceOpen("test")
	g := NewGateway(b, brk, ex, []string{"BTCUSDT"}, model.Interval1m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, stop, err := b.Subscribe(ctx, "orderbook:BTCUSDT")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	g.publish(ctx, "orderbook:BTCUSDT", model.OrderBook{Symbol: "BTCUSDT"})

	select {
	case <-ch:
		t.Fatalf("expected no publish while breaker is open")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandlePlaceOrderReplies(t *testing.T) {
	b := bus.NewLocalBus()
	ex := newFakeExchange()
	brk := breaker.NewLocalBreaker(breaker.DefaultConfig(), nil)
	g := NewGateway(b, brk, ex, []string{"BTCUSDT"}, model.Interval1m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.runAPIResponder(ctx)
	time.Sleep(20 * time.Millisecond)

	req := PlaceOrderRequest{Symbol: "BTCUSDT", Side: model.SideBuy, Type: model.OrderTypeMarket, Quantity: decimal.NewFromInt(1)}
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	env, err := bus.Request(ctx, b, TopicPlaceOrder, TopicResponse, payload, time.Second)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var resp PlaceOrderResponse
	if err := json.Unmarshal(env.Value, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("unexpected error response: %s", resp.Error)
	}
	if resp.Result.ExchangeOrderID != 42 {
		t.Fatalf("exchange order id = %d, want 42", resp.Result.ExchangeOrderID)
	}
	if len(ex.submitted) != 1 {
		t.Fatalf("submitted count = %d, want 1", len(ex.submitted))
	}
}

func TestHandleCancelOrderReplies(t *testing.T) {
	b := bus.NewLocalBus()
	ex := newFakeExchange()
	brk := breaker.NewLocalBreaker(breaker.DefaultConfig(), nil)
	g := NewGateway(b, brk, ex, []string{"BTCUSDT"}, model.Interval1m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.runAPIResponder(ctx)
	time.Sleep(20 * time.Millisecond)

	req := CancelOrderRequest{Symbol: "BTCUSDT", ExchangeOrderID: 99}
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	env, err := bus.Request(ctx, b, TopicCancelOrder, TopicResponse, payload, time.Second)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var resp CancelOrderResponse
	if err := json.Unmarshal(env.Value, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error != "" {
		t.Fatalf("unexpected error response: %s", resp.Error)
	}
	if len(ex.canceled) != 1 || ex.canceled[0] != 99 {
		t.Fatalf("canceled = %+v, want [99]", ex.canceled)
	}
}
