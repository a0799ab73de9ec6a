package mock

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"trading-core/internal/gateway"
	"trading-core/internal/model"
)

func TestSubmitOrderFillsImmediately(t *testing.T) {
	ex := New(DefaultConfig())
	result, err := ex.SubmitOrder(context.Background(), gateway.OrderRequest{
		Symbol: "BTCUSDT", Side: model.SideBuy, Type: model.OrderTypeMarket, Quantity: decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if result.Status != model.OrderStatusFilled {
		t.Fatalf("status = %v, want FILLED", result.Status)
	}
	if result.ExchangeOrderID == 0 {
		t.Fatalf("expected a non-zero exchange order id")
	}
}

func TestSubmitOrderAssignsDistinctIDs(t *testing.T) {
	ex := New(DefaultConfig())
	first, err := ex.SubmitOrder(context.Background(), gateway.OrderRequest{Symbol: "BTCUSDT"})
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	second, err := ex.SubmitOrder(context.Background(), gateway.OrderRequest{Symbol: "BTCUSDT"})
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if first.ExchangeOrderID == second.ExchangeOrderID {
		t.Fatalf("expected distinct order ids, got %d twice", first.ExchangeOrderID)
	}
}

func TestSubscribeDepthProducesUncrossedSpread(t *testing.T) {
	ex := New(Config{StartPrice: 100, Step: 1, Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := ex.SubscribeDepth(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("SubscribeDepth: %v", err)
	}

	select {
	case ob := <-ch:
		if !ob.BestBid().Price.LessThan(ob.BestAsk().Price) {
			t.Fatalf("expected bid < ask, got bid=%s ask=%s", ob.BestBid().Price, ob.BestAsk().Price)
		}
	case <-time.After(time.Second):
		t.Fatalf("did not receive an order book snapshot")
	}
}

func TestCloseStopsStreams(t *testing.T) {
	ex := New(Config{StartPrice: 100, Step: 1, Interval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := ex.SubscribeKlines(ctx, "BTCUSDT", model.Interval1m)
	if err != nil {
		t.Fatalf("SubscribeKlines: %v", err)
	}
	<-ch // drain at least one tick

	if err := ex.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	deadline := time.After(200 * time.Millisecond)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("stream did not close after Close()")
		}
	}
}

func TestGetAccountBalance(t *testing.T) {
	ex := New(DefaultConfig())
	bal, err := ex.GetAccountBalance(context.Background())
	if err != nil {
		t.Fatalf("GetAccountBalance: %v", err)
	}
	if !bal.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("balance = %s, want 10000", bal)
	}
}
