package portfolio

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"trading-core/internal/model"
)

const epsilon = 1e-9

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func epochMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func fillEvent(symbol string, side model.Side, qty, price float64, orderID int64, tradeTimeMs int64) model.OrderEvent {
	return model.OrderEvent{
		Symbol:          symbol,
		ExchangeOrderID: orderID,
		Side:            side,
		ExecutionType:   model.ExecTypeTrade,
		Status:          model.OrderStatusFilled,
		LastFilledQty:   decimal.NewFromFloat(qty),
		LastFilledPrice: decimal.NewFromFloat(price),
		TradeTime:       epochMillis(tradeTimeMs),
	}
}

func TestScenario1_RoundTripFlat(t *testing.T) {
	m := NewManager(nil, []string{"BTCUSDT"}, 0)
	m.ApplyFill(fillEvent("BTCUSDT", model.SideBuy, 1, 100, 1, 1))
	m.ApplyFill(fillEvent("BTCUSDT", model.SideSell, 0.5, 101, 2, 2))
	m.ApplyFill(fillEvent("BTCUSDT", model.SideSell, 0.5, 99, 3, 3))

	pos := m.positions["BTCUSDT"]
	if !approxEqual(pos.Qty, 0) || !approxEqual(pos.AvgPrice, 0) {
		t.Fatalf("position = %+v, want (0,0)", pos)
	}
	if !approxEqual(m.realizedPnL, 0.0) {
		t.Fatalf("realizedPnL = %v, want 0.0", m.realizedPnL)
	}
}

func TestScenario2_Reverse(t *testing.T) {
	m := NewManager(nil, []string{"BTCUSDT"}, 0)
	m.ApplyFill(fillEvent("BTCUSDT", model.SideBuy, 1, 100, 1, 1))
	m.ApplyFill(fillEvent("BTCUSDT", model.SideSell, 1.5, 101, 2, 2))

	pos := m.positions["BTCUSDT"]
	if !approxEqual(pos.Qty, -0.5) || !approxEqual(pos.AvgPrice, 101) {
		t.Fatalf("position = %+v, want (-0.5, 101)", pos)
	}
	if !approxEqual(m.realizedPnL, 1.0) {
		t.Fatalf("realizedPnL = %v, want 1.0", m.realizedPnL)
	}
}

func TestScenario3_ShortThenClose(t *testing.T) {
	m := NewManager(nil, []string{"BTCUSDT"}, 0)
	m.ApplyFill(fillEvent("BTCUSDT", model.SideSell, 1, 100, 1, 1))
	m.ApplyFill(fillEvent("BTCUSDT", model.SideBuy, 1, 99, 2, 2))

	pos := m.positions["BTCUSDT"]
	if !approxEqual(pos.Qty, 0) || !approxEqual(pos.AvgPrice, 0) {
		t.Fatalf("position = %+v, want (0,0)", pos)
	}
	if !approxEqual(m.realizedPnL, 1.0) {
		t.Fatalf("realizedPnL = %v, want 1.0", m.realizedPnL)
	}
}

func TestScenario4_UnrealizedMarking(t *testing.T) {
	m := NewManager(nil, []string{"BTCUSDT"}, 0)
	m.positions["BTCUSDT"] = model.Position{Symbol: "BTCUSDT", Qty: 1, AvgPrice: 100}
	m.ApplyOrderBook(bookTop("BTCUSDT", 99, 101))
	if !approxEqual(m.unrealizedPnL["BTCUSDT"], -1) {
		t.Fatalf("unrealized = %v, want -1", m.unrealizedPnL["BTCUSDT"])
	}

	m.positions["BTCUSDT"] = model.Position{Symbol: "BTCUSDT", Qty: -1, AvgPrice: 100}
	m.ApplyOrderBook(bookTop("BTCUSDT", 99, 102))
	if !approxEqual(m.unrealizedPnL["BTCUSDT"], -2) {
		t.Fatalf("unrealized = %v, want -2", m.unrealizedPnL["BTCUSDT"])
	}
}

func TestIdempotence_DuplicateFillAppliedOnce(t *testing.T) {
	m := NewManager(nil, []string{"BTCUSDT"}, 0)
	evt := fillEvent("BTCUSDT", model.SideBuy, 1, 100, 42, 1000)
	m.ApplyFill(evt)
	m.ApplyFill(evt)
	m.ApplyFill(evt)

	pos := m.positions["BTCUSDT"]
	if !approxEqual(pos.Qty, 1) {
		t.Fatalf("qty = %v, want 1 (duplicate fills must not double-apply)", pos.Qty)
	}
}

func TestNonTradeExecutionTypesDoNotMovePosition(t *testing.T) {
	m := NewManager(nil, []string{"BTCUSDT"}, 0)
	evt := fillEvent("BTCUSDT", model.SideBuy, 1, 100, 1, 1)
	evt.ExecutionType = model.ExecTypeNew
	m.ApplyFill(evt)

	if _, ok := m.positions["BTCUSDT"]; ok {
		t.Fatalf("expected no position to be created from a non-trade execution report")
	}
}

func bookTop(symbol string, bid, ask float64) model.OrderBook {
	return model.OrderBook{
		Symbol: symbol,
		Bids:   []model.PriceLevel{{Price: decimal.NewFromFloat(bid), Size: decimal.NewFromInt(1)}},
		Asks:   []model.PriceLevel{{Price: decimal.NewFromFloat(ask), Size: decimal.NewFromInt(1)}},
	}
}
