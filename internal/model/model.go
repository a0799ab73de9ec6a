// Package model holds the wire and domain types shared across the trading
// core: book/kline snapshots from the exchange, the order-event shape
// published on fills, and the position/signal types the strategy, risk and
// portfolio components pass between each other.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order or fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PositionSide distinguishes hedge-mode legs from the default one-way mode.
type PositionSide string

const (
	PositionSideBoth  PositionSide = "BOTH"
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// OrderType mirrors the exchange's order type enum.
type OrderType string

const (
	OrderTypeLimit            OrderType = "LIMIT"
	OrderTypeMarket           OrderType = "MARKET"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// TimeInForce mirrors the exchange's time-in-force enum.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
)

// OrderStatus is the lifecycle state of an order as reported by the exchange.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// IsTerminal reports whether an order in this status will not receive
// further updates.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusExpired, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// ExecutionType is the "x" field of a user-data order update: what kind of
// event this message represents, as opposed to what state the order ended up
// in (that's OrderStatus).
type ExecutionType string

const (
	ExecTypeNew        ExecutionType = "NEW"
	ExecTypeTrade      ExecutionType = "TRADE"
	ExecTypeCanceled   ExecutionType = "CANCELED"
	ExecTypeExpired    ExecutionType = "EXPIRED"
	ExecTypeCalculated ExecutionType = "CALCULATED"
	ExecTypeAmendment  ExecutionType = "AMENDMENT"
)

// TrailingStopMarket rounds out the order-type enum (market/limit/
// stop-market/take-profit-market are declared above); nothing in this
// module places orders of this type.
const OrderTypeTrailingStopMarket OrderType = "TRAILING_STOP_MARKET"

// TimeInterval is a kline bucket width.
type TimeInterval string

const (
	Interval1m  TimeInterval = "1m"
	Interval5m  TimeInterval = "5m"
	Interval15m TimeInterval = "15m"
	Interval1h  TimeInterval = "1h"
	Interval4h  TimeInterval = "4h"
	Interval1d  TimeInterval = "1d"
)

// PriceLevel is one rung of an order book: a price and the size resting
// there.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// OrderBook is a depth snapshot for a symbol. Bids are sorted highest first,
// Asks lowest first.
type OrderBook struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// BestBid returns the top bid, or the zero PriceLevel if the book is empty.
func (b OrderBook) BestBid() PriceLevel {
	if len(b.Bids) == 0 {
		return PriceLevel{}
	}
	return b.Bids[0]
}

// BestAsk returns the top ask, or the zero PriceLevel if the book is empty.
func (b OrderBook) BestAsk() PriceLevel {
	if len(b.Asks) == 0 {
		return PriceLevel{}
	}
	return b.Asks[0]
}

// MidPrice averages the best bid and ask. Returns zero if either side is
// empty.
func (b OrderBook) MidPrice() decimal.Decimal {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid.Price.IsZero() || ask.Price.IsZero() {
		return decimal.Zero
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2))
}

// Kline is one candlestick. Closed is false for the in-progress bucket the
// exchange streams live; strategies must not act on an unclosed candle.
type Kline struct {
	Symbol    string       `json:"symbol"`
	Interval  TimeInterval `json:"interval"`
	OpenTime  time.Time    `json:"open_time"`
	CloseTime time.Time    `json:"close_time"`
	Open      float64      `json:"open"`
	High      float64      `json:"high"`
	Low       float64      `json:"low"`
	Close     float64      `json:"close"`
	Volume    float64      `json:"volume"`
	Closed    bool         `json:"closed"`
}

// OrderEvent is a normalized user-data-stream update: one message per
// execution report the exchange emits for an order (ack, partial fill, full
// fill, cancel, ...).
type OrderEvent struct {
	Symbol          string          `json:"symbol"`
	ClientOrderID   string          `json:"client_order_id"`
	ExchangeOrderID int64           `json:"exchange_order_id"`
	Side            Side            `json:"side"`
	PositionSide    PositionSide    `json:"position_side"`
	OrderType       OrderType       `json:"order_type"`
	TimeInForce     TimeInForce     `json:"time_in_force"`
	ExecutionType   ExecutionType   `json:"execution_type"`
	Status          OrderStatus     `json:"status"`
	OrigQty         decimal.Decimal `json:"orig_qty"`
	OrigPrice       decimal.Decimal `json:"orig_price"`
	AvgPrice        decimal.Decimal `json:"avg_price"`
	CumFilledQty    decimal.Decimal `json:"cum_filled_qty"`
	LastFilledQty   decimal.Decimal `json:"last_filled_qty"`
	LastFilledPrice decimal.Decimal `json:"last_filled_price"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commission_asset"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`
	IsMaker         bool            `json:"is_maker"`
	EventTime       time.Time       `json:"event_time"`
	TradeTime       time.Time       `json:"trade_time"`
}

// DedupeKey identifies a fill for duplicate-suppression: the exchange can
// redeliver the same TRADE execution report after a reconnect. Keyed on
// (order_id, last_qty, trade_time_ms) per the portfolio manager's applied-set.
func (e OrderEvent) DedupeKey() string {
	return fmt.Sprintf("%d|%s|%d", e.ExchangeOrderID, e.LastFilledQty.String(), e.TradeTime.UnixMilli())
}

// Position is the book-keeper's view of net exposure in one symbol.
type Position struct {
	Symbol      string  `json:"symbol"`
	Qty         float64 `json:"qty"` // positive = long, negative = short
	AvgPrice    float64 `json:"avg_price"`
	RealizedPnL float64 `json:"realized_pnl"`
}

// IsFlat reports whether the position carries no exposure.
func (p Position) IsFlat() bool {
	return p.Qty == 0
}

// SignalAction is the directional output of a strategy evaluation.
type SignalAction int

const (
	ActionSell SignalAction = -1
	ActionHold SignalAction = 0
	ActionBuy  SignalAction = 1
)

func (a SignalAction) String() string {
	switch a {
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	default:
		return "HOLD"
	}
}

// Signal is a strategy's verdict for one symbol at one evaluation tick.
type Signal struct {
	Symbol    string       `json:"symbol"`
	Action    SignalAction `json:"action"`
	Score     float64      `json:"score"`
	Price     float64      `json:"price"`
	Timestamp time.Time    `json:"timestamp"`
}

// CircuitState is the state of a circuit breaker guarding a downstream
// dependency (exchange REST, message bus, ...).
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)
