package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"trading-core/internal/model"
)

// OrderRequest is what the gateway asks an Exchange to place.
type OrderRequest struct {
	Symbol        string
	Side          model.Side
	Type          model.OrderType
	TimeInForce   model.TimeInForce
	Quantity      decimal.Decimal
	Price         decimal.Decimal // zero for market orders
	ClientOrderID string
	ReduceOnly    bool
}

// OrderResult is the exchange's immediate ack for a submitted order; the
// authoritative fill state arrives later over the user-data stream.
type OrderResult struct {
	ExchangeOrderID int64
	ClientOrderID   string
	Status          model.OrderStatus
}

// PositionRisk is one symbol's current exchange-reported position.
type PositionRisk struct {
	Symbol           string
	PositionAmt      decimal.Decimal // signed: positive long, negative short
	EntryPrice       decimal.Decimal
	UnrealizedProfit decimal.Decimal
	Leverage         int
}

// Exchange is the venue binding the gateway drives. pkg/exchange/binance
// implements it against live USDT-M futures; pkg/exchange/mock implements
// it for tests and local runs without credentials.
type Exchange interface {
	// SubmitOrder places a new order and returns the exchange's ack.
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	// CancelOrder cancels a resting order by exchange order id.
	CancelOrder(ctx context.Context, symbol string, exchangeOrderID int64) error
	// GetPositions returns the account's current positions.
	GetPositions(ctx context.Context) ([]PositionRisk, error)
	// GetAccountBalance returns available margin balance.
	GetAccountBalance(ctx context.Context) (decimal.Decimal, error)

	// SubscribeDepth streams order book snapshots for symbol.
	SubscribeDepth(ctx context.Context, symbol string) (<-chan model.OrderBook, error)
	// SubscribeKlines streams candles for symbol at the given interval.
	SubscribeKlines(ctx context.Context, symbol string, interval model.TimeInterval) (<-chan model.Kline, error)
	// SubscribeUserData streams order execution reports for the account.
	SubscribeUserData(ctx context.Context) (<-chan model.OrderEvent, error)

	// Close tears down any open connections.
	Close() error
}
