package gateway

import (
	"github.com/shopspring/decimal"

	"trading-core/internal/model"
)

// Bus topics the gateway's API responder answers on (§4.3): every request
// carries a correlation id and gets its reply published on TopicResponse
// with that same id, matching the portfolio manager's stats request/reply
// convention.
const (
	TopicPlaceOrder     = "API@place_order"
	TopicPositions      = "API@positions"
	TopicAccountBalance = "API@account_balance"
	TopicClose          = "API@close"
	TopicCancelOrder    = "API@cancel_order"
	TopicResponse       = "Response"
)

// PlaceOrderRequest is the typed payload place-order requests carry. The
// gateway dispatches to market/limit/stop-market/take-profit based on
// Type, per §4.3.
type PlaceOrderRequest struct {
	Symbol        string            `json:"symbol"`
	Side          model.Side        `json:"side"`
	Type          model.OrderType   `json:"type"`
	TimeInForce   model.TimeInForce `json:"time_in_force,omitempty"`
	Quantity      decimal.Decimal   `json:"quantity"`
	Price         decimal.Decimal   `json:"price,omitempty"`
	StopPrice     decimal.Decimal   `json:"stop_price,omitempty"`
	ReduceOnly    bool              `json:"reduce_only"`
	ClientOrderID string            `json:"client_order_id,omitempty"`
}

// PlaceOrderResponse is the gateway's reply. Error is set instead of
// Result when the exchange call failed.
type PlaceOrderResponse struct {
	Result OrderResult `json:"result"`
	Error  string      `json:"error,omitempty"`
}

// PositionsRequest requests the account's current exchange-reported
// positions. It carries no fields; its presence on the bus is the signal.
type PositionsRequest struct{}

// PositionsResponse is the gateway's reply to a PositionsRequest.
type PositionsResponse struct {
	Positions []PositionRisk `json:"positions"`
	Error     string         `json:"error,omitempty"`
}

// AccountBalanceRequest requests available margin balance.
type AccountBalanceRequest struct{}

// AccountBalanceResponse is the gateway's reply to an
// AccountBalanceRequest.
type AccountBalanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
	Error   string          `json:"error,omitempty"`
}

// CloseRequest asks the gateway to shut down its exchange connections.
type CloseRequest struct{}

// CloseResponse acknowledges a CloseRequest.
type CloseResponse struct {
	Error string `json:"error,omitempty"`
}

// CancelOrderRequest asks the gateway to cancel a resting order. This
// topic supplements spec.md §6's admin HTTP cancel-order route, which has
// no corresponding internal channel listed there; it follows the same
// request/response convention as the other API@* topics.
type CancelOrderRequest struct {
	Symbol          string `json:"symbol"`
	ExchangeOrderID int64  `json:"exchange_order_id"`
}

// CancelOrderResponse is the gateway's reply to a CancelOrderRequest.
type CancelOrderResponse struct {
	Error string `json:"error,omitempty"`
}
