package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"trading-core/internal/bus"
	"trading-core/internal/gateway"
	"trading-core/internal/model"
)

// orderTimeout bounds how long the manager waits for the gateway's API
// responder to ack an order request.
const orderTimeout = 5 * time.Second

// placeOrder sends a place-order request to the gateway over the bus and
// waits for its ack. A non-2xx-equivalent failure surfaces as an error;
// callers log and move on rather than retry, per §7's TransientIO
// handling at IO boundaries.
func placeOrder(ctx context.Context, b bus.Bus, req gateway.PlaceOrderRequest) (gateway.OrderResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return gateway.OrderResult{}, fmt.Errorf("risk: marshal place-order request: %w", err)
	}

	env, err := bus.Request(ctx, b, gateway.TopicPlaceOrder, gateway.TopicResponse, payload, orderTimeout)
	if err != nil {
		return gateway.OrderResult{}, fmt.Errorf("risk: place-order request: %w", err)
	}

	var resp gateway.PlaceOrderResponse
	if err := json.Unmarshal(env.Value, &resp); err != nil {
		return gateway.OrderResult{}, fmt.Errorf("risk: decode place-order response: %w", err)
	}
	if resp.Error != "" {
		return gateway.OrderResult{}, fmt.Errorf("risk: gateway rejected order: %s", resp.Error)
	}
	return resp.Result, nil
}

// requestPositions fetches the account's current exchange-reported
// positions, used by EmergencyLiquidate.
func requestPositions(ctx context.Context, b bus.Bus) ([]gateway.PositionRisk, error) {
	payload, err := json.Marshal(gateway.PositionsRequest{})
	if err != nil {
		return nil, fmt.Errorf("risk: marshal positions request: %w", err)
	}

	env, err := bus.Request(ctx, b, gateway.TopicPositions, gateway.TopicResponse, payload, orderTimeout)
	if err != nil {
		return nil, fmt.Errorf("risk: positions request: %w", err)
	}

	var resp gateway.PositionsResponse
	if err := json.Unmarshal(env.Value, &resp); err != nil {
		return nil, fmt.Errorf("risk: decode positions response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("risk: gateway rejected positions request: %s", resp.Error)
	}
	return resp.Positions, nil
}

func marketOrder(symbol string, side model.Side, qty decimal.Decimal, reduceOnly bool) gateway.PlaceOrderRequest {
	return gateway.PlaceOrderRequest{
		Symbol:     symbol,
		Side:       side,
		Type:       model.OrderTypeMarket,
		Quantity:   qty,
		ReduceOnly: reduceOnly,
	}
}
