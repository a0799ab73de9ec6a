package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"trading-core/internal/gateway"
	"trading-core/internal/model"
)

func sign(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

type orderResp struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
}

// submitOrder places req and returns the exchange's immediate ack. Fill
// state arrives later over the user-data stream.
func (c *client) submitOrder(ctx context.Context, req gateway.OrderRequest) (gateway.OrderResult, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return gateway.OrderResult{}, fmt.Errorf("binance futures: API key/secret required")
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("quantity", req.Quantity.String())

	switch req.Type {
	case model.OrderTypeLimit:
		params.Set("price", req.Price.String())
		tif := req.TimeInForce
		if tif == "" {
			tif = model.TimeInForceGTC
		}
		params.Set("timeInForce", string(tif))
	case model.OrderTypeStopMarket, model.OrderTypeTakeProfitMarket:
		params.Set("stopPrice", req.Price.String())
		params.Set("workingType", "MARK_PRICE")
	}

	if req.ClientOrderID != "" {
		params.Set("newClientOrderId", req.ClientOrderID)
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	body, err := c.doSigned(ctx, "POST", c.baseURL+"/fapi/v1/order", params)
	if err != nil {
		return gateway.OrderResult{}, err
	}

	var resp orderResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return gateway.OrderResult{}, fmt.Errorf("binance futures: decode order response: %w", err)
	}
	return gateway.OrderResult{
		ExchangeOrderID: resp.OrderID,
		ClientOrderID:   resp.ClientOrderID,
		Status:          model.OrderStatus(strings.ToUpper(resp.Status)),
	}, nil
}

// cancelOrder cancels a resting order by exchange order id.
func (c *client) cancelOrder(ctx context.Context, symbol string, exchangeOrderID int64) error {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return fmt.Errorf("binance futures: API key/secret required")
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(exchangeOrderID, 10))
	_, err := c.doSigned(ctx, "DELETE", c.baseURL+"/fapi/v1/order", params)
	return err
}

type positionRiskResp struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	UnrealizedProfit string `json:"unRealizedProfit"`
	Leverage         string `json:"leverage"`
}

// getPositions returns the account's current positions.
func (c *client) getPositions(ctx context.Context) ([]gateway.PositionRisk, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return nil, fmt.Errorf("binance futures: API key/secret required")
	}
	body, err := c.doSigned(ctx, "GET", c.baseURL+"/fapi/v2/positionRisk", url.Values{})
	if err != nil {
		return nil, err
	}

	var raw []positionRiskResp
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("binance futures: decode positions: %w", err)
	}

	out := make([]gateway.PositionRisk, 0, len(raw))
	for _, p := range raw {
		leverage, _ := strconv.Atoi(p.Leverage)
		out = append(out, gateway.PositionRisk{
			Symbol:           p.Symbol,
			PositionAmt:      mustDecimal(p.PositionAmt),
			EntryPrice:       mustDecimal(p.EntryPrice),
			UnrealizedProfit: mustDecimal(p.UnrealizedProfit),
			Leverage:         leverage,
		})
	}
	return out, nil
}

type balanceResp struct {
	Asset            string `json:"asset"`
	AvailableBalance string `json:"availableBalance"`
}

// getAccountBalance returns the USDT available margin balance.
func (c *client) getAccountBalance(ctx context.Context) (decimal.Decimal, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return decimal.Zero, fmt.Errorf("binance futures: API key/secret required")
	}
	body, err := c.doSigned(ctx, "GET", c.baseURL+"/fapi/v2/balance", url.Values{})
	if err != nil {
		return decimal.Zero, err
	}

	var raw []balanceResp
	if err := json.Unmarshal(body, &raw); err != nil {
		return decimal.Zero, fmt.Errorf("binance futures: decode balance: %w", err)
	}
	for _, b := range raw {
		if b.Asset == "USDT" {
			return mustDecimal(b.AvailableBalance), nil
		}
	}
	return decimal.Zero, nil
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
