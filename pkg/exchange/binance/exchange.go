package binance

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trading-core/internal/gateway"
	"trading-core/internal/model"
)

// Exchange implements gateway.Exchange against Binance USDT-M futures.
type Exchange struct {
	c   *client
	cfg Config

	stops []func()
}

// New builds an Exchange from cfg.
func New(cfg Config) *Exchange {
	return &Exchange{c: newClient(cfg), cfg: cfg}
}

func (e *Exchange) SubmitOrder(ctx context.Context, req gateway.OrderRequest) (gateway.OrderResult, error) {
	return e.c.submitOrder(ctx, req)
}

func (e *Exchange) CancelOrder(ctx context.Context, symbol string, exchangeOrderID int64) error {
	return e.c.cancelOrder(ctx, symbol, exchangeOrderID)
}

func (e *Exchange) GetPositions(ctx context.Context) ([]gateway.PositionRisk, error) {
	return e.c.getPositions(ctx)
}

func (e *Exchange) GetAccountBalance(ctx context.Context) (decimal.Decimal, error) {
	return e.c.getAccountBalance(ctx)
}

// SubscribeDepth streams the top-5 partial book depth for symbol.
func (e *Exchange) SubscribeDepth(ctx context.Context, symbol string) (<-chan model.OrderBook, error) {
	url := fmt.Sprintf("%s/ws/%s@depth5@100ms", streamBaseURL(e.cfg.Testnet), strings.ToLower(symbol))
	raw, stop, err := streamRawMessages(ctx, url, "depth:"+symbol)
	if err != nil {
		return nil, err
	}
	e.stops = append(e.stops, stop)

	out := make(chan model.OrderBook, 64)
	go func() {
		defer close(out)
		for msg := range raw {
			ob, err := parseDepthMessage(symbol, msg)
			if err != nil {
				continue
			}
			select {
			case out <- ob:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// SubscribeKlines streams candles for symbol at interval.
func (e *Exchange) SubscribeKlines(ctx context.Context, symbol string, interval model.TimeInterval) (<-chan model.Kline, error) {
	url := fmt.Sprintf("%s/ws/%s@kline_%s", streamBaseURL(e.cfg.Testnet), strings.ToLower(symbol), interval)
	raw, stop, err := streamRawMessages(ctx, url, "kline:"+symbol)
	if err != nil {
		return nil, err
	}
	e.stops = append(e.stops, stop)

	out := make(chan model.Kline, 64)
	go func() {
		defer close(out)
		for msg := range raw {
			k, err := parseKlineMessage(msg)
			if err != nil {
				continue
			}
			select {
			case out <- k:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// SubscribeUserData opens a listen key and streams order execution
// reports for the account, keeping the listen key alive every 15 minutes
// per §4.3.
func (e *Exchange) SubscribeUserData(ctx context.Context) (<-chan model.OrderEvent, error) {
	listenKey, err := e.c.createListenKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance futures: create listen key: %w", err)
	}

	url := streamBaseURL(e.cfg.Testnet) + "/ws/" + listenKey
	raw, stop, err := streamRawMessages(ctx, url, "userdata")
	if err != nil {
		return nil, err
	}
	e.stops = append(e.stops, stop)

	go e.keepAliveLoop(ctx, listenKey)

	out := make(chan model.OrderEvent, 64)
	go func() {
		defer close(out)
		for msg := range raw {
			evt, ok, err := parseOrderTradeUpdate(msg)
			if err != nil || !ok {
				continue
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (e *Exchange) keepAliveLoop(ctx context.Context, listenKey string) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.c.keepAliveListenKey(ctx, listenKey); err != nil {
				log.Printf("binance futures: keep alive listen key: %v", err)
			}
		}
	}
}

// Close tears down every open stream.
func (e *Exchange) Close() error {
	for _, stop := range e.stops {
		stop()
	}
	e.stops = nil
	return nil
}
