package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"trading-core/internal/bus"
)

// runAPIResponder subscribes to the five API@* request topics and answers
// each on TopicResponse carrying the request's correlation id, until ctx
// is canceled (§4.3).
func (g *Gateway) runAPIResponder(ctx context.Context) error {
	type sub struct {
		topic string
		ch    <-chan bus.Envelope
		stop  func()
	}

	topics := []string{TopicPlaceOrder, TopicPositions, TopicAccountBalance, TopicClose, TopicCancelOrder}
	subs := make([]sub, 0, len(topics))
	defer func() {
		for _, s := range subs {
			s.stop()
		}
	}()

	type received struct {
		topic string
		env   bus.Envelope
	}
	out := make(chan received, 1)
	stopAll := make(chan struct{})
	defer close(stopAll)

	for _, topic := range topics {
		ch, stop, err := g.b.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("gateway: subscribe %s: %w", topic, err)
		}
		subs = append(subs, sub{topic: topic, ch: ch, stop: stop})

		go func(topic string, ch <-chan bus.Envelope) {
			for {
				select {
				case env, ok := <-ch:
					if !ok {
						return
					}
					select {
					case out <- received{topic: topic, env: env}:
					case <-stopAll:
						return
					}
				case <-stopAll:
					return
				}
			}
		}(topic, ch)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-out:
			g.handleAPIRequest(ctx, r.topic, r.env)
		}
	}
}

func (g *Gateway) handleAPIRequest(ctx context.Context, topic string, env bus.Envelope) {
	switch topic {
	case TopicPlaceOrder:
		g.handlePlaceOrder(ctx, env)
	case TopicPositions:
		g.handlePositions(ctx, env)
	case TopicAccountBalance:
		g.handleAccountBalance(ctx, env)
	case TopicClose:
		g.handleClose(ctx, env)
	case TopicCancelOrder:
		g.handleCancelOrder(ctx, env)
	}
}

func (g *Gateway) handleCancelOrder(ctx context.Context, env bus.Envelope) {
	var req CancelOrderRequest
	resp := CancelOrderResponse{}
	if err := json.Unmarshal(env.Value, &req); err != nil {
		resp.Error = fmt.Sprintf("decode cancel-order request: %v", err)
	} else if err := g.ex.CancelOrder(ctx, req.Symbol, req.ExchangeOrderID); err != nil {
		resp.Error = err.Error()
	}
	g.reply(ctx, env, resp)
}

func (g *Gateway) handlePlaceOrder(ctx context.Context, env bus.Envelope) {
	var req PlaceOrderRequest
	resp := PlaceOrderResponse{}
	if err := json.Unmarshal(env.Value, &req); err != nil {
		resp.Error = fmt.Sprintf("decode place-order request: %v", err)
	} else {
		result, err := g.ex.SubmitOrder(ctx, OrderRequest{
			Symbol:        req.Symbol,
			Side:          req.Side,
			Type:          req.Type,
			TimeInForce:   req.TimeInForce,
			Quantity:      req.Quantity,
			Price:         req.Price,
			ClientOrderID: req.ClientOrderID,
			ReduceOnly:    req.ReduceOnly,
		})
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Result = result
		}
	}
	g.reply(ctx, env, resp)
}

func (g *Gateway) handlePositions(ctx context.Context, env bus.Envelope) {
	resp := PositionsResponse{}
	positions, err := g.ex.GetPositions(ctx)
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Positions = positions
	}
	g.reply(ctx, env, resp)
}

func (g *Gateway) handleAccountBalance(ctx context.Context, env bus.Envelope) {
	resp := AccountBalanceResponse{}
	balance, err := g.ex.GetAccountBalance(ctx)
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Balance = balance
	}
	g.reply(ctx, env, resp)
}

func (g *Gateway) handleClose(ctx context.Context, env bus.Envelope) {
	resp := CloseResponse{}
	if err := g.ex.Close(); err != nil {
		resp.Error = err.Error()
	}
	g.reply(ctx, env, resp)
}

func (g *Gateway) reply(ctx context.Context, req bus.Envelope, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		log.Printf("gateway: marshal API response: %v", err)
		return
	}
	var corr *uuid.UUID
	if req.CorrelationID != nil {
		id := *req.CorrelationID
		corr = &id
	}
	if err := g.b.Publish(ctx, TopicResponse, payload, corr); err != nil {
		log.Printf("gateway: publish API response: %v", err)
	}
}
