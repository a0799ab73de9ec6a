package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"trading-core/internal/bus"
	"trading-core/internal/gateway"
	"trading-core/internal/portfolio"
	"trading-core/pkg/db"
)

func newTestStore(t *testing.T) *db.OrderStore {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}
	return db.NewOrderStore(database)
}

// runFakeGatewayResponder answers place-order and cancel-order requests
// with a fixed success reply, standing in for internal/gateway's API
// responder.
func runFakeGatewayResponder(ctx context.Context, t *testing.T, b bus.Bus) {
	t.Helper()
	for _, topic := range []string{gateway.TopicPlaceOrder, gateway.TopicCancelOrder} {
		ch, stop, err := b.Subscribe(ctx, topic)
		if err != nil {
			t.Fatalf("subscribe %s: %v", topic, err)
		}
		go func(topic string, ch <-chan bus.Envelope) {
			defer stop()
			for {
				select {
				case <-ctx.Done():
					return
				case env, ok := <-ch:
					if !ok {
						return
					}
					var payload []byte
					switch topic {
					case gateway.TopicPlaceOrder:
						payload, _ = json.Marshal(gateway.PlaceOrderResponse{
							Result: gateway.OrderResult{ExchangeOrderID: 7},
						})
					case gateway.TopicCancelOrder:
						payload, _ = json.Marshal(gateway.CancelOrderResponse{})
					}
					b.Publish(ctx, gateway.TopicResponse, payload, env.CorrelationID)
				}
			}
		}(topic, ch)
	}
}

func TestCreateMarketOrderRoundTrips(t *testing.T) {
	b := bus.NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runFakeGatewayResponder(ctx, t, b)

	srv := NewServer(b, newTestStore(t), []string{"BTCUSDT"}, "")

	body, _ := json.Marshal(createMarketOrderRequest{Side: "BUY", Quantity: decimal.NewFromInt(1), Symbol: "BTCUSDT"})
	req := httptest.NewRequest(http.MethodPost, "/create-market-order", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result gateway.OrderResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.ExchangeOrderID != 7 {
		t.Fatalf("exchange order id = %d, want 7", result.ExchangeOrderID)
	}
}

func TestCancelOrderRoundTrips(t *testing.T) {
	b := bus.NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runFakeGatewayResponder(ctx, t, b)

	srv := NewServer(b, newTestStore(t), []string{"BTCUSDT"}, "")

	body, _ := json.Marshal(cancelOrderRequest{OrderID: 7, Symbol: "BTCUSDT"})
	req := httptest.NewRequest(http.MethodPost, "/cancel-order", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestGetPositionReturnsEmptyForFreshStore(t *testing.T) {
	b := bus.NewLocalBus()
	srv := NewServer(b, newTestStore(t), []string{"BTCUSDT"}, "")

	req := httptest.NewRequest(http.MethodGet, "/position", nil)
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var out map[string][]db.StoredOrder
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out["BTCUSDT"]) != 0 {
		t.Fatalf("expected no orders for a fresh store, got %d", len(out["BTCUSDT"]))
	}
}

func TestGetPortfolioStateReflectsPortfolioManager(t *testing.T) {
	b := bus.NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pm := portfolio.NewManager(b, []string{"BTCUSDT"}, 5000)
	go pm.Run(ctx)
	time.Sleep(20 * time.Millisecond)

	srv := NewServer(b, newTestStore(t), []string{"BTCUSDT"}, "")

	req := httptest.NewRequest(http.MethodGet, "/portfolio_state", nil)
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var out map[string]portfolio.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := out["BTCUSDT"]; !ok {
		t.Fatalf("expected a BTCUSDT entry in portfolio state, got %+v", out)
	}
}

func TestBearerAuthRejectsMissingToken(t *testing.T) {
	b := bus.NewLocalBus()
	srv := NewServer(b, newTestStore(t), []string{"BTCUSDT"}, "super-secret")

	body, _ := json.Marshal(createMarketOrderRequest{Side: "BUY", Quantity: decimal.NewFromInt(1), Symbol: "BTCUSDT"})
	req := httptest.NewRequest(http.MethodPost, "/create-market-order", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
