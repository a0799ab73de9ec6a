package ordermanager

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"trading-core/internal/bus"
	"trading-core/internal/model"
)

type fakeStore struct {
	upserted []model.OrderEvent
}

func (f *fakeStore) Upsert(ctx context.Context, evt model.OrderEvent) error {
	f.upserted = append(f.upserted, evt)
	return nil
}

func validEvent() model.OrderEvent {
	return model.OrderEvent{
		Symbol:          "BTCUSDT",
		ExchangeOrderID: 1,
		Side:            model.SideBuy,
		ExecutionType:   model.ExecTypeTrade,
		Status:          model.OrderStatusFilled,
		OrigQty:         decimal.NewFromInt(1),
		LastFilledQty:   decimal.NewFromInt(1),
		TradeTime:       time.Now(),
	}
}

func TestValidEnumsRejectsUnknownValues(t *testing.T) {
	good := validEvent()
	if !validEnums(good) {
		t.Fatalf("expected a fully valid event to pass")
	}

	badSide := good
	badSide.Side = "BUYY"
	if validEnums(badSide) {
		t.Fatalf("expected an unknown Side to be rejected")
	}

	badExec := good
	badExec.ExecutionType = "BOGUS"
	if validEnums(badExec) {
		t.Fatalf("expected an unknown ExecutionType to be rejected")
	}

	badStatus := good
	badStatus.Status = "BOGUS"
	if validEnums(badStatus) {
		t.Fatalf("expected an unknown Status to be rejected")
	}
}

func TestHandleExecutionUpsertsValidEvent(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(bus.NewLocalBus(), store, []string{"BTCUSDT"})

	payload, err := json.Marshal(validEvent())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	m.handleExecution(context.Background(), bus.Envelope{Topic: "execution:BTCUSDT", Value: payload})

	if len(store.upserted) != 1 {
		t.Fatalf("upserted count = %d, want 1", len(store.upserted))
	}
	if store.upserted[0].ExchangeOrderID != 1 {
		t.Fatalf("unexpected upserted order: %+v", store.upserted[0])
	}
}

func TestHandleExecutionDropsUnknownEnum(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(bus.NewLocalBus(), store, []string{"BTCUSDT"})

	evt := validEvent()
	evt.Status = "BOGUS"
	payload, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	m.handleExecution(context.Background(), bus.Envelope{Topic: "execution:BTCUSDT", Value: payload})

	if len(store.upserted) != 0 {
		t.Fatalf("expected the invalid event to be dropped, got %d upserts", len(store.upserted))
	}
}

func TestHandleExecutionDropsMalformedJSON(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(bus.NewLocalBus(), store, []string{"BTCUSDT"})

	m.handleExecution(context.Background(), bus.Envelope{Topic: "execution:BTCUSDT", Value: []byte("not json")})

	if len(store.upserted) != 0 {
		t.Fatalf("expected malformed payload to be dropped, got %d upserts", len(store.upserted))
	}
}

func TestRunDispatchesPublishedExecutionEvents(t *testing.T) {
	b := bus.NewLocalBus()
	store := &fakeStore{}
	m := NewManager(b, store, []string{"BTCUSDT", "ETHUSDT"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	// give Run a moment to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)

	payload, err := json.Marshal(validEvent())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := b.Publish(ctx, "execution:BTCUSDT", payload, nil); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for len(store.upserted) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if len(store.upserted) != 1 {
		t.Fatalf("upserted count = %d, want 1", len(store.upserted))
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after ctx cancellation")
	}
}
