package bus

import (
	"testing"

	"github.com/google/uuid"
)

func TestEnvelopeRoundTripWithCorrelation(t *testing.T) {
	id := uuid.New()
	want := Envelope{Topic: "orders.filled", Value: []byte(`{"symbol":"BTCUSDT"}`), CorrelationID: &id}

	encoded, err := EncodeEnvelope(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := DecodeEnvelope(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Topic != want.Topic {
		t.Errorf("topic = %q, want %q", got.Topic, want.Topic)
	}
	if string(got.Value) != string(want.Value) {
		t.Errorf("value = %q, want %q", got.Value, want.Value)
	}
	if got.CorrelationID == nil || *got.CorrelationID != id {
		t.Errorf("correlation id = %v, want %v", got.CorrelationID, id)
	}
}

func TestEnvelopeRoundTripWithoutCorrelation(t *testing.T) {
	want := Envelope{Topic: "market.kline", Value: []byte("")}

	encoded, err := EncodeEnvelope(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := DecodeEnvelope(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.CorrelationID != nil {
		t.Errorf("correlation id = %v, want nil", got.CorrelationID)
	}
	if got.Topic != want.Topic {
		t.Errorf("topic = %q, want %q", got.Topic, want.Topic)
	}
}

func TestDecodeEnvelopeTruncated(t *testing.T) {
	cases := [][]byte{
		nil,
		{0, 5},
		{0, 0, 0, 0, 0, 1},
	}
	for _, c := range cases {
		if _, err := DecodeEnvelope(c); err == nil {
			t.Errorf("DecodeEnvelope(%v) expected error, got nil", c)
		}
	}
}
