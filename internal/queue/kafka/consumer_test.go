package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/baroni200/overpass-landmarks/internal/core/model"
)

func TestProcessMessageDecodeError(t *testing.T) {
	c := NewConsumer(Config{Topic: "t"}, func(ctx context.Context, msg model.ProcessingMessage) error {
		t.Fatalf("handler should not be called on decode error")
		return nil
	}, nil)

	raw := &sarama.ConsumerMessage{Value: []byte("not json")}
	if err := c.processMessage(context.Background(), raw); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestProcessMessageHandlerSuccess(t *testing.T) {
	want := model.ProcessingMessage{RequestID: uuid.New(), KeyLat: 1.1, KeyLng: 2.2, Radius: 500}
	var got model.ProcessingMessage
	c := NewConsumer(Config{Topic: "t"}, func(ctx context.Context, msg model.ProcessingMessage) error {
		got = msg
		return nil
	}, nil)

	body, _ := json.Marshal(want)
	raw := &sarama.ConsumerMessage{Value: body}
	if err := c.processMessage(context.Background(), raw); err != nil {
		t.Fatalf("processMessage: %v", err)
	}
	if got.RequestID != want.RequestID {
		t.Fatalf("handler received %+v; want %+v", got, want)
	}
}

func TestProcessMessageHandlerErrorPropagates(t *testing.T) {
	msg := model.ProcessingMessage{RequestID: uuid.New()}
	c := NewConsumer(Config{Topic: "t"}, func(ctx context.Context, m model.ProcessingMessage) error {
		return errors.New("store down")
	}, nil)

	body, _ := json.Marshal(msg)
	raw := &sarama.ConsumerMessage{Value: body}
	if err := c.processMessage(context.Background(), raw); err == nil {
		t.Fatalf("expected handler error to propagate so the message is not acknowledged")
	}
}

func TestReadinessBeforeAssignment(t *testing.T) {
	c := NewConsumer(Config{Topic: "t"}, nil, nil)
	ready, parts := c.Readiness()
	if ready || len(parts) != 0 {
		t.Fatalf("Readiness() = %v, %v; want false, empty before any rebalance", ready, parts)
	}
}
