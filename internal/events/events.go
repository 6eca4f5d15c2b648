// Package events publishes checkout notifications to Kafka for downstream
// consumers (fulfilment, analytics). Nothing in this service consumes them.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const EventCheckoutConfirmed = "CheckoutConfirmed"

var ErrNotQueued = errors.New("event not queued")

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type CheckoutConfirmedPayload struct {
	PaymentIntentID string `json:"payment_intent_id"`
	OrderNumber     string `json:"order_number"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

type publisher interface {
	Publish(key, value []byte, headers ...kafka.Header) bool
}

// Publisher wraps payloads in a versioned Envelope before handing them to
// the Producer, keyed by payment intent so one checkout stays on one partition.
type Publisher struct {
	producer publisher
	service  string
	now      func() time.Time
}

func NewPublisher(producer *Producer, service string) *Publisher {
	return &Publisher{producer: producer, service: service, now: time.Now}
}

func (p *Publisher) PublishCheckoutConfirmed(ctx context.Context, payload CheckoutConfirmedPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", EventCheckoutConfirmed, err)
	}

	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventCheckoutConfirmed,
		EventVersion:  1,
		OccurredAt:    p.now().UTC(),
		Producer:      p.service,
		CorrelationID: payload.PaymentIntentID,
		Payload:       raw,
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}

	ok := p.producer.Publish([]byte(payload.PaymentIntentID), value,
		kafka.Header{Key: "x-event-type", Value: []byte(EventCheckoutConfirmed)},
		kafka.Header{Key: "x-event-version", Value: []byte("1")},
	)
	if !ok {
		return fmt.Errorf("%w: %s for %s", ErrNotQueued, EventCheckoutConfirmed, payload.PaymentIntentID)
	}
	return nil
}
