package message

import (
	"encoding/json"
	"time"

	"daraja-mcp/internal/model"
	"github.com/google/uuid"
)

const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// PaymentEvent is what sinks receive for every stored callback.
type PaymentEvent struct {
	ID         uuid.UUID                 `json:"id"`
	Event      string                    `json:"event"`
	OccurredAt time.Time                 `json:"occurredAt"`
	Payload    model.PaymentNotification `json:"payload"`

	// Raw is the callback body as received. It is archived but not published.
	Raw json.RawMessage `json:"-"`
}

func NewPaymentEvent(n model.PaymentNotification, raw []byte) PaymentEvent {
	event := EventPaymentFailed
	if n.Successful() {
		event = EventPaymentSucceeded
	}

	return PaymentEvent{
		ID:         uuid.New(),
		Event:      event,
		OccurredAt: n.ReceivedAt,
		Payload:    n,
		Raw:        append(json.RawMessage(nil), raw...),
	}
}
