package callback

import (
	"context"
	"log/slog"

	"daraja-mcp/internal/message"
	"daraja-mcp/internal/model"
	"daraja-mcp/internal/store"
	"github.com/VictoriaMetrics/metrics"
)

var (
	callbackSuccessCounter     = metrics.GetOrCreateCounter(`mpesa_callback_total{result="success"}`)
	callbackFailedCounter      = metrics.GetOrCreateCounter(`mpesa_callback_total{result="failed"}`)
	callbackMalformedCounter   = metrics.GetOrCreateCounter(`mpesa_callback_total{result="malformed"}`)
	callbackItemSkippedCounter = metrics.GetOrCreateCounter(`mpesa_callback_items_total{result="skipped"}`)
)

// Publisher receives every stored notification. Implementations must not block.
type Publisher interface {
	Dispatch(ctx context.Context, e message.PaymentEvent)
}

type Processor struct {
	store     *store.Store
	publisher Publisher
	logger    *slog.Logger
}

// NewProcessor accepts a nil publisher when no sinks are configured.
func NewProcessor(store *store.Store, publisher Publisher, logger *slog.Logger) *Processor {
	return &Processor{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Process parses a callback body and stores the result. Nothing is stored when the
// body is rejected.
func (p *Processor) Process(ctx context.Context, body []byte) (model.PaymentNotification, error) {
	n, skipped, err := Parse(body)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error parsing callback", "error", err, "body", string(body))
		callbackMalformedCounter.Inc()
		return model.PaymentNotification{}, err
	}

	for _, reason := range skipped {
		p.logger.WarnContext(ctx, "Skipping unusable callback metadata",
			"checkoutRequestId", n.CheckoutRequestID,
			"reason", reason)
		callbackItemSkippedCounter.Inc()
	}

	stored := p.store.Add(n)

	if stored.Successful() {
		p.logger.InfoContext(ctx, "Payment received",
			"checkoutRequestId", stored.CheckoutRequestID,
			"amount", stored.Amount,
			"receipt", stored.MpesaReceiptNumber)
		callbackSuccessCounter.Inc()
	} else {
		p.logger.InfoContext(ctx, "Payment failed",
			"checkoutRequestId", stored.CheckoutRequestID,
			"resultCode", stored.ResultCode,
			"resultDesc", stored.ResultDesc)
		callbackFailedCounter.Inc()
	}

	if p.publisher != nil {
		p.publisher.Dispatch(ctx, message.NewPaymentEvent(stored, body))
	}

	return stored, nil
}
