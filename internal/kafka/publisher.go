package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"daraja-mcp/internal/message"
	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

const SinkName = "kafka"

var (
	publisherPublishedCounter = metrics.GetOrCreateCounter(`kafka_publisher_total{result="published"}`)
	publisherFailedCounter    = metrics.GetOrCreateCounter(`kafka_publisher_total{result="publish_failed"}`)
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher forwards stored payment notifications to a topic, keyed by
// CheckoutRequestID so every update for one checkout lands on the same partition.
type Publisher struct {
	writer MessageWriter
	logger *slog.Logger
}

func NewPublisher(writer MessageWriter, logger *slog.Logger) *Publisher {
	return &Publisher{writer: writer, logger: logger}
}

func (p *Publisher) Name() string {
	return SinkName
}

func (p *Publisher) Handle(ctx context.Context, e message.PaymentEvent) error {
	msg, err := toKafkaMessage(e)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		publisherFailedCounter.Inc()
		return errors.Wrap(err, "writing payment event to kafka")
	}

	p.logger.DebugContext(ctx, "Published payment event", "checkoutRequestId", e.Payload.CheckoutRequestID)
	publisherPublishedCounter.Inc()
	return nil
}

func toKafkaMessage(e message.PaymentEvent) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "marshalling payment event")
	}

	return kafka.Message{
		Key:   []byte(e.Payload.CheckoutRequestID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(e.Event)},
		},
	}, nil
}
