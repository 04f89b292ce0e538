package db

import (
	"context"
	"encoding/json"
	"log/slog"

	"daraja-mcp/internal/message"
	"github.com/pkg/errors"
)

const SinkName = "archive"

type callbackCreator interface {
	Create(ctx context.Context, entity *CallbackEntity) (*CallbackEntity, error)
}

// Archive writes every stored callback to Postgres. It never feeds the in-memory store.
type Archive struct {
	repo   callbackCreator
	logger *slog.Logger
}

func NewArchive(repo *CallbackRepository, logger *slog.Logger) *Archive {
	return &Archive{repo: repo, logger: logger}
}

func (a *Archive) Name() string {
	return SinkName
}

func (a *Archive) Handle(ctx context.Context, e message.PaymentEvent) error {
	entity, err := toEntity(e)
	if err != nil {
		return err
	}

	if _, err := a.repo.Create(ctx, entity); err != nil {
		return err
	}

	a.logger.DebugContext(ctx, "Archived callback", "id", entity.ID, "checkoutRequestId", entity.CheckoutRequestID)
	return nil
}

func toEntity(e message.PaymentEvent) (*CallbackEntity, error) {
	payload := string(e.Raw)
	if len(e.Raw) == 0 {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, errors.Wrap(err, "marshalling payload")
		}
		payload = string(b)
	}

	n := e.Payload
	return &CallbackEntity{
		ID:                 e.ID,
		Event:              e.Event,
		MerchantRequestID:  n.MerchantRequestID,
		CheckoutRequestID:  n.CheckoutRequestID,
		ResultCode:         n.ResultCode,
		ResultDesc:         n.ResultDesc,
		Amount:             n.Amount,
		MpesaReceiptNumber: n.MpesaReceiptNumber,
		TransactionDate:    n.TransactionDate,
		PhoneNumber:        n.PhoneNumber,
		Payload:            payload,
		ReceivedAt:         n.ReceivedAt,
	}, nil
}
