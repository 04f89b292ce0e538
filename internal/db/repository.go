package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const callbackColumns = `id, event, merchant_request_id, checkout_request_id, result_code, result_desc,
	amount, mpesa_receipt_number, transaction_date, phone_number, payload, received_at, created_at`

type CallbackRepository struct {
	pool *pgxpool.Pool
}

func NewCallbackRepository(pool *pgxpool.Pool) *CallbackRepository {
	return &CallbackRepository{pool: pool}
}

func (r *CallbackRepository) Create(ctx context.Context, entity *CallbackEntity) (*CallbackEntity, error) {
	query := `INSERT INTO mpesa_callback (id, event, merchant_request_id, checkout_request_id, result_code,
	              result_desc, amount, mpesa_receipt_number, transaction_date, phone_number, payload, received_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	          RETURNING created_at`
	err := r.pool.QueryRow(ctx, query,
		entity.ID, entity.Event, entity.MerchantRequestID, entity.CheckoutRequestID, entity.ResultCode,
		entity.ResultDesc, entity.Amount, entity.MpesaReceiptNumber, entity.TransactionDate, entity.PhoneNumber,
		entity.Payload, entity.ReceivedAt,
	).Scan(&entity.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "inserting callback")
	}
	return entity, nil
}

func (r *CallbackRepository) GetByID(ctx context.Context, id uuid.UUID) (*CallbackEntity, error) {
	query := `SELECT ` + callbackColumns + ` FROM mpesa_callback WHERE id = $1`

	entity, err := scanCallback(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, errors.Wrapf(err, "selecting callback %s", id)
	}
	return entity, nil
}

// ListByCheckoutID returns every archived callback for a checkout, newest first.
// Provider redeliveries show up as separate rows.
func (r *CallbackRepository) ListByCheckoutID(ctx context.Context, checkoutRequestID string) ([]*CallbackEntity, error) {
	query := `SELECT ` + callbackColumns + ` FROM mpesa_callback
	          WHERE checkout_request_id = $1
	          ORDER BY received_at DESC`

	rows, err := r.pool.Query(ctx, query, checkoutRequestID)
	if err != nil {
		return nil, errors.Wrap(err, "querying callbacks")
	}
	defer rows.Close()

	var entities []*CallbackEntity
	for rows.Next() {
		entity, err := scanCallback(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning callback")
		}
		entities = append(entities, entity)
	}
	return entities, rows.Err()
}

func scanCallback(row pgx.Row) (*CallbackEntity, error) {
	var entity CallbackEntity
	err := row.Scan(
		&entity.ID, &entity.Event, &entity.MerchantRequestID, &entity.CheckoutRequestID, &entity.ResultCode,
		&entity.ResultDesc, &entity.Amount, &entity.MpesaReceiptNumber, &entity.TransactionDate,
		&entity.PhoneNumber, &entity.Payload, &entity.ReceivedAt, &entity.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}
