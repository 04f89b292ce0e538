package db

import (
	"time"

	"github.com/google/uuid"
)

// CallbackEntity is one archived provider callback.
type CallbackEntity struct {
	ID                 uuid.UUID
	Event              string
	MerchantRequestID  string
	CheckoutRequestID  string
	ResultCode         int
	ResultDesc         string
	Amount             *float64
	MpesaReceiptNumber *string
	TransactionDate    *string
	PhoneNumber        *string
	Payload            string
	ReceivedAt         time.Time
	CreatedAt          time.Time
}
