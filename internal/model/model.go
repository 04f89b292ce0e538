package model

import "time"

// PaymentNotification is one observed outcome of an STK push. The pointer fields are
// only set when the provider reported success (ResultCode 0) with metadata.
type PaymentNotification struct {
	MerchantRequestID  string    `json:"MerchantRequestID"`
	CheckoutRequestID  string    `json:"CheckoutRequestID"`
	ResultCode         int       `json:"ResultCode"`
	ResultDesc         string    `json:"ResultDesc"`
	Amount             *float64  `json:"Amount,omitempty"`
	MpesaReceiptNumber *string   `json:"MpesaReceiptNumber,omitempty"`
	TransactionDate    *string   `json:"TransactionDate,omitempty"`
	PhoneNumber        *string   `json:"PhoneNumber,omitempty"`
	Read               bool      `json:"read"`
	ReceivedAt         time.Time `json:"received_at"`
}

func (n PaymentNotification) Successful() bool {
	return n.ResultCode == 0
}

type Summary struct {
	Total       int    `json:"total_notifications"`
	Unread      int    `json:"unread_notifications"`
	Read        int    `json:"read_notifications"`
	CallbackURL string `json:"callback_url"`
}

// Clone copies the optional fields too, so the result shares no memory with n.
func (n PaymentNotification) Clone() PaymentNotification {
	n.Amount = clonePtr(n.Amount)
	n.MpesaReceiptNumber = clonePtr(n.MpesaReceiptNumber)
	n.TransactionDate = clonePtr(n.TransactionDate)
	n.PhoneNumber = clonePtr(n.PhoneNumber)
	return n
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
