package callback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"daraja-mcp/internal/model"
	"daraja-mcp/internal/payload"
	"github.com/pkg/errors"
)

// Metadata item names picked out of a successful callback. Anything else is ignored.
const (
	itemAmount          = "Amount"
	itemReceipt         = "MpesaReceiptNumber"
	itemTransactionDate = "TransactionDate"
	itemPhoneNumber     = "PhoneNumber"
)

// Parse turns a raw stkCallback envelope into a notification. It fails when the body
// is not JSON, has no Body.stkCallback object or carries no ResultCode. A picked
// metadata item whose value cannot be used (an object, a boolean, a non-numeric
// Amount) is left absent and described in skipped; the payment itself is kept.
func Parse(body []byte) (n model.PaymentNotification, skipped []string, err error) {
	var envelope payload.StkCallbackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return model.PaymentNotification{}, nil, errors.Wrap(err, "invalid callback body")
	}
	if envelope.Body == nil || envelope.Body.StkCallback == nil {
		return model.PaymentNotification{}, nil, errors.New("missing Body.stkCallback")
	}

	cb := envelope.Body.StkCallback
	if cb.ResultCode == nil {
		return model.PaymentNotification{}, nil, errors.New("missing stkCallback.ResultCode")
	}

	n = model.PaymentNotification{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        *cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
	}

	if n.ResultCode != 0 || cb.CallbackMetadata == nil {
		return n, nil, nil
	}

	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case itemAmount, itemReceipt, itemTransactionDate, itemPhoneNumber:
		default:
			continue
		}

		text, present, err := scalarText(item.Value)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("metadata item %s: %s", item.Name, err))
			continue
		}
		if !present {
			continue
		}

		switch item.Name {
		case itemAmount:
			amount, err := strconv.ParseFloat(text, 64)
			if err != nil {
				skipped = append(skipped, fmt.Sprintf("metadata item Amount is not numeric: %q", text))
				continue
			}
			n.Amount = &amount
		case itemReceipt:
			n.MpesaReceiptNumber = &text
		case itemTransactionDate:
			n.TransactionDate = &text
		case itemPhoneNumber:
			n.PhoneNumber = &text
		}
	}

	return n, skipped, nil
}

// scalarText renders a JSON string or number as text. Numbers keep their literal
// digits, so 20240108120000 stays "20240108120000". A missing or null value is
// reported as absent.
func scalarText(raw json.RawMessage) (string, bool, error) {
	if len(raw) == 0 {
		return "", false, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return "", false, err
	}

	switch v := value.(type) {
	case nil:
		return "", false, nil
	case string:
		return v, true, nil
	case json.Number:
		return v.String(), true, nil
	default:
		return "", false, errors.Errorf("unsupported value type %T", v)
	}
}
