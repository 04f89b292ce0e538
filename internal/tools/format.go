package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"daraja-mcp/internal/model"
)

const notAvailable = "N/A"

func formatRecentPayments(payments []model.PaymentNotification, unread int) string {
	if len(payments) == 0 {
		return "No payments received yet."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Recent Payments (%d total, %d unread)\n\n", len(payments), unread)

	for _, p := range payments {
		icon := "🆕"
		if p.Read {
			icon = "✅"
		}

		if p.Successful() {
			fmt.Fprintf(&b, "%s SUCCESSFUL PAYMENT\n", icon)
			fmt.Fprintf(&b, "   Amount: KES %s\n", formatAmount(p.Amount))
			fmt.Fprintf(&b, "   Receipt: %s\n", orNA(p.MpesaReceiptNumber))
			fmt.Fprintf(&b, "   Phone: %s\n", orNA(p.PhoneNumber))
			fmt.Fprintf(&b, "   Date: %s\n", orNA(p.TransactionDate))
		} else {
			fmt.Fprintf(&b, "%s FAILED/CANCELLED\n", icon)
			fmt.Fprintf(&b, "   Reason: %s\n", valueOrNA(p.ResultDesc))
		}

		fmt.Fprintf(&b, "   CheckoutRequestID: %s\n", valueOrNA(p.CheckoutRequestID))
		fmt.Fprintf(&b, "   Received: %s\n\n", p.ReceivedAt.Format(time.RFC3339))
	}

	return b.String()
}

func formatAmount(amount *float64) string {
	if amount == nil {
		return notAvailable
	}
	return strconv.FormatFloat(*amount, 'f', -1, 64)
}

func orNA(s *string) string {
	if s == nil {
		return notAvailable
	}
	return valueOrNA(*s)
}

func valueOrNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}

// indentRaw pretty-prints a provider body, falling back to the bytes as given.
func indentRaw(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
