package tools

const (
	StkPush                = "stk_push"
	StkQuery               = "stk_query"
	GetRecentPayments      = "get_recent_payments"
	GetPaymentDetails      = "get_payment_details"
	MarkPaymentRead        = "mark_payment_read"
	GetNotificationSummary = "get_notification_summary"
	GetCallbackStatus      = "get_callback_status"
)

type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func property(kind, description string) map[string]any {
	return map[string]any{"type": kind, "description": description}
}

var definitions = []Definition{
	{
		Name:        StkPush,
		Description: "Initiate an STK Push (Lipa Na M-PESA) payment request. Callback notifications will be received automatically.",
		InputSchema: objectSchema(map[string]any{
			"phone_number":      property("string", "Customer phone number in format 254XXXXXXXXX or 07XXXXXXXX"),
			"amount":            property("integer", "Amount to charge in KES (must be at least 1)"),
			"account_reference": property("string", "Account reference (e.g., invoice number, order ID)"),
			"transaction_desc":  property("string", "Description of the transaction"),
		}, "phone_number", "amount", "account_reference", "transaction_desc"),
	},
	{
		Name:        StkQuery,
		Description: "Check the status of an STK Push transaction using the CheckoutRequestID",
		InputSchema: objectSchema(map[string]any{
			"checkout_request_id": property("string", "The CheckoutRequestID returned from the STK Push request"),
		}, "checkout_request_id"),
	},
	{
		Name:        GetRecentPayments,
		Description: "Get recent payment notifications received via callback",
		InputSchema: objectSchema(map[string]any{
			"limit": map[string]any{
				"type":        "integer",
				"description": "Number of recent payments to retrieve (default: 10, max: 50)",
				"default":     defaultLimit,
			},
		}),
	},
	{
		Name:        GetPaymentDetails,
		Description: "Get details of a specific payment by CheckoutRequestID or M-PESA receipt number",
		InputSchema: objectSchema(map[string]any{
			"checkout_request_id": property("string", "CheckoutRequestID to look up"),
			"mpesa_receipt":       property("string", "M-PESA receipt number to look up"),
		}),
	},
	{
		Name:        MarkPaymentRead,
		Description: "Mark a payment notification as read",
		InputSchema: objectSchema(map[string]any{
			"checkout_request_id": property("string", "CheckoutRequestID to mark as read"),
		}, "checkout_request_id"),
	},
	{
		Name:        GetNotificationSummary,
		Description: "Get summary of payment notifications (total, unread count, etc.)",
		InputSchema: objectSchema(map[string]any{}),
	},
	{
		Name:        GetCallbackStatus,
		Description: "Check if the callback server is running and get its URL",
		InputSchema: objectSchema(map[string]any{}),
	},
}
