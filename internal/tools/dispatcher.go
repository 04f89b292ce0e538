package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"daraja-mcp/internal/daraja"
	"daraja-mcp/internal/payload"
	"daraja-mcp/internal/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
)

const (
	defaultLimit = 10
	maxLimit     = 50

	healthCheckTimeout = 2 * time.Second
)

// Gateway is the part of the Daraja client the tools need.
type Gateway interface {
	StkPush(ctx context.Context, r daraja.PushRequest) (*payload.StkPushResponse, error)
	StkQuery(ctx context.Context, checkoutRequestID string) (*payload.StkQueryResponse, error)
}

// Result is the text handed back to the assistant. IsError marks failures the
// caller should see as such, like an upstream rejection.
type Result struct {
	Text    string
	IsError bool
}

type handlerFunc func(ctx context.Context, args map[string]any) (Result, error)

type Dispatcher struct {
	store        *store.Store
	gateway      Gateway
	callbackURL  string
	healthURL    string
	healthClient *http.Client
	logger       *slog.Logger
	handlers     map[string]handlerFunc
}

func NewDispatcher(store *store.Store, gateway Gateway, callbackURL string, callbackPort int, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		store:        store,
		gateway:      gateway,
		callbackURL:  callbackURL,
		healthURL:    fmt.Sprintf("http://localhost:%d/health", callbackPort),
		healthClient: &http.Client{Timeout: healthCheckTimeout},
		logger:       logger,
	}
	d.handlers = map[string]handlerFunc{
		StkPush:                d.stkPush,
		StkQuery:               d.stkQuery,
		GetRecentPayments:      d.recentPayments,
		GetPaymentDetails:      d.paymentDetails,
		MarkPaymentRead:        d.markRead,
		GetNotificationSummary: d.summary,
		GetCallbackStatus:      d.callbackStatus,
	}
	return d
}

func (d *Dispatcher) Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Call runs the named tool. The error is non-nil only for an unknown name or bad
// arguments; everything else, upstream failures included, comes back as a Result.
func (d *Dispatcher) Call(ctx context.Context, name string, args map[string]any) (Result, error) {
	handler, ok := d.handlers[name]
	if !ok {
		d.logger.WarnContext(ctx, "Unknown tool requested", "tool", name)
		toolCounter("unknown", "unknown_tool").Inc()
		return Result{}, &UnknownToolError{Name: name}
	}
	if args == nil {
		args = map[string]any{}
	}

	d.logger.InfoContext(ctx, "Calling tool", "tool", name)

	result, err := handler(ctx, args)
	switch {
	case err != nil:
		d.logger.WarnContext(ctx, "Tool rejected arguments", "tool", name, "error", err)
		toolCounter(name, "invalid_arguments").Inc()
	case result.IsError:
		toolCounter(name, "error").Inc()
	default:
		toolCounter(name, "success").Inc()
	}
	return result, err
}

func (d *Dispatcher) stkPush(ctx context.Context, args map[string]any) (Result, error) {
	phone, err := requiredString(args, "phone_number")
	if err != nil {
		return Result{}, err
	}
	amount, ok, err := optionalInt(args, "amount")
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, &ArgumentError{Name: "amount", Reason: "is required"}
	}
	if amount < 1 {
		return Result{}, &ArgumentError{Name: "amount", Reason: "must be at least 1"}
	}
	reference, err := requiredString(args, "account_reference")
	if err != nil {
		return Result{}, err
	}
	description, err := requiredString(args, "transaction_desc")
	if err != nil {
		return Result{}, err
	}

	resp, err := d.gateway.StkPush(ctx, daraja.PushRequest{
		PhoneNumber:      phone,
		Amount:           amount,
		AccountReference: reference,
		TransactionDesc:  description,
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "Error initiating STK push", "error", err)
		return Result{Text: "Error initiating STK Push: " + err.Error(), IsError: true}, nil
	}

	text := indentRaw(rawOrMarshal(resp.Raw, resp))
	if resp.ResponseCode == "0" {
		text += fmt.Sprintf("\n\n✅ Payment request sent successfully!\nCheckoutRequestID: %s\n\n"+
			"Waiting for customer to complete payment. You'll be notified automatically when payment is received.",
			resp.CheckoutRequestID)
	}
	return Result{Text: text}, nil
}

func (d *Dispatcher) stkQuery(ctx context.Context, args map[string]any) (Result, error) {
	checkoutID, err := requiredString(args, "checkout_request_id")
	if err != nil {
		return Result{}, err
	}

	resp, err := d.gateway.StkQuery(ctx, checkoutID)
	if err != nil {
		d.logger.ErrorContext(ctx, "Error querying STK status", "error", err)
		return Result{Text: "Error querying STK status: " + err.Error(), IsError: true}, nil
	}
	return Result{Text: indentRaw(rawOrMarshal(resp.Raw, resp))}, nil
}

// recentPayments clamps limit to 50; a missing or non-positive limit means 10.
func (d *Dispatcher) recentPayments(_ context.Context, args map[string]any) (Result, error) {
	limit, ok, err := optionalInt(args, "limit")
	if err != nil {
		return Result{}, err
	}
	if !ok || limit < 1 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	payments, unread := d.store.RecentWithUnread(limit)
	return Result{Text: formatRecentPayments(payments, unread)}, nil
}

func (d *Dispatcher) paymentDetails(_ context.Context, args map[string]any) (Result, error) {
	checkoutID, _, err := optionalString(args, "checkout_request_id")
	if err != nil {
		return Result{}, err
	}
	receipt, _, err := optionalString(args, "mpesa_receipt")
	if err != nil {
		return Result{}, err
	}

	var found bool
	var text string
	switch {
	case checkoutID != "":
		n, ok := d.store.FindByCheckoutID(checkoutID)
		found, text = ok, indentJSON(n)
	case receipt != "":
		n, ok := d.store.FindByReceipt(receipt)
		found, text = ok, indentJSON(n)
	}

	if !found {
		return Result{Text: "Payment not found."}, nil
	}
	return Result{Text: text}, nil
}

func (d *Dispatcher) markRead(_ context.Context, args map[string]any) (Result, error) {
	checkoutID, err := requiredString(args, "checkout_request_id")
	if err != nil {
		return Result{}, err
	}

	if d.store.MarkRead(checkoutID) {
		return Result{Text: fmt.Sprintf("✅ Marked payment %s as read.", checkoutID)}, nil
	}
	return Result{Text: fmt.Sprintf("❌ Payment %s not found.", checkoutID)}, nil
}

func (d *Dispatcher) summary(_ context.Context, _ map[string]any) (Result, error) {
	return Result{Text: indentJSON(d.store.Summary(d.callbackURL))}, nil
}

// callbackStatus asks our own HTTP server for /health, the way an operator would.
func (d *Dispatcher) callbackStatus(ctx context.Context, _ map[string]any) (Result, error) {
	status, err := d.fetchHealth(ctx)
	if err != nil {
		return Result{Text: "❌ Callback server issue: " + err.Error(), IsError: true}, nil
	}

	return Result{Text: fmt.Sprintf("✅ Callback server is running!\n\n%s\n\n"+
		"Make sure this URL is accessible from Safaricom's servers.", indentJSON(status))}, nil
}

func (d *Dispatcher) fetchHealth(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.healthURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating health request")
	}

	resp, err := d.healthClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("health check returned %s", resp.Status)
	}

	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, errors.Wrap(err, "decoding health response")
	}
	return status, nil
}

func rawOrMarshal(raw []byte, v any) []byte {
	if len(raw) > 0 {
		return raw
	}
	b, _ := json.Marshal(v)
	return b
}

func toolCounter(tool, result string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`tool_calls_total{tool=%q,result=%q}`, tool, result))
}
