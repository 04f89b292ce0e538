package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"daraja-mcp/internal/payload"
	"github.com/google/uuid"
)

const (
	contentType = "application/json"

	resultCancelled     = 1032
	resultCancelledDesc = "Request cancelled by user"
	resultSuccessDesc   = "The service request is processed successfully."
)

type errorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type outcome struct {
	pending    bool
	resultCode int
	resultDesc string
}

// mock imitates the sandbox: tokens are handed to anyone with basic auth, every
// STK push is accepted and answered later with a callback.
type mock struct {
	logger        *slog.Logger
	client        *http.Client
	callbackDelay time.Duration
	succeed       func() bool
	now           func() time.Time

	mu       sync.Mutex
	tokens   map[string]bool
	outcomes map[string]*outcome
	wg       sync.WaitGroup
}

func newMock(logger *slog.Logger, callbackDelay time.Duration, successRate float64) *mock {
	return &mock{
		logger:        logger,
		client:        &http.Client{Timeout: 10 * time.Second},
		callbackDelay: callbackDelay,
		succeed:       func() bool { return rand.Float64() < successRate },
		now:           time.Now,
		tokens:        make(map[string]bool),
		outcomes:      make(map[string]*outcome),
	}
}

func (m *mock) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /oauth/v1/generate", m.tokenHandler)
	mux.HandleFunc("POST /mpesa/stkpush/v1/processrequest", m.stkPushHandler)
	mux.HandleFunc("POST /mpesa/stkpushquery/v1/query", m.stkQueryHandler)
	return mux
}

func (m *mock) tokenHandler(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := r.BasicAuth(); !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			RequestID: uuid.NewString(), ErrorCode: "400.008.01", ErrorMessage: "Invalid Authentication passed",
		})
		return
	}

	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	m.mu.Lock()
	m.tokens[token] = true
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, payload.TokenResponse{AccessToken: token, ExpiresIn: "3599"})
}

func (m *mock) authorized(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[token]
}

func (m *mock) stkPushHandler(w http.ResponseWriter, r *http.Request) {
	if !m.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			RequestID: uuid.NewString(), ErrorCode: "404.001.03", ErrorMessage: "Invalid Access Token",
		})
		return
	}

	var req payload.StkPushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			RequestID: uuid.NewString(), ErrorCode: "400.002.02", ErrorMessage: "Bad Request - Invalid Body",
		})
		return
	}
	if msg := validatePush(req); msg != "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			RequestID: uuid.NewString(), ErrorCode: "400.002.02", ErrorMessage: "Bad Request - Invalid " + msg,
		})
		return
	}

	resp := payload.StkPushResponse{
		MerchantRequestID:   uuid.NewString(),
		CheckoutRequestID:   "ws_CO_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
	}

	m.mu.Lock()
	m.outcomes[resp.CheckoutRequestID] = &outcome{pending: true}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		time.Sleep(m.callbackDelay)
		m.complete(req, resp)
	}()

	writeJSON(w, http.StatusOK, resp)
}

func validatePush(req payload.StkPushRequest) string {
	switch {
	case req.BusinessShortCode == "":
		return "BusinessShortCode"
	case req.Password == "" || req.Timestamp == "":
		return "Password"
	case req.Amount < 1:
		return "Amount"
	case req.PhoneNumber == "":
		return "PhoneNumber"
	case !strings.HasPrefix(req.CallBackURL, "http"):
		return "CallBackURL"
	}
	return ""
}

// complete settles the push and delivers the callback the way the provider does.
func (m *mock) complete(req payload.StkPushRequest, resp payload.StkPushResponse) {
	code, desc := resultCancelled, resultCancelledDesc
	if m.succeed() {
		code, desc = 0, resultSuccessDesc
	}

	m.mu.Lock()
	m.outcomes[resp.CheckoutRequestID] = &outcome{resultCode: code, resultDesc: desc}
	m.mu.Unlock()

	stk := &payload.StkCallback{
		MerchantRequestID: resp.MerchantRequestID,
		CheckoutRequestID: resp.CheckoutRequestID,
		ResultCode:        &code,
		ResultDesc:        desc,
	}
	if code == 0 {
		stk.CallbackMetadata = &payload.CallbackMetadata{Item: []payload.CallbackItem{
			{Name: "Amount", Value: json.RawMessage(fmt.Sprintf("%d.00", req.Amount))},
			{Name: "MpesaReceiptNumber", Value: json.RawMessage(fmt.Sprintf("%q", receiptNumber()))},
			{Name: "Balance"},
			{Name: "TransactionDate", Value: json.RawMessage(m.now().Format("20060102150405"))},
			{Name: "PhoneNumber", Value: numberOrString(req.PhoneNumber)},
		}}
	}

	body, err := json.Marshal(payload.StkCallbackEnvelope{Body: &payload.StkCallbackBody{StkCallback: stk}})
	if err != nil {
		m.logger.Error("Error marshalling callback", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.client.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.CallBackURL, bytes.NewReader(body))
	if err != nil {
		m.logger.Error("Error creating callback request", "error", err)
		return
	}
	httpReq.Header.Set("Content-Type", contentType)

	httpResp, err := m.client.Do(httpReq)
	if err != nil {
		m.logger.Error("Error delivering callback", "url", req.CallBackURL, "error", err)
		return
	}
	defer httpResp.Body.Close()

	m.logger.Info("Callback delivered",
		"checkoutRequestId", resp.CheckoutRequestID,
		"resultCode", code,
		"status", httpResp.StatusCode)
}

func (m *mock) stkQueryHandler(w http.ResponseWriter, r *http.Request) {
	if !m.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{
			RequestID: uuid.NewString(), ErrorCode: "404.001.03", ErrorMessage: "Invalid Access Token",
		})
		return
	}

	var req payload.StkQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			RequestID: uuid.NewString(), ErrorCode: "400.002.02", ErrorMessage: "Bad Request - Invalid Body",
		})
		return
	}

	m.mu.Lock()
	o, ok := m.outcomes[req.CheckoutRequestID]
	m.mu.Unlock()

	switch {
	case !ok:
		writeJSON(w, http.StatusNotFound, errorResponse{
			RequestID: uuid.NewString(), ErrorCode: "404.001.04", ErrorMessage: "Invalid CheckoutRequestID",
		})
	case o.pending:
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			RequestID: uuid.NewString(), ErrorCode: "500.001.1001", ErrorMessage: "The transaction is being processed",
		})
	default:
		writeJSON(w, http.StatusOK, payload.StkQueryResponse{
			ResponseCode:        "0",
			ResponseDescription: "The service request has been accepted successsfully",
			MerchantRequestID:   uuid.NewString(),
			CheckoutRequestID:   req.CheckoutRequestID,
			ResultCode:          fmt.Sprint(o.resultCode),
			ResultDesc:          o.resultDesc,
		})
	}
}

// wait blocks until every scheduled callback has been attempted.
func (m *mock) wait() {
	m.wg.Wait()
}

// numberOrString keeps digit-only values numeric, as the provider sends phone numbers.
func numberOrString(s string) json.RawMessage {
	if _, err := strconv.ParseUint(s, 10, 64); err == nil {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}

func receiptNumber() string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 10)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
