package daraja

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"daraja-mcp/internal/config"
	"daraja-mcp/internal/payload"
	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTimeout = 30 * time.Second

	transactionTypePayBill = "CustomerPayBillOnline"

	opToken    = "token"
	opStkPush  = "stk_push"
	opStkQuery = "stk_query"

	tokenPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"
)

// APIError is a non-2xx answer from the provider. Body is kept verbatim.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.Status, e.Body)
}

type PushRequest struct {
	PhoneNumber      string
	Amount           int
	AccountReference string
	TransactionDesc  string
}

type Client struct {
	cfg         config.Daraja
	baseURL     string
	callbackURL string
	client      *http.Client
	logger      *slog.Logger
	now         func() time.Time

	mu         sync.Mutex
	token      Token
	tokenGroup singleflight.Group
}

func NewClient(cfg config.Daraja, callbackURL string, logger *slog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		cfg:         cfg,
		baseURL:     cfg.URL(),
		callbackURL: callbackURL,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
		now:         time.Now,
	}
}

func (c *Client) CallbackURL() string {
	return c.callbackURL
}

// AccessToken returns the cached token, fetching a new one when it is missing or
// stale. Concurrent callers share a single fetch that no one caller can cancel;
// each caller still stops waiting when its own ctx is done.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	cached := c.token
	c.mu.Unlock()

	if cached.Valid(c.now()) {
		return cached.Value, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.tokenGroup.DoChan(opToken, func() (any, error) {
		// another caller may have refreshed it while we waited
		c.mu.Lock()
		cached := c.token
		c.mu.Unlock()
		if cached.Valid(c.now()) {
			return cached.Value, nil
		}
		return c.fetchToken(fetchCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "failed to get access token")
	}
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokenPath, nil)
	if err != nil {
		return "", errors.Wrap(err, "creating token request")
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	var resp payload.TokenResponse
	if _, err := c.do(req, opToken, &resp); err != nil {
		return "", errors.Wrap(err, "failed to get access token")
	}
	if resp.AccessToken == "" {
		return "", errors.New("failed to get access token: empty access_token")
	}

	token := Token{
		Value:     resp.AccessToken,
		ExpiresAt: c.now().Add(tokenLifetime(resp.ExpiresIn)),
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "Fetched access token", "expiresAt", token.ExpiresAt)
	return token.Value, nil
}

// StkPush asks the provider to prompt the customer's phone for payment.
func (c *Client) StkPush(ctx context.Context, r PushRequest) (*payload.StkPushResponse, error) {
	timestamp := Timestamp(c.now())
	phone := NormalizePhone(r.PhoneNumber)

	body := payload.StkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   transactionTypePayBill,
		Amount:            r.Amount,
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.callbackURL,
		AccountReference:  r.AccountReference,
		TransactionDesc:   r.TransactionDesc,
	}

	var resp payload.StkPushResponse
	raw, err := c.post(ctx, opStkPush, stkPushPath, body, &resp)
	if err != nil {
		return nil, err
	}
	resp.Raw = raw

	c.logger.InfoContext(ctx, "STK push accepted",
		"checkoutRequestId", resp.CheckoutRequestID,
		"responseCode", resp.ResponseCode)

	return &resp, nil
}

func (c *Client) StkQuery(ctx context.Context, checkoutRequestID string) (*payload.StkQueryResponse, error) {
	timestamp := Timestamp(c.now())

	body := payload.StkQueryRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.Passkey, timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	var resp payload.StkQueryResponse
	raw, err := c.post(ctx, opStkQuery, stkQueryPath, body, &resp)
	if err != nil {
		return nil, err
	}
	resp.Raw = raw

	return &resp, nil
}

func (c *Client) post(ctx context.Context, op, path string, body any, out any) ([]byte, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	payloadBytes, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrapf(err, "marshalling %s request", op)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s request", op)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, op, out)
}

// do sends req once and decodes a 2xx body into out. The raw body is returned so
// callers can show the provider's answer as is.
func (c *Client) do(req *http.Request, op string, out any) ([]byte, error) {
	ctx := req.Context()
	startTime := time.Now()
	defer func() {
		requestDurationHistogram(op).Update(float64(time.Since(startTime).Milliseconds()))
	}()

	c.logger.DebugContext(ctx, "Calling Daraja", "op", op, "url", req.URL.Path)

	resp, err := c.client.Do(req)
	if err != nil {
		requestCounter(op, "transport_error").Inc()
		return nil, errors.Wrapf(err, "%s request", op)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		requestCounter(op, "transport_error").Inc()
		return nil, errors.Wrapf(err, "reading %s response", op)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WarnContext(ctx, "Daraja returned an error", "op", op, "status", resp.StatusCode, "body", string(respBody))
		requestCounter(op, "http_error").Inc()
		return respBody, &APIError{Op: op, Status: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		requestCounter(op, "decode_error").Inc()
		return respBody, errors.Wrapf(err, "decoding %s response: %s", op, string(respBody))
	}

	requestCounter(op, "success").Inc()
	return respBody, nil
}

func requestCounter(op, result string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`daraja_requests_total{op=%q,result=%q}`, op, result))
}

func requestDurationHistogram(op string) *metrics.Histogram {
	return metrics.GetOrCreateHistogram(fmt.Sprintf(`daraja_request_duration_milliseconds{op=%q}`, op))
}
