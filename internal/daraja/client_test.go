package daraja

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"daraja-mcp/internal/config"
	"daraja-mcp/internal/payload"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "http://daraja.test"

func testConfig(baseURL string) config.Daraja {
	return config.Daraja{
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		Passkey:        "passkey",
		Env:            config.EnvSandbox,
		BaseURL:        baseURL,
	}
}

func newTestClient(baseURL string) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(testConfig(baseURL), "https://example.com/mpesa/callback", logger)
}

func mockToken(value string) {
	gock.New(testBaseURL).
		Get("/oauth/v1/generate").
		MatchParam("grant_type", "client_credentials").
		MatchHeader("Authorization", "^Basic a2V5OnNlY3JldA==$").
		Reply(200).
		JSON(map[string]string{"access_token": value, "expires_in": "3599"})
}

func TestAccessToken_CachedUntilExpiry(t *testing.T) {
	defer gock.Off()

	now := time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC)
	c := newTestClient(testBaseURL)
	c.now = func() time.Time { return now }

	mockToken("first")
	token, err := c.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", token)
	assert.True(t, gock.IsDone())

	// no mock pending: a second fetch would fail
	token, err = c.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", token)

	now = now.Add(3600 * time.Second)
	mockToken("second")
	token, err = c.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", token)
	assert.True(t, gock.IsDone())
}

func TestAccessToken_ConcurrentCallersShareFetch(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(50 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]string{"access_token": "shared", "expires_in": "3599"})
	}))
	defer server.Close()

	c := newTestClient(server.URL)

	var wg sync.WaitGroup
	tokens := make([]string, 10)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], _ = c.AccessToken(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
	for _, token := range tokens {
		assert.Equal(t, "shared", token)
	}
}

func TestAccessToken_CancelledCallerDoesNotFailOthers(t *testing.T) {
	arrived := make(chan struct{})
	release := make(chan struct{})
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			close(arrived)
		}
		<-release
		json.NewEncoder(w).Encode(map[string]string{"access_token": "held", "expires_in": "3599"})
	}))
	defer server.Close()

	c := newTestClient(server.URL)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.AccessToken(ctxA)
		errA <- err
	}()
	<-arrived

	type result struct {
		token string
		err   error
	}
	resB := make(chan result, 1)
	go func() {
		token, err := c.AccessToken(context.Background())
		resB <- result{token, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(release)
	select {
	case res := <-resB:
		require.NoError(t, res.err)
		assert.Equal(t, "held", res.token)
	case <-time.After(5 * time.Second):
		t.Fatal("live caller never got a token")
	}
	assert.Equal(t, int32(1), hits.Load())

	token, err := c.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "held", token)
}

func TestAccessToken_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mock    func()
		wantErr string
	}{
		{
			name: "unauthorized",
			mock: func() {
				gock.New(testBaseURL).Get("/oauth/v1/generate").
					Reply(401).
					BodyString(`{"errorCode":"401.002.01","errorMessage":"Invalid Credentials"}`)
			},
			wantErr: "Invalid Credentials",
		},
		{
			name: "empty token",
			mock: func() {
				gock.New(testBaseURL).Get("/oauth/v1/generate").
					Reply(200).
					JSON(map[string]string{"expires_in": "3599"})
			},
			wantErr: "empty access_token",
		},
		{
			name: "not json",
			mock: func() {
				gock.New(testBaseURL).Get("/oauth/v1/generate").
					Reply(200).
					BodyString("<html>")
			},
			wantErr: "decoding token response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer gock.Off()
			tt.mock()

			_, err := newTestClient(testBaseURL).AccessToken(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to get access token")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStkPush_RequestShape(t *testing.T) {
	var got payload.StkPushRequest
	var auth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v1/generate":
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tkn", "expires_in": "3599"})
		case stkPushPath:
			auth = r.Header.Get("Authorization")
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.Write([]byte(`{"MerchantRequestID":"29115-1","CheckoutRequestID":"ws_CO_1","ResponseCode":"0","ResponseDescription":"Success. Request accepted for processing","CustomerMessage":"Success. Request accepted for processing"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	c.now = func() time.Time { return time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC) }

	resp, err := c.StkPush(context.Background(), PushRequest{
		PhoneNumber:      "+254712345678",
		Amount:           10,
		AccountReference: "INV-1",
		TransactionDesc:  "Invoice 1",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tkn", auth)
	assert.Equal(t, payload.StkPushRequest{
		BusinessShortCode: "174379",
		Password:          Password("174379", "passkey", "20240108120000"),
		Timestamp:         "20240108120000",
		TransactionType:   "CustomerPayBillOnline",
		Amount:            10,
		PartyA:            "254712345678",
		PartyB:            "174379",
		PhoneNumber:       "254712345678",
		CallBackURL:       "https://example.com/mpesa/callback",
		AccountReference:  "INV-1",
		TransactionDesc:   "Invoice 1",
	}, got)

	assert.Equal(t, "0", resp.ResponseCode)
	assert.Equal(t, "ws_CO_1", resp.CheckoutRequestID)
	assert.Contains(t, string(resp.Raw), "Request accepted")
}

func TestStkPush_ErrorBodySurfacedVerbatim(t *testing.T) {
	defer gock.Off()

	mockToken("tkn")
	gock.New(testBaseURL).
		Post(stkPushPath).
		MatchHeader("Authorization", "^Bearer tkn$").
		Reply(400).
		BodyString(`{"requestId":"r-1","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid Amount"}`)

	resp, err := newTestClient(testBaseURL).StkPush(context.Background(), PushRequest{PhoneNumber: "0712345678", Amount: 1})
	require.Error(t, err)
	assert.Nil(t, resp)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, `{"requestId":"r-1","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid Amount"}`, apiErr.Body)
	assert.True(t, gock.IsDone())
}

func TestStkQuery(t *testing.T) {
	defer gock.Off()

	mockToken("tkn")
	gock.New(testBaseURL).
		Post(stkQueryPath).
		BodyString(`"CheckoutRequestID":"ws_CO_42"`).
		Reply(200).
		JSON(map[string]string{
			"ResponseCode":      "0",
			"CheckoutRequestID": "ws_CO_42",
			"ResultCode":        "1032",
			"ResultDesc":        "Request cancelled by user",
		})

	resp, err := newTestClient(testBaseURL).StkQuery(context.Background(), "ws_CO_42")
	require.NoError(t, err)
	assert.Equal(t, "1032", resp.ResultCode)
	assert.Equal(t, "Request cancelled by user", resp.ResultDesc)
	assert.True(t, gock.IsDone())
}
