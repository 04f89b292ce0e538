package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	body   *bytes.Buffer
}

func (lrw *loggingResponseWriter) WriteHeader(status int) {
	lrw.status = status
	lrw.ResponseWriter.WriteHeader(status)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	lrw.body.Write(b)
	return lrw.ResponseWriter.Write(b)
}

// referenceTracker remembers every AccountReference seen by stkpush so repeated
// pushes for the same order stand out in the log.
type referenceTracker struct {
	mu   sync.Mutex
	seen map[string]int
}

func newReferenceTracker() *referenceTracker {
	return &referenceTracker{seen: make(map[string]int)}
}

func (t *referenceTracker) observe(body []byte) (string, int) {
	var req struct {
		AccountReference string `json:"AccountReference"`
	}
	if err := json.Unmarshal(body, &req); err != nil || req.AccountReference == "" {
		return "", 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[req.AccountReference]++
	return req.AccountReference, t.seen[req.AccountReference]
}

func loggingMiddleware(logger *slog.Logger, tracker *referenceTracker, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var requestBody bytes.Buffer
		tee := io.TeeReader(r.Body, &requestBody)
		body, err := io.ReadAll(tee)
		if err != nil {
			logger.Error("Error reading request body", "error", err)
		}
		r.Body = io.NopCloser(&requestBody)

		logger.Info("Request", "method", r.Method, "path", r.URL.Path, "body", string(body))

		if reference, count := tracker.observe(body); count > 1 {
			logger.Warn("Duplicate account reference", "reference", reference, "count", count)
		}

		lrw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK, body: &bytes.Buffer{}}
		next.ServeHTTP(lrw, r)

		logger.Info("Response", "path", r.URL.Path, "status", lrw.status, "body", lrw.body.String())
	})
}
