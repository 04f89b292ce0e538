package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"daraja-mcp/internal/logcontext"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (lrw *loggingResponseWriter) WriteHeader(status int) {
	lrw.status = status
	lrw.ResponseWriter.WriteHeader(status)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytes += n
	return n, err
}

// loggingMiddleware tags the request context with a requestId and logs one line
// per request once the handler is done.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, requestID)

		r = r.WithContext(logcontext.AppendCtx(r.Context(), slog.String("requestId", requestID)))

		lrw := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lrw, r)

		if lrw.status == 0 {
			lrw.status = http.StatusOK
		}

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		duration := time.Since(startTime)

		logger.InfoContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", lrw.status,
			"bytes", lrw.bytes,
			"durationMs", duration.Milliseconds())

		metrics.GetOrCreateCounter(fmt.Sprintf(`http_requests_total{route=%q,code="%d"}`, route, lrw.status)).Inc()
		metrics.GetOrCreateHistogram(fmt.Sprintf(`http_request_duration_milliseconds{route=%q}`, route)).
			Update(float64(duration.Milliseconds()))
	})
}
