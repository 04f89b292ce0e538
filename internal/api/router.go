package api

import (
	"log/slog"
	"net/http"

	"daraja-mcp/internal/callback"
	"daraja-mcp/internal/mcp"
	"daraja-mcp/internal/metrics"
	"daraja-mcp/internal/store"
)

type Dependencies struct {
	Store       *store.Store
	Callbacks   *callback.Handler
	Tools       *mcp.HTTPHandler
	CallbackURL string
	Transport   string
	Logger      *slog.Logger
}

func NewRouter(deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", indexHandler(deps.Transport))
	mux.HandleFunc("GET /liveness", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /health", healthHandler(deps.Store, deps.CallbackURL))
	mux.HandleFunc("GET /favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /mpesa/callback", deps.Callbacks.Callback)
	mux.HandleFunc("POST /mpesa/timeout", deps.Callbacks.Timeout)

	mux.HandleFunc("GET /mcp/tools", deps.Tools.ListTools)
	mux.HandleFunc("POST /mcp/call_tool", deps.Tools.CallTool)

	return loggingMiddleware(deps.Logger, mux)
}
