package api

import (
	"encoding/json"
	"net/http"

	"daraja-mcp/internal/store"
)

type healthResponse struct {
	Status         string `json:"status"`
	CallbackURL    string `json:"callback_url"`
	UnreadPayments int    `json:"unread_payments"`
}

func healthHandler(store *store.Store, callbackURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			Status:         "healthy",
			CallbackURL:    callbackURL,
			UnreadPayments: store.UnreadCount(),
		})
	}
}

func indexHandler(transport string) http.HandlerFunc {
	endpoints := map[string]string{
		"health":         "/health",
		"mpesa_callback": "/mpesa/callback",
		"mpesa_timeout":  "/mpesa/timeout",
		"metrics":        "/metrics",
		"mcp_tools":      "/mcp/tools",
		"mcp_call":       "/mcp/call_tool",
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service":   "Daraja MCP Server",
			"status":    "running",
			"transport": transport,
			"endpoints": endpoints,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
