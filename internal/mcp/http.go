package mcp

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"daraja-mcp/internal/tools"
)

const maxCallBodyBytes = 1 << 20

// HTTPHandler exposes the tool table over plain HTTP for remote hosts.
type HTTPHandler struct {
	dispatcher *tools.Dispatcher
	logger     *slog.Logger
}

func NewHTTPHandler(dispatcher *tools.Dispatcher, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{dispatcher: dispatcher, logger: logger}
}

func (h *HTTPHandler) ListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": h.dispatcher.Definitions()})
}

// CallTool answers 200 with the tool text, 400 for an unknown tool or bad
// arguments and 500 when the tool itself failed.
func (h *HTTPHandler) CallTool(w http.ResponseWriter, r *http.Request) {
	var params CallToolParams
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCallBodyBytes)).Decode(&params); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}

	res, err := h.dispatcher.Call(r.Context(), params.Name, params.Arguments)
	if err != nil {
		var unknown *tools.UnknownToolError
		var argErr *tools.ArgumentError
		if errors.As(err, &unknown) || errors.As(err, &argErr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		h.logger.ErrorContext(r.Context(), "Error calling tool", "tool", params.Name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if res.IsError {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": res.Text})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": res.Text})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
