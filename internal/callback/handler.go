package callback

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"daraja-mcp/internal/payload"
	"github.com/VictoriaMetrics/metrics"
)

const maxBodyBytes = 1 << 20

var timeoutCounter = metrics.GetOrCreateCounter(`mpesa_timeout_total`)

type Handler struct {
	processor *Processor
	logger    *slog.Logger
}

func NewHandler(processor *Processor, logger *slog.Logger) *Handler {
	return &Handler{processor: processor, logger: logger}
}

// Callback answers the provider with a success ack once the notification is
// stored, or a 500 ack carrying the reason when the body cannot be used.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Error reading callback body", "error", err)
		callbackMalformedCounter.Inc()
		writeAck(w, http.StatusInternalServerError, errorAck(err))
		return
	}

	if _, err := h.processor.Process(r.Context(), body); err != nil {
		writeAck(w, http.StatusInternalServerError, errorAck(err))
		return
	}

	writeAck(w, http.StatusOK, successAck())
}

// Timeout logs the provider's queue-timeout notice. Nothing is stored.
func (h *Handler) Timeout(w http.ResponseWriter, r *http.Request) {
	var notice any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&notice); err != nil {
		h.logger.ErrorContext(r.Context(), "Error decoding timeout notice", "error", err)
		writeAck(w, http.StatusInternalServerError, errorAck(err))
		return
	}

	h.logger.WarnContext(r.Context(), "STK push timed out", "notice", notice)
	timeoutCounter.Inc()

	writeAck(w, http.StatusOK, successAck())
}

func successAck() payload.Ack {
	return payload.Ack{ResultCode: 0, ResultDesc: "Success"}
}

func errorAck(err error) payload.Ack {
	return payload.Ack{ResultCode: 1, ResultDesc: "Error: " + err.Error()}
}

func writeAck(w http.ResponseWriter, status int, ack payload.Ack) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ack)
}
