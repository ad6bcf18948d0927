package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/loyalty/internal/auth"
	"github.com/dukerupert/loyalty/internal/engine"
)

// EventHandler lets operators submit engine events directly, bypassing the
// store platform's webhook format.
type EventHandler struct {
	engine EventProcessor
	logger *slog.Logger
}

func NewEventHandler(e EventProcessor, logger *slog.Logger) *EventHandler {
	return &EventHandler{engine: e, logger: logger}
}

type eventRequest struct {
	Event      string         `json:"event"`
	CustomerID int64          `json:"customer_id"`
	Payload    map[string]any `json:"payload"`
}

// Process handles POST /api/merchants/{merchant}/events
func (h *EventHandler) Process(w http.ResponseWriter, r *http.Request) {
	merchantID := auth.MerchantID(r.Context())

	var req eventRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !engine.Supported(req.Event) {
		writeError(w, http.StatusBadRequest, "unsupported event "+req.Event)
		return
	}
	if req.CustomerID <= 0 {
		writeError(w, http.StatusBadRequest, "customer_id is required")
		return
	}

	payload, err := engine.DecodePayload(req.Event, req.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.engine.ProcessEvent(r.Context(), engine.Event{
		Name:       req.Event,
		MerchantID: merchantID,
		CustomerID: req.CustomerID,
		Payload:    payload,
	})
	switch {
	case errors.Is(err, engine.ErrCustomerNotFound):
		writeError(w, http.StatusNotFound, "customer not found")
	case errors.Is(err, engine.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.logger.Error("process event", "merchant_id", merchantID, "event", req.Event, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process event")
	default:
		writeJSON(w, http.StatusOK, res)
	}
}
