package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// ClientCounter reports connected push-channel subscribers.
type ClientCounter interface {
	ClientCount() int
}

// OfferCounter reports the number of offers held by the store.
type OfferCounter interface {
	Len() int
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	clients   ClientCounter
	offers    OfferCounter
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. clients and offers may be nil.
func NewHealthHandler(clients ClientCounter, offers OfferCounter, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		clients:   clients,
		offers:    offers,
		startedAt: time.Now().UTC(),
		logger:    logger,
	}
}

// HealthCheck responds with a JSON status including subscriber and offer
// counts.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":         "ok",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
	if h.clients != nil {
		body["clients"] = h.clients.ClientCount()
	}
	if h.offers != nil {
		body["offers"] = h.offers.Len()
	}
	writeJSON(w, http.StatusOK, body)
}
