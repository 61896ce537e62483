package handler

import (
	"net/http"
	"slices"
	"time"
)

// StatusHandler reports how this server instance is assembled.
type StatusHandler struct {
	Mode      string
	Sinks     []string
	Exports   bool
	StartedAt time.Time
}

// NewStatusHandler creates a StatusHandler. sinks names the broadcast sinks
// that are wired; exports tells whether snapshot exports run.
func NewStatusHandler(mode string, sinks []string, exports bool) *StatusHandler {
	return &StatusHandler{
		Mode:      mode,
		Sinks:     slices.Clone(sinks),
		Exports:   exports,
		StartedAt: time.Now().UTC(),
	}
}

type statusResponse struct {
	Mode      string   `json:"mode"`
	Sinks     []string `json:"sinks"`
	Exports   bool     `json:"exports"`
	StartedAt string   `json:"startedAt"`
}

// GetStatus responds with the running mode and wired sinks.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	sinks := h.Sinks
	if sinks == nil {
		sinks = []string{}
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Mode:      h.Mode,
		Sinks:     sinks,
		Exports:   h.Exports,
		StartedAt: h.StartedAt.Format(time.RFC3339),
	})
}
