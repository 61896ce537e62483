package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// SnapshotTrigger requests an out-of-schedule snapshot export. It reports
// false when a request is already pending.
type SnapshotTrigger interface {
	Trigger() bool
}

// PipelineHandler serves the export trigger endpoint.
type PipelineHandler struct {
	trigger SnapshotTrigger
	logger  *slog.Logger
}

// NewPipelineHandler creates a PipelineHandler over trigger.
func NewPipelineHandler(trigger SnapshotTrigger, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{trigger: trigger, logger: logHandler(logger, "pipeline")}
}

// TriggerSnapshot asks the exporter for one immediate run. Repeated requests
// before that run starts collapse into one.
// POST /api/snapshots/trigger
func (h *PipelineHandler) TriggerSnapshot(w http.ResponseWriter, r *http.Request) {
	queued := h.trigger.Trigger()
	h.logger.InfoContext(r.Context(), "handler: snapshot trigger requested",
		slog.Bool("queued", queued),
	)

	status := "accepted"
	if !queued {
		status = "already_pending"
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":      status,
		"requestedAt": time.Now().UTC().Format(time.RFC3339),
	})
}
