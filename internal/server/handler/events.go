package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/offerstream/internal/domain"
)

// EventsHandler exposes the persisted change journal.
type EventsHandler struct {
	journal domain.EventJournal
	logger  *slog.Logger
}

// NewEventsHandler creates an EventsHandler backed by journal.
func NewEventsHandler(journal domain.EventJournal, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{journal: journal, logger: logHandler(logger, "events")}
}

// listEventsResponse wraps the list endpoint output with metadata.
type listEventsResponse struct {
	Events []domain.JournalEntry `json:"events"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// ListEvents returns journaled envelopes, newest first.
// GET /api/events?limit=50&offset=0&since=2026-02-11T09:00:00Z
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	events, err := h.journal.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list events failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []domain.JournalEntry{}
	}

	writeJSON(w, http.StatusOK, listEventsResponse{
		Events: events,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}
