package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/offerstream/internal/domain"
)

// OfferReader is the read side of the offer store.
type OfferReader interface {
	GetBySession(sessionID int64) []domain.Offer
}

// sessionSummary is the list view of a session: everything but its offers.
type sessionSummary struct {
	ID        int64                `json:"id"`
	Name      string               `json:"name"`
	StartTime string               `json:"startTime"`
	EndTime   string               `json:"endTime"`
	Status    domain.SessionStatus `json:"status"`
	Products  []string             `json:"products"`
	CreatedAt string               `json:"createdAt"`
}

func summarize(s domain.TradingSession) sessionSummary {
	return sessionSummary{
		ID:        s.ID,
		Name:      s.Name,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Status:    s.Status,
		Products:  s.Products,
		CreatedAt: s.CreatedAt,
	}
}

// SessionHandler serves the trading-session read API. Sessions are a fixed
// catalog; offers come from the live store on every request.
type SessionHandler struct {
	sessions []sessionSummary
	byID     map[int64]domain.TradingSession
	offers   OfferReader
	logger   *slog.Logger
}

// NewSessionHandler creates a SessionHandler over the given catalog.
func NewSessionHandler(sessions []domain.TradingSession, offers OfferReader, logger *slog.Logger) *SessionHandler {
	byID := make(map[int64]domain.TradingSession, len(sessions))
	list := make([]sessionSummary, 0, len(sessions))
	for _, s := range sessions {
		s.Offers = nil
		byID[s.ID] = s
		list = append(list, summarize(s))
	}
	return &SessionHandler{
		sessions: list,
		byID:     byID,
		offers:   offers,
		logger:   logHandler(logger, "sessions"),
	}
}

// ListSessions returns every session without offers.
// GET /api/sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions)
}

// GetSession returns one session with its current offers.
// GET /api/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	sess, ok := h.byID[id]
	if !ok {
		h.logger.DebugContext(r.Context(), "handler: session not found", slog.Int64("session_id", id))
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	sess.Offers = h.offers.GetBySession(id)
	if sess.Offers == nil {
		sess.Offers = []domain.Offer{}
	}
	writeJSON(w, http.StatusOK, sess)
}
