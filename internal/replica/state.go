// Package replica holds a viewer's normalized local copy of the server's
// offers and the pure reducer that applies change events to it.
package replica

import (
	"fmt"
	"slices"

	"github.com/alanyoungcy/offerstream/internal/domain"
)

// State is an immutable snapshot of the local replica. Reduce never mutates a
// State it is given; it returns a new one sharing unchanged parts.
//
// Offers and BySession form a bijection: every id in BySession[s] is a key of
// Offers whose SessionID is s, and every key of Offers appears exactly once,
// under its own session.
type State struct {
	Offers    map[int64]domain.Offer
	BySession map[int64][]int64
	Sessions  map[int64]domain.TradingSession

	// CurrentSessionID is zero when no session is being viewed.
	CurrentSessionID int64
	Loading          bool
	Error            string
	Connection       string
}

// New returns an empty replica.
func New() State {
	return State{
		Offers:     map[int64]domain.Offer{},
		BySession:  map[int64][]int64{},
		Sessions:   map[int64]domain.TradingSession{},
		Connection: "disconnected",
	}
}

// clone copies the top-level maps. Index slices are shared and must be
// replaced, never appended to in place.
func (s State) clone() State {
	next := s
	next.Offers = make(map[int64]domain.Offer, len(s.Offers)+1)
	for k, v := range s.Offers {
		next.Offers[k] = v
	}
	next.BySession = make(map[int64][]int64, len(s.BySession)+1)
	for k, v := range s.BySession {
		next.BySession[k] = v
	}
	next.Sessions = make(map[int64]domain.TradingSession, len(s.Sessions)+1)
	for k, v := range s.Sessions {
		next.Sessions[k] = v
	}
	return next
}

// IsSessionLoaded reports whether a resync payload has been applied for id.
func (s State) IsSessionLoaded(id int64) bool {
	_, ok := s.Sessions[id]
	return ok
}

// IsIndexed reports whether id is present in the index of sessionID.
func (s State) IsIndexed(sessionID, id int64) bool {
	return slices.Contains(s.BySession[sessionID], id)
}

// SessionOffers resolves the session index into offers, in index order.
func (s State) SessionOffers(sessionID int64) []domain.Offer {
	ids := s.BySession[sessionID]
	out := make([]domain.Offer, 0, len(ids))
	for _, id := range ids {
		if o, ok := s.Offers[id]; ok {
			out = append(out, o)
		}
	}
	return out
}

// CurrentSession returns the viewed session with its offers filled in.
func (s State) CurrentSession() (domain.TradingSession, bool) {
	if s.CurrentSessionID == 0 {
		return domain.TradingSession{}, false
	}
	sess, ok := s.Sessions[s.CurrentSessionID]
	if !ok {
		return domain.TradingSession{}, false
	}
	sess.Offers = s.SessionOffers(s.CurrentSessionID)
	return sess, true
}

// Validate checks the Offers/BySession bijection.
func (s State) Validate() error {
	seen := make(map[int64]int64, len(s.Offers))
	for sid, ids := range s.BySession {
		for _, id := range ids {
			if prev, dup := seen[id]; dup {
				return fmt.Errorf("replica: offer %d indexed under sessions %d and %d", id, prev, sid)
			}
			seen[id] = sid
			o, ok := s.Offers[id]
			if !ok {
				return fmt.Errorf("replica: session %d indexes missing offer %d", sid, id)
			}
			if o.SessionID != sid {
				return fmt.Errorf("replica: offer %d belongs to session %d but is indexed under %d", id, o.SessionID, sid)
			}
		}
	}
	for id := range s.Offers {
		if _, ok := seen[id]; !ok {
			return fmt.Errorf("replica: offer %d is not indexed", id)
		}
	}
	return nil
}
