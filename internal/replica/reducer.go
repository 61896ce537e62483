package replica

import (
	"slices"

	"github.com/alanyoungcy/offerstream/internal/domain"
)

// Reduce applies a to s and returns the resulting state. s is never mutated;
// actions that change nothing return s as-is.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case EnterSession:
		next := s
		next.CurrentSessionID = a.SessionID
		next.Loading = !s.IsSessionLoaded(a.SessionID)
		next.Error = ""
		return next

	case SessionLoaded:
		return s.loadSession(a)

	case SessionLoadFailed:
		if s.CurrentSessionID != a.SessionID {
			return s
		}
		next := s
		next.Loading = false
		next.Error = a.Error
		return next

	case OfferCreated:
		if s.IsIndexed(a.Offer.SessionID, a.Offer.ID) {
			return s
		}
		next := s.clone()
		next.create(a.Offer)
		return next

	case OfferUpdated:
		if !s.IsIndexed(a.Offer.SessionID, a.Offer.ID) {
			return s
		}
		next := s.clone()
		next.update(a.Offer)
		return next

	case OfferDeleted:
		if _, ok := s.Offers[a.ID]; !ok {
			return s
		}
		next := s.clone()
		next.remove(a.ID)
		return next

	case OfferBatch:
		if a.Batch.Empty() {
			return s
		}
		next := s.clone()
		deleted := a.Batch.DeletedSet()
		for _, id := range a.Batch.Deleted {
			next.remove(id)
		}
		for _, o := range a.Batch.Updated {
			if _, gone := deleted[o.ID]; gone {
				continue
			}
			next.update(o)
		}
		for _, o := range a.Batch.Created {
			next.create(o)
		}
		return next

	case ConnectionChanged:
		next := s
		next.Connection = a.Status
		return next

	default:
		return s
	}
}

// loadSession replaces the session's index wholesale. Offers that were indexed
// under the session but are absent from the payload are dropped.
func (s State) loadSession(a SessionLoaded) State {
	sid := a.Session.ID
	next := s.clone()

	ids := make([]int64, 0, len(a.Offers))
	keep := make(map[int64]domain.Offer, len(a.Offers))
	for _, o := range a.Offers {
		if o.SessionID != sid {
			continue
		}
		if _, dup := keep[o.ID]; !dup {
			ids = append(ids, o.ID)
		}
		keep[o.ID] = o
	}

	for _, id := range s.BySession[sid] {
		if _, ok := keep[id]; !ok {
			delete(next.Offers, id)
		}
	}
	for id, o := range keep {
		if prev, ok := next.Offers[id]; ok && prev.SessionID != sid {
			next.BySession[prev.SessionID] = without(next.BySession[prev.SessionID], id)
		}
		next.Offers[id] = o
	}
	next.BySession[sid] = ids

	sess := a.Session
	sess.Offers = nil
	next.Sessions[sid] = sess

	if next.CurrentSessionID == sid {
		next.Loading = false
		next.Error = ""
	}
	return next
}

// create, update and remove operate on a cloned working state.

func (s *State) create(o domain.Offer) {
	if s.IsIndexed(o.SessionID, o.ID) {
		return
	}
	if _, ok := s.Offers[o.ID]; ok {
		s.remove(o.ID)
	}
	s.Offers[o.ID] = o
	s.BySession[o.SessionID] = append(slices.Clip(s.BySession[o.SessionID]), o.ID)
}

func (s *State) update(o domain.Offer) {
	if !s.IsIndexed(o.SessionID, o.ID) {
		return
	}
	cur := s.Offers[o.ID]
	o.ID = cur.ID
	o.SessionID = cur.SessionID
	s.Offers[o.ID] = o
}

func (s *State) remove(id int64) {
	o, ok := s.Offers[id]
	if !ok {
		return
	}
	delete(s.Offers, id)
	s.BySession[o.SessionID] = without(s.BySession[o.SessionID], id)
}

func without(ids []int64, id int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
