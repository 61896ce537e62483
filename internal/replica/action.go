package replica

import (
	"fmt"

	"github.com/alanyoungcy/offerstream/internal/domain"
)

// Action is an input to Reduce.
type Action interface {
	action()
}

// EnterSession marks a session as the one being viewed.
type EnterSession struct {
	SessionID int64
}

// SessionLoaded carries a full resync payload for one session.
type SessionLoaded struct {
	Session domain.TradingSession
	Offers  []domain.Offer
}

// SessionLoadFailed reports a failed resync.
type SessionLoadFailed struct {
	SessionID int64
	Error     string
}

// OfferCreated, OfferUpdated, OfferDeleted and OfferBatch mirror the push
// channel events.
type OfferCreated struct {
	Offer domain.Offer
}

type OfferUpdated struct {
	Offer domain.Offer
}

type OfferDeleted struct {
	ID int64
}

type OfferBatch struct {
	Batch domain.OfferBatch
}

// ConnectionChanged records the push channel status.
type ConnectionChanged struct {
	Status string
}

func (EnterSession) action()      {}
func (SessionLoaded) action()     {}
func (SessionLoadFailed) action() {}
func (OfferCreated) action()      {}
func (OfferUpdated) action()      {}
func (OfferDeleted) action()      {}
func (OfferBatch) action()        {}
func (ConnectionChanged) action() {}

// FromEvent converts a decoded push channel event into an Action.
func FromEvent(ev domain.OfferEvent) (Action, error) {
	switch ev.Type {
	case domain.EventOfferCreated:
		return OfferCreated{Offer: ev.Offer}, nil
	case domain.EventOfferUpdated:
		return OfferUpdated{Offer: ev.Offer}, nil
	case domain.EventOfferDeleted:
		return OfferDeleted{ID: ev.ID}, nil
	case domain.EventOfferBatch:
		return OfferBatch{Batch: ev.Batch}, nil
	default:
		return nil, fmt.Errorf("replica: %w: %q", domain.ErrUnknownEvent, ev.Type)
	}
}
