package domain

import (
	"encoding/json"
	"fmt"
)

// EventType tags an Envelope.
type EventType string

const (
	EventOfferCreated EventType = "OFFER_CREATED"
	EventOfferUpdated EventType = "OFFER_UPDATED"
	EventOfferDeleted EventType = "OFFER_DELETED"
	EventOfferBatch   EventType = "OFFER_BATCH"
)

// Envelope is the tagged-union wire message used for both internal broadcast
// and push-channel delivery.
type Envelope struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// DeletedPayload is the payload of an OFFER_DELETED envelope.
type DeletedPayload struct {
	ID int64 `json:"id"`
}

// OfferEvent is a decoded envelope. Exactly one of Offer, ID or Batch is
// meaningful depending on Type.
type OfferEvent struct {
	Type  EventType
	Offer Offer
	ID    int64
	Batch OfferBatch
}

// CreatedEnvelope wraps a newly created offer.
func CreatedEnvelope(o Offer) Envelope {
	return Envelope{Type: EventOfferCreated, Payload: o}
}

// UpdatedEnvelope wraps the post-update state of an offer.
func UpdatedEnvelope(o Offer) Envelope {
	return Envelope{Type: EventOfferUpdated, Payload: o}
}

// DeletedEnvelope wraps the id of a removed offer.
func DeletedEnvelope(id int64) Envelope {
	return Envelope{Type: EventOfferDeleted, Payload: DeletedPayload{ID: id}}
}

// BatchEnvelope wraps an applied batch.
func BatchEnvelope(b OfferBatch) Envelope {
	return Envelope{Type: EventOfferBatch, Payload: b}
}

// rawEnvelope defers payload decoding until the type is known.
type rawEnvelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeEvent parses a raw push-channel message into a typed OfferEvent.
func DecodeEvent(raw []byte) (OfferEvent, error) {
	var env rawEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return OfferEvent{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return OfferEvent{}, fmt.Errorf("%w: missing payload for %q", ErrInvalidEnvelope, env.Type)
	}

	ev := OfferEvent{Type: env.Type}
	switch env.Type {
	case EventOfferCreated, EventOfferUpdated:
		if err := json.Unmarshal(env.Payload, &ev.Offer); err != nil {
			return OfferEvent{}, fmt.Errorf("%w: %s payload: %v", ErrInvalidEnvelope, env.Type, err)
		}
	case EventOfferDeleted:
		var p DeletedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return OfferEvent{}, fmt.Errorf("%w: %s payload: %v", ErrInvalidEnvelope, env.Type, err)
		}
		ev.ID = p.ID
	case EventOfferBatch:
		if err := json.Unmarshal(env.Payload, &ev.Batch); err != nil {
			return OfferEvent{}, fmt.Errorf("%w: %s payload: %v", ErrInvalidEnvelope, env.Type, err)
		}
	default:
		return OfferEvent{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	return ev, nil
}
