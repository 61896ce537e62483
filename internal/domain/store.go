package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// JournalEntry is a single persisted change notification.
type JournalEntry struct {
	ID        int64           `json:"id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// EventJournal persists an append-only log of broadcast envelopes. It is an
// audit sink only; the offer store is never rebuilt from it.
type EventJournal interface {
	Append(ctx context.Context, eventType EventType, payload []byte) error
	List(ctx context.Context, opts ListOpts) ([]JournalEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]JournalEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
