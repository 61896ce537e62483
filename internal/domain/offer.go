package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout is the wire format of Offer.UpdatedAt: UTC, second precision.
const TimestampLayout = "2006-01-02T15:04:05Z"

func init() {
	// Price and volume travel as JSON numbers, matching the push-channel
	// contract consumed by existing viewers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Offer is a single product price/volume quote belonging to a trading session.
type Offer struct {
	ID        int64           `json:"id"`
	SessionID int64           `json:"tradingSessionId"`
	Product   string          `json:"product"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
	UpdatedAt string          `json:"updatedAt"`
}

// FormatTimestamp renders t in the Offer.UpdatedAt wire format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// OfferBatch is a transactional group of changes produced by one generation
// cycle. An id present in Deleted is never treated as an update.
type OfferBatch struct {
	Created []Offer `json:"created"`
	Updated []Offer `json:"updated"`
	Deleted []int64 `json:"deleted"`
}

// Empty reports whether the batch carries no changes.
func (b OfferBatch) Empty() bool {
	return len(b.Created) == 0 && len(b.Updated) == 0 && len(b.Deleted) == 0
}

// DeletedSet returns the batch's deleted ids as a set.
func (b OfferBatch) DeletedSet() map[int64]struct{} {
	set := make(map[int64]struct{}, len(b.Deleted))
	for _, id := range b.Deleted {
		set[id] = struct{}{}
	}
	return set
}
