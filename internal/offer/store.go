// Package offer owns the authoritative in-memory offer collection, the random
// mutation generator and the background loop that drives it.
package offer

import (
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/offerstream/internal/domain"
	"github.com/alanyoungcy/offerstream/internal/metrics"
)

// Publisher receives one envelope per mutating store operation. Implementations
// must not block; they are invoked while the store's write lock is held.
type Publisher interface {
	Publish(env domain.Envelope)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(env domain.Envelope)

// Publish calls f(env).
func (f PublisherFunc) Publish(env domain.Envelope) { f(env) }

type nopPublisher struct{}

func (nopPublisher) Publish(domain.Envelope) {}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithPublisher sets the change notification sink.
func WithPublisher(p Publisher) Option {
	return func(s *Store) {
		if p != nil {
			s.pub = p
		}
	}
}

// Store is the single source of truth for offers. All mutations are serialized
// behind one mutex and each emits exactly one envelope, in mutation order.
type Store struct {
	mu     sync.RWMutex
	order  []int64
	offers map[int64]domain.Offer
	nextID int64
	now    func() time.Time
	pub    Publisher
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		offers: make(map[int64]domain.Offer),
		nextID: 1,
		now:    time.Now,
		pub:    nopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPublisher swaps the notification sink. Used at wiring time when the
// broadcaster is constructed after the store.
func (s *Store) SetPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		p = nopPublisher{}
	}
	s.pub = p
}

// Initialize replaces the whole collection. No notifications are emitted.
func (s *Store) Initialize(offers []domain.Offer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = make([]int64, 0, len(offers))
	s.offers = make(map[int64]domain.Offer, len(offers))
	var maxID int64
	for _, o := range offers {
		if _, dup := s.offers[o.ID]; !dup {
			s.order = append(s.order, o.ID)
		}
		s.offers[o.ID] = o
		if o.ID > maxID {
			maxID = o.ID
		}
	}
	s.nextID = maxID + 1
	metrics.StoreOffers.Set(float64(len(s.order)))
}

// GetAll returns a copy of every offer in insertion order.
func (s *Store) GetAll() []domain.Offer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Offer, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.offers[id])
	}
	return out
}

// GetBySession returns a copy of the offers of one session in insertion order.
func (s *Store) GetBySession(sessionID int64) []domain.Offer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Offer, 0)
	for _, id := range s.order {
		if o := s.offers[id]; o.SessionID == sessionID {
			out = append(out, o)
		}
	}
	return out
}

// GetByID looks up a single offer.
func (s *Store) GetByID(id int64) (domain.Offer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.offers[id]
	return o, ok
}

// Len returns the number of offers held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Add inserts o under a freshly assigned id, ignoring any id the caller set.
func (s *Store) Add(o domain.Offer) domain.Offer {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := s.insertLocked(o, s.stamp())
	s.pub.Publish(domain.CreatedEnvelope(created))
	metrics.StoreMutations.WithLabelValues("add").Inc()
	metrics.StoreOffers.Set(float64(len(s.order)))
	return created
}

// Update overwrites session, product, price and volume of an existing offer
// and refreshes its timestamp. It is not an upsert.
func (s *Store) Update(o domain.Offer) (domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, ok := s.updateLocked(o, s.stamp())
	if !ok {
		return domain.Offer{}, fmt.Errorf("offer: update %d: %w", o.ID, domain.ErrNotFound)
	}
	s.pub.Publish(domain.UpdatedEnvelope(updated))
	metrics.StoreMutations.WithLabelValues("update").Inc()
	return updated, nil
}

// Delete removes the offer with the given id. It reports whether anything was
// removed; absent ids emit nothing.
func (s *Store) Delete(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.deleteLocked(id) {
		return false
	}
	s.pub.Publish(domain.DeletedEnvelope(id))
	metrics.StoreMutations.WithLabelValues("delete").Inc()
	metrics.StoreOffers.Set(float64(len(s.order)))
	return true
}

// ApplyBatch applies deletes, then updates, then creates under a single lock
// and emits one OFFER_BATCH envelope. Updates for deleted or absent ids are
// skipped, and an id updated more than once is reported once with its final
// state. Created offers receive fresh ids. The returned batch is exactly what
// was emitted: assigned created offers, post-mutation updated offers, and the
// requested deleted ids.
func (s *Store) ApplyBatch(b domain.OfferBatch) domain.OfferBatch {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.stamp()
	deleted := b.DeletedSet()
	for _, id := range b.Deleted {
		s.deleteLocked(id)
	}

	applied := domain.OfferBatch{
		Created: make([]domain.Offer, 0, len(b.Created)),
		Updated: make([]domain.Offer, 0, len(b.Updated)),
		Deleted: append([]int64{}, b.Deleted...),
	}
	var updated []int64
	seen := make(map[int64]struct{}, len(b.Updated))
	for _, o := range b.Updated {
		if _, gone := deleted[o.ID]; gone {
			continue
		}
		if _, ok := s.updateLocked(o, ts); !ok {
			continue
		}
		if _, dup := seen[o.ID]; !dup {
			seen[o.ID] = struct{}{}
			updated = append(updated, o.ID)
		}
	}
	for _, id := range updated {
		applied.Updated = append(applied.Updated, s.offers[id])
	}
	for _, o := range b.Created {
		applied.Created = append(applied.Created, s.insertLocked(o, ts))
	}

	s.pub.Publish(domain.BatchEnvelope(applied))
	metrics.StoreMutations.WithLabelValues("batch").Inc()
	metrics.StoreOffers.Set(float64(len(s.order)))
	return applied
}

func (s *Store) stamp() string {
	return domain.FormatTimestamp(s.now())
}

func (s *Store) insertLocked(o domain.Offer, ts string) domain.Offer {
	o.ID = s.nextID
	s.nextID++
	o.UpdatedAt = ts
	s.offers[o.ID] = o
	s.order = append(s.order, o.ID)
	return o
}

func (s *Store) updateLocked(o domain.Offer, ts string) (domain.Offer, bool) {
	cur, ok := s.offers[o.ID]
	if !ok {
		return domain.Offer{}, false
	}
	cur.SessionID = o.SessionID
	cur.Product = o.Product
	cur.Price = o.Price
	cur.Volume = o.Volume
	cur.UpdatedAt = ts
	s.offers[o.ID] = cur
	return cur, true
}

func (s *Store) deleteLocked(id int64) bool {
	if _, ok := s.offers[id]; !ok {
		return false
	}
	delete(s.offers, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}
