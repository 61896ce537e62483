package offer

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/offerstream/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu   sync.Mutex
	envs []domain.Envelope
}

func (p *recordingPublisher) Publish(env domain.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
}

func (p *recordingPublisher) all() []domain.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Envelope(nil), p.envs...)
}

var fixedNow = time.Date(2026, 3, 1, 10, 30, 45, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	s := NewStore(WithPublisher(pub), WithClock(func() time.Time { return fixedNow }))
	return s, pub
}

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestStoreAddAssignsMonotonicIDs(t *testing.T) {
	s, pub := newTestStore(t)
	s.Initialize(domain.SeedOffers())
	assert.Empty(t, pub.all(), "initialize must not emit")

	a := s.Add(domain.Offer{ID: 99, SessionID: 1, Product: "Corn", Price: price("10"), Volume: price("5")})
	assert.Equal(t, int64(7), a.ID, "caller id is ignored")
	assert.Equal(t, "2026-03-01T10:30:45Z", a.UpdatedAt)

	require.True(t, s.Delete(a.ID))
	b := s.Add(domain.Offer{SessionID: 2, Product: "Tin"})
	assert.Equal(t, int64(8), b.ID, "deleted ids are never reused")

	envs := pub.all()
	require.Len(t, envs, 3)
	assert.Equal(t, domain.EventOfferCreated, envs[0].Type)
	assert.Equal(t, domain.EventOfferDeleted, envs[1].Type)
	assert.Equal(t, domain.DeletedPayload{ID: 7}, envs[1].Payload)
	assert.Equal(t, domain.EventOfferCreated, envs[2].Type)
}

func TestStoreInitializeEmptyStartsAtOne(t *testing.T) {
	s, _ := newTestStore(t)
	s.Initialize(nil)
	assert.Equal(t, int64(1), s.Add(domain.Offer{SessionID: 1}).ID)
}

func TestStoreUpdateOverwritesAndRefreshesTimestamp(t *testing.T) {
	s, pub := newTestStore(t)
	s.Initialize([]domain.Offer{{
		ID: 1, SessionID: 1, Product: "Grain",
		Price: price("100"), Volume: price("10"), UpdatedAt: "2026-01-01T00:00:00Z",
	}})

	got, err := s.Update(domain.Offer{ID: 1, SessionID: 1, Product: "Grain", Price: price("110.00"), Volume: price("10")})
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(price("110.00")), "price = %s", got.Price)
	assert.Equal(t, "2026-03-01T10:30:45Z", got.UpdatedAt)

	stored, ok := s.GetByID(1)
	require.True(t, ok)
	assert.Equal(t, got, stored)

	envs := pub.all()
	require.Len(t, envs, 1)
	assert.Equal(t, domain.EventOfferUpdated, envs[0].Type)
	assert.Equal(t, got, envs[0].Payload)
}

func TestStoreUpdateUnknownIsNotFound(t *testing.T) {
	s, pub := newTestStore(t)
	s.Initialize(domain.SeedOffers())

	_, err := s.Update(domain.Offer{ID: 404, SessionID: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Empty(t, pub.all())
	_, ok := s.GetByID(404)
	assert.False(t, ok, "update is not an upsert")
}

func TestStoreDeleteAbsentEmitsNothing(t *testing.T) {
	s, pub := newTestStore(t)
	s.Initialize(domain.SeedOffers())
	assert.False(t, s.Delete(404))
	assert.Empty(t, pub.all())
	assert.Equal(t, 6, s.Len())
}

func TestStoreGetBySessionKeepsInsertionOrder(t *testing.T) {
	s, _ := newTestStore(t)
	s.Initialize(domain.SeedOffers())
	s.Add(domain.Offer{SessionID: 1, Product: "Zinc"})

	var ids []int64
	for _, o := range s.GetBySession(1) {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []int64{1, 2, 3, 7}, ids)
	assert.Empty(t, s.GetBySession(42))
}

func TestStoreApplyBatchDeleteWins(t *testing.T) {
	s, pub := newTestStore(t)
	s.Initialize(domain.SeedOffers())

	applied := s.ApplyBatch(domain.OfferBatch{
		Created: []domain.Offer{{ID: 2, SessionID: 3, Product: "Lead", Price: price("1"), Volume: price("1")}},
		Updated: []domain.Offer{
			{ID: 1, SessionID: 1, Product: "Grain", Price: price("151")},
			{ID: 2, SessionID: 1, Product: "Oil", Price: price("80")},
			{ID: 500, SessionID: 1, Product: "Ghost"},
		},
		Deleted: []int64{1},
	})

	_, ok := s.GetByID(1)
	assert.False(t, ok, "deleted id must not be resurrected by the update")

	require.Len(t, applied.Updated, 1)
	assert.Equal(t, int64(2), applied.Updated[0].ID)
	require.Len(t, applied.Created, 1)
	assert.Equal(t, int64(7), applied.Created[0].ID)
	assert.Equal(t, []int64{1}, applied.Deleted)

	envs := pub.all()
	require.Len(t, envs, 1, "a batch is broadcast once")
	assert.Equal(t, domain.EventOfferBatch, envs[0].Type)
	assert.Equal(t, applied, envs[0].Payload)
}

func TestStoreApplyBatchReportsFinalStatePerID(t *testing.T) {
	s, pub := newTestStore(t)
	s.Initialize(domain.SeedOffers())

	applied := s.ApplyBatch(domain.OfferBatch{
		Updated: []domain.Offer{
			{ID: 1, SessionID: 1, Product: "Grain", Price: price("10"), Volume: price("5")},
			{ID: 3, SessionID: 2, Product: "Oil", Price: price("30"), Volume: price("5")},
			{ID: 1, SessionID: 1, Product: "Grain", Price: price("20"), Volume: price("5")},
		},
	})

	require.Len(t, applied.Updated, 2, "each id appears once")
	assert.Equal(t, int64(1), applied.Updated[0].ID)
	assert.True(t, price("20").Equal(applied.Updated[0].Price), "the last write is what is reported")
	assert.Equal(t, int64(3), applied.Updated[1].ID)

	stored, ok := s.GetByID(1)
	require.True(t, ok)
	assert.Equal(t, stored, applied.Updated[0])
	assert.Equal(t, applied, pub.all()[0].Payload)
}

func TestStoreReadsReturnCopies(t *testing.T) {
	s, _ := newTestStore(t)
	s.Initialize(domain.SeedOffers())
	want, ok := s.GetByID(1)
	require.True(t, ok)

	all := s.GetAll()
	all[0].Price = price("0.01")
	all[0].Product = "mutated"

	bySession := s.GetBySession(want.SessionID)
	require.NotEmpty(t, bySession)
	bySession[0].Volume = price("999999")

	got, ok := s.GetByID(1)
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Len(t, s.GetAll(), len(domain.SeedOffers()))
}

func TestStoreApplyBatchOnEmptyStoreRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	s.Initialize(nil)

	applied := s.ApplyBatch(domain.OfferBatch{
		Created: []domain.Offer{
			{SessionID: 1, Product: "Gold", Price: price("10"), Volume: price("1")},
			{SessionID: 2, Product: "Tin", Price: price("20"), Volume: price("2")},
		},
	})

	assert.Equal(t, applied.Created, s.GetAll())
	assert.Equal(t, int64(1), applied.Created[0].ID)
	assert.Equal(t, int64(2), applied.Created[1].ID)
	assert.Empty(t, applied.Updated)
	assert.Empty(t, applied.Deleted)
}

func TestStoreConcurrentAddsYieldUniqueIDs(t *testing.T) {
	s, pub := newTestStore(t)
	s.Initialize(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				s.Add(domain.Offer{SessionID: 1})
			}
		}()
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, o := range s.GetAll() {
		assert.False(t, seen[o.ID], "duplicate id %d", o.ID)
		seen[o.ID] = true
	}
	assert.Len(t, seen, 500)

	// Emission order equals mutation order, so created ids arrive ascending.
	var last int64
	for _, env := range pub.all() {
		o := env.Payload.(domain.Offer)
		assert.Greater(t, o.ID, last)
		last = o.ID
	}
}
