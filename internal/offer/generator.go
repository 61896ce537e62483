package offer

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/alanyoungcy/offerstream/internal/domain"
	"github.com/shopspring/decimal"
)

// Catalog is the fixed list of products the generator draws from.
var Catalog = []string{
	"Grain", "Oil", "Gold", "Silver", "Copper", "Platinum", "Palladium",
	"Wheat", "Corn", "Soybeans", "Crude Oil", "Natural Gas", "Coal",
	"Aluminum", "Zinc", "Nickel", "Tin", "Lead", "Iron Ore",
}

// DefaultSessionIDs are the sessions offers are generated for when none are
// configured.
var DefaultSessionIDs = []int64{1, 2, 3}

const (
	minPrice     = 1
	priceSpan    = 5000
	minVolume    = 1
	volumeSpan   = 10000
	priceJitter  = 0.10
	volumeJitter = 0.15
)

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithSeed makes the generator deterministic.
func WithSeed(seed uint64) GeneratorOption {
	return func(g *Generator) { g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithGeneratorClock overrides the time source used for proposed timestamps.
func WithGeneratorClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// Generator proposes random offers and perturbations. It never touches the
// store; callers decide what to apply.
type Generator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	sessions []int64
	now      func() time.Time
}

// NewGenerator returns a generator for the given session ids. An empty list
// falls back to DefaultSessionIDs.
func NewGenerator(sessionIDs []int64, opts ...GeneratorOption) *Generator {
	if len(sessionIDs) == 0 {
		sessionIDs = DefaultSessionIDs
	}
	g := &Generator{
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		sessions: append([]int64(nil), sessionIDs...),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Sessions returns the session ids the generator targets.
func (g *Generator) Sessions() []int64 {
	return append([]int64(nil), g.sessions...)
}

// RandomOffer proposes a new offer in a random session. The id is left zero.
func (g *Generator) RandomOffer() domain.Offer {
	g.mu.Lock()
	sid := g.sessions[g.rng.IntN(len(g.sessions))]
	g.mu.Unlock()
	return g.RandomOfferFor(sid)
}

// RandomOfferFor proposes a new offer in the given session.
func (g *Generator) RandomOfferFor(sessionID int64) domain.Offer {
	g.mu.Lock()
	defer g.mu.Unlock()

	return domain.Offer{
		SessionID: sessionID,
		Product:   Catalog[g.rng.IntN(len(Catalog))],
		Price:     decimal.NewFromFloat(minPrice + g.rng.Float64()*priceSpan).Round(2),
		Volume:    decimal.NewFromFloat(minVolume + g.rng.Float64()*volumeSpan).Round(2),
		UpdatedAt: domain.FormatTimestamp(g.now()),
	}
}

// UpdateFor picks one of offers and proposes a perturbed copy: price moves by
// up to 10% and volume by up to 15% in either direction. Id, session and
// product are preserved. An empty input degrades to RandomOffer.
func (g *Generator) UpdateFor(offers []domain.Offer) domain.Offer {
	if len(offers) == 0 {
		return g.RandomOffer()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	o := offers[g.rng.IntN(len(offers))]
	o.Price = o.Price.Mul(g.factor(priceJitter)).Round(2)
	o.Volume = o.Volume.Mul(g.factor(volumeJitter)).Round(2)
	o.UpdatedAt = domain.FormatTimestamp(g.now())
	return o
}

// IntN exposes the generator's random source for callers that need to make
// choices consistent with its seed.
func (g *Generator) IntN(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}

// factor returns 1 ± up to span. Caller holds g.mu.
func (g *Generator) factor(span float64) decimal.Decimal {
	return decimal.NewFromFloat(1 + (g.rng.Float64()*2-1)*span)
}
