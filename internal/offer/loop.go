package offer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/offerstream/internal/domain"
	"github.com/alanyoungcy/offerstream/internal/metrics"
)

// BatchStore is the subset of Store the loop drives.
type BatchStore interface {
	GetAll() []domain.Offer
	ApplyBatch(b domain.OfferBatch) domain.OfferBatch
}

// LoopConfig tunes the background generation loop.
type LoopConfig struct {
	MinInterval          time.Duration
	MaxInterval          time.Duration
	RecoveryDelay        time.Duration
	MaxChangesPerSession int
}

// DefaultLoopConfig returns the production cadence.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MinInterval:          300 * time.Millisecond,
		MaxInterval:          900 * time.Millisecond,
		RecoveryDelay:        5 * time.Second,
		MaxChangesPerSession: 3,
	}
}

type changeKind int

const (
	changeCreate changeKind = iota
	changeUpdate
	changeDelete
)

// Loop periodically proposes a batch of random changes and applies it to the
// store.
type Loop struct {
	store  BatchStore
	gen    *Generator
	cfg    LoopConfig
	logger *slog.Logger
}

// NewLoop wires a loop. Zero fields in cfg take their defaults.
func NewLoop(store BatchStore, gen *Generator, cfg LoopConfig, logger *slog.Logger) *Loop {
	def := DefaultLoopConfig()
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = def.MinInterval
	}
	if cfg.MaxInterval < cfg.MinInterval {
		cfg.MaxInterval = cfg.MinInterval
	}
	if cfg.RecoveryDelay <= 0 {
		cfg.RecoveryDelay = def.RecoveryDelay
	}
	if cfg.MaxChangesPerSession <= 0 {
		cfg.MaxChangesPerSession = def.MaxChangesPerSession
	}
	return &Loop{
		store:  store,
		gen:    gen,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "generator")),
	}
}

// Run generates batches until ctx is cancelled and then returns ctx.Err().
// A failing cycle is logged and followed by RecoveryDelay.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("generator: started",
		slog.Duration("min_interval", l.cfg.MinInterval),
		slog.Duration("max_interval", l.cfg.MaxInterval),
	)
	for {
		wait := l.cfg.RecoveryDelay
		if err := l.RunOnce(); err != nil {
			metrics.GeneratorFailures.Inc()
			l.logger.Error("generator: cycle failed", slog.String("error", err.Error()))
		} else {
			metrics.GeneratorCycles.Inc()
			wait = l.interval()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.logger.Info("generator: stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunOnce performs a single cycle. Panics raised by the store are recovered
// and returned as errors.
func (l *Loop) RunOnce() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("offer: generation cycle panicked: %v", r)
		}
	}()

	b := l.propose(l.store.GetAll())
	if b.Empty() {
		return nil
	}
	applied := l.store.ApplyBatch(b)
	l.logger.Debug("generator: batch applied",
		slog.Int("created", len(applied.Created)),
		slog.Int("updated", len(applied.Updated)),
		slog.Int("deleted", len(applied.Deleted)),
	)
	return nil
}

// propose builds one cycle's batch from a snapshot of the store.
func (l *Loop) propose(snapshot []domain.Offer) domain.OfferBatch {
	bySession := make(map[int64][]domain.Offer)
	for _, o := range snapshot {
		bySession[o.SessionID] = append(bySession[o.SessionID], o)
	}

	var b domain.OfferBatch
	deleted := make(map[int64]struct{})
	// pending maps an id to its entry in b.Updated so a second update in the
	// same cycle builds on the first instead of adding a duplicate.
	pending := make(map[int64]int)

	for _, sid := range l.gen.Sessions() {
		slots := l.gen.IntN(l.cfg.MaxChangesPerSession + 1)
		for i := 0; i < slots; i++ {
			live := liveOffers(bySession[sid], deleted)
			for i, o := range live {
				if idx, ok := pending[o.ID]; ok {
					live[i] = b.Updated[idx]
				}
			}

			kind := changeCreate
			if len(live) > 0 {
				kind = changeKind(l.gen.IntN(3))
			}

			switch kind {
			case changeCreate:
				b.Created = append(b.Created, l.gen.RandomOfferFor(sid))
			case changeUpdate:
				u := l.gen.UpdateFor(live)
				if idx, ok := pending[u.ID]; ok {
					b.Updated[idx] = u
					continue
				}
				pending[u.ID] = len(b.Updated)
				b.Updated = append(b.Updated, u)
			case changeDelete:
				victim := live[l.gen.IntN(len(live))]
				deleted[victim.ID] = struct{}{}
				b.Deleted = append(b.Deleted, victim.ID)
			}
		}
	}
	return b
}

func (l *Loop) interval() time.Duration {
	span := l.cfg.MaxInterval - l.cfg.MinInterval
	if span <= 0 {
		return l.cfg.MinInterval
	}
	return l.cfg.MinInterval + time.Duration(l.gen.IntN(int(span)))
}

func liveOffers(offers []domain.Offer, deleted map[int64]struct{}) []domain.Offer {
	out := make([]domain.Offer, 0, len(offers))
	for _, o := range offers {
		if _, gone := deleted[o.ID]; !gone {
			out = append(out, o)
		}
	}
	return out
}
