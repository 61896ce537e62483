// Package viewer is the client application layer: it feeds push channel
// events into the local replica and reloads the viewed session after a
// reconnect.
package viewer

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/alanyoungcy/offerstream/internal/client"
	"github.com/alanyoungcy/offerstream/internal/domain"
	"github.com/alanyoungcy/offerstream/internal/replica"
	"github.com/google/uuid"
)

const inboxSize = 1024

var _ client.Listener = (*Viewer)(nil)

// input is one unit of work for the Run goroutine. Exactly one field is set.
type input struct {
	action      replica.Action
	enter       int64
	reconnected bool
	loaded      *loadResult
}

type loadResult struct {
	sessionID int64
	seq       uint64
	session   domain.TradingSession
	err       error
}

// Viewer owns a replica.State. All transitions happen on the goroutine running
// Run; other goroutines read consistent snapshots through State.
type Viewer struct {
	id      string
	fetcher SessionFetcher
	logger  *slog.Logger

	inbox chan input
	done  chan struct{}

	// Owned by Run.
	state   replica.State
	loadSeq map[int64]uint64

	snapshot atomic.Pointer[replica.State]
}

// New creates a viewer that resyncs through fetcher.
func New(fetcher SessionFetcher, logger *slog.Logger) *Viewer {
	id := uuid.NewString()
	v := &Viewer{
		id:      id,
		fetcher: fetcher,
		logger:  logger.With(slog.String("component", "viewer"), slog.String("viewer_id", id)),
		inbox:   make(chan input, inboxSize),
		done:    make(chan struct{}),
		state:   replica.New(),
		loadSeq: make(map[int64]uint64),
	}
	initial := v.state
	v.snapshot.Store(&initial)
	return v
}

// ID identifies this viewer instance in logs.
func (v *Viewer) ID() string { return v.id }

// State returns the latest replica snapshot.
func (v *Viewer) State() replica.State {
	return *v.snapshot.Load()
}

// EnterSession switches the viewed session, loading it unless it is already
// in the replica.
func (v *Viewer) EnterSession(sessionID int64) {
	v.enqueue(input{enter: sessionID})
}

// OnEvent implements client.Listener.
func (v *Viewer) OnEvent(ev domain.OfferEvent) {
	a, err := replica.FromEvent(ev)
	if err != nil {
		v.logger.Warn("viewer: dropping event", slog.String("error", err.Error()))
		return
	}
	v.enqueue(input{action: a})
}

// OnStatus implements client.Listener.
func (v *Viewer) OnStatus(s client.State) {
	v.enqueue(input{action: replica.ConnectionChanged{Status: s.String()}})
}

// OnReconnected implements client.Listener. The viewed session is reloaded so
// changes missed while disconnected are recovered.
func (v *Viewer) OnReconnected() {
	v.enqueue(input{reconnected: true})
}

// enqueue blocks until Run accepts the input or has exited.
func (v *Viewer) enqueue(in input) {
	select {
	case v.inbox <- in:
	case <-v.done:
	}
}

// Run processes inputs until ctx is cancelled.
func (v *Viewer) Run(ctx context.Context) error {
	defer close(v.done)
	v.logger.Info("viewer: started")

	for {
		select {
		case <-ctx.Done():
			v.logger.Info("viewer: stopped")
			return ctx.Err()
		case in := <-v.inbox:
			v.handle(ctx, in)
		}
	}
}

func (v *Viewer) handle(ctx context.Context, in input) {
	switch {
	case in.loaded != nil:
		v.applyLoad(*in.loaded)
	case in.reconnected:
		if sid := v.state.CurrentSessionID; sid != 0 {
			v.logger.Info("viewer: reconnected, reloading session", slog.Int64("session_id", sid))
			v.load(ctx, sid)
		}
	case in.enter != 0:
		v.apply(replica.EnterSession{SessionID: in.enter})
		if !v.state.IsSessionLoaded(in.enter) {
			v.load(ctx, in.enter)
		}
	case in.action != nil:
		v.apply(in.action)
	}
}

func (v *Viewer) apply(a replica.Action) {
	v.state = replica.Reduce(v.state, a)
	next := v.state
	v.snapshot.Store(&next)
}

// load fetches a session in the background. Only the most recent load per
// session is applied.
func (v *Viewer) load(ctx context.Context, sessionID int64) {
	v.loadSeq[sessionID]++
	seq := v.loadSeq[sessionID]

	go func() {
		sess, err := v.fetcher.FetchSession(ctx, sessionID)
		v.enqueue(input{loaded: &loadResult{sessionID: sessionID, seq: seq, session: sess, err: err}})
	}()
}

func (v *Viewer) applyLoad(res loadResult) {
	if res.seq != v.loadSeq[res.sessionID] {
		return
	}
	if res.err != nil {
		if errors.Is(res.err, context.Canceled) {
			return
		}
		msg := res.err.Error()
		if errors.Is(res.err, domain.ErrNotFound) {
			msg = "Session not found"
		}
		v.logger.Warn("viewer: session load failed",
			slog.Int64("session_id", res.sessionID),
			slog.String("error", res.err.Error()),
		)
		v.apply(replica.SessionLoadFailed{SessionID: res.sessionID, Error: msg})
		return
	}

	offers := res.session.Offers
	res.session.Offers = nil
	v.apply(replica.SessionLoaded{Session: res.session, Offers: offers})
	v.logger.Debug("viewer: session loaded",
		slog.Int64("session_id", res.sessionID),
		slog.Int("offers", len(offers)),
	)
}

// LogSummary logs the viewed session and its highest-priced offers.
func (v *Viewer) LogSummary(top int) {
	st := v.State()
	sess, ok := st.CurrentSession()
	if !ok {
		v.logger.Info("viewer: no session loaded",
			slog.String("connection", st.Connection),
			slog.Bool("loading", st.Loading),
			slog.String("error", st.Error),
		)
		return
	}

	best := replica.SortOffers(sess.Offers, replica.SortByPrice, replica.SortDesc)
	if len(best) > top {
		best = best[:top]
	}
	attrs := make([]any, 0, len(best))
	for _, o := range best {
		attrs = append(attrs, slog.Group(o.Product,
			slog.Int64("id", o.ID),
			slog.String("price", o.Price.StringFixed(2)),
			slog.String("volume", o.Volume.StringFixed(2)),
		))
	}
	v.logger.Info("viewer: session summary",
		slog.Int64("session_id", sess.ID),
		slog.String("name", sess.Name),
		slog.String("connection", st.Connection),
		slog.Int("offers", len(sess.Offers)),
		slog.Group("top", attrs...),
	)
}
