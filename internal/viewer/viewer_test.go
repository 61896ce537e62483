package viewer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/offerstream/internal/client"
	"github.com/alanyoungcy/offerstream/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mkOffer(id, session int64) domain.Offer {
	return domain.Offer{ID: id, SessionID: session, Product: "Gold", Price: decimal.NewFromInt(id), Volume: decimal.NewFromInt(1)}
}

// scriptedFetcher returns successive responses per call.
type scriptedFetcher struct {
	mu        sync.Mutex
	calls     int
	responses []func(id int64) (domain.TradingSession, error)
}

func (f *scriptedFetcher) FetchSession(_ context.Context, id int64) (domain.TradingSession, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.mu.Unlock()
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i](id)
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func sessionWith(offers ...domain.Offer) func(int64) (domain.TradingSession, error) {
	return func(id int64) (domain.TradingSession, error) {
		return domain.TradingSession{ID: id, Name: fmt.Sprintf("Session %d", id), Offers: offers}, nil
	}
}

func runViewer(t *testing.T, f SessionFetcher) *Viewer {
	t.Helper()
	v := New(f, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = v.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return v
}

func TestViewerLoadsSessionOnEnter(t *testing.T) {
	f := &scriptedFetcher{responses: []func(int64) (domain.TradingSession, error){sessionWith(mkOffer(1, 1), mkOffer(2, 1))}}
	v := runViewer(t, f)

	v.EnterSession(1)
	require.Eventually(t, func() bool { return v.State().IsSessionLoaded(1) }, time.Second, 5*time.Millisecond)

	st := v.State()
	assert.False(t, st.Loading)
	assert.Equal(t, []int64{1, 2}, st.BySession[1])

	// Re-entering a loaded session does not fetch again.
	v.EnterSession(1)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, f.callCount())
}

func TestViewerAppliesPushEvents(t *testing.T) {
	f := &scriptedFetcher{responses: []func(int64) (domain.TradingSession, error){sessionWith(mkOffer(1, 1))}}
	v := runViewer(t, f)
	v.EnterSession(1)
	require.Eventually(t, func() bool { return v.State().IsSessionLoaded(1) }, time.Second, 5*time.Millisecond)

	v.OnStatus(client.Connected)
	v.OnEvent(domain.OfferEvent{Type: domain.EventOfferCreated, Offer: mkOffer(9, 1)})
	v.OnEvent(domain.OfferEvent{Type: domain.EventOfferDeleted, ID: 1})
	v.OnEvent(domain.OfferEvent{Type: "OFFER_MOVED"})

	require.Eventually(t, func() bool {
		st := v.State()
		return len(st.BySession[1]) == 1 && st.BySession[1][0] == 9
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "connected", v.State().Connection)
	require.NoError(t, v.State().Validate())
}

func TestViewerReloadsAfterReconnect(t *testing.T) {
	f := &scriptedFetcher{responses: []func(int64) (domain.TradingSession, error){
		sessionWith(mkOffer(1, 1), mkOffer(2, 1)),
		sessionWith(mkOffer(2, 1), mkOffer(5, 1)),
	}}
	v := runViewer(t, f)
	v.EnterSession(1)
	require.Eventually(t, func() bool { return v.State().IsSessionLoaded(1) }, time.Second, 5*time.Millisecond)

	v.OnReconnected()
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]int64{2, 5}, v.State().BySession[1])
	}, time.Second, 5*time.Millisecond)

	st := v.State()
	assert.NotContains(t, st.Offers, int64(1), "resync supersedes local state")
	assert.Equal(t, 2, f.callCount())
}

func TestViewerMapsNotFound(t *testing.T) {
	f := &scriptedFetcher{responses: []func(int64) (domain.TradingSession, error){
		func(int64) (domain.TradingSession, error) {
			return domain.TradingSession{}, fmt.Errorf("viewer: fetch session 7: %w", domain.ErrNotFound)
		},
	}}
	v := runViewer(t, f)
	v.EnterSession(7)

	require.Eventually(t, func() bool { return v.State().Error != "" }, time.Second, 5*time.Millisecond)
	st := v.State()
	assert.Equal(t, "Session not found", st.Error)
	assert.False(t, st.Loading)
}

func TestViewerCallbacksDoNotBlockAfterStop(t *testing.T) {
	v := New(&scriptedFetcher{}, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, v.Run(ctx), context.Canceled)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < inboxSize+10; i++ {
			v.OnEvent(domain.OfferEvent{Type: domain.EventOfferDeleted, ID: int64(i)})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener callback blocked after viewer stopped")
	}
}

func TestHTTPSessionClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/sessions/1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":1,"name":"Morning Session","status":"active","offers":[{"id":3,"tradingSessionId":1,"product":"Gold","price":2000,"volume":100,"updatedAt":"2026-02-11T09:25:00Z"}]}`))
		case "/api/sessions":
			_, _ = w.Write([]byte(`[{"id":1,"name":"Morning Session"},{"id":2,"name":"Afternoon Session"}]`))
		case "/api/sessions/2":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewHTTPSessionClient(srv.URL+"/", time.Second)
	ctx := context.Background()

	sess, err := c.FetchSession(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusActive, sess.Status)
	require.Len(t, sess.Offers, 1)
	assert.True(t, sess.Offers[0].Price.Equal(decimal.NewFromInt(2000)))

	list, err := c.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = c.FetchSession(ctx, 99)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = c.FetchSession(ctx, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
