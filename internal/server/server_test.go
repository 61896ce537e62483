package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/offerstream/internal/domain"
	"github.com/alanyoungcy/offerstream/internal/offer"
	"github.com/alanyoungcy/offerstream/internal/server/handler"
	"github.com/alanyoungcy/offerstream/internal/server/ws"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type denyAll struct{}

func (denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }

func newTestServer(t *testing.T, limiter domain.RateLimiter) (*httptest.Server, *offer.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hub := ws.NewHub(logger, ws.Config{})
	store := offer.NewStore(offer.WithPublisher(hub))
	store.Initialize(domain.SeedOffers())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()

	srv := NewServer(Config{RateLimit: 5, RateLimitWindow: time.Second}, Handlers{
		Health:   handler.NewHealthHandler(hub, store, logger),
		Sessions: handler.NewSessionHandler(domain.SeedSessions(), store, logger),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}),
		Limiter: limiter,
	}, hub, logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		cancel()
		<-done
		ts.Close()
	})
	return ts, store
}

func TestServerPushesStoreMutations(t *testing.T) {
	ts, store := newTestServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/api/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return body["clients"] == float64(1)
	}, time.Second, 10*time.Millisecond)

	require.True(t, store.Delete(2))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	ev, err := domain.DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, domain.EventOfferDeleted, ev.Type)
	assert.Equal(t, int64(2), ev.ID)

	resp, err := http.Get(ts.URL + "/api/sessions/1")
	require.NoError(t, err)
	defer resp.Body.Close()
	var sess domain.TradingSession
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	assert.Len(t, sess.Offers, 2)
}

func TestServerRateLimitsReadAPIOnly(t *testing.T) {
	ts, _ := newTestServer(t, denyAll{})

	resp, err := http.Get(ts.URL + "/api/sessions")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	for _, path := range []string{"/api/health", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

type countingTrigger struct{ n int }

func (c *countingTrigger) Trigger() bool {
	c.n++
	return true
}

func TestServerStatusAndSnapshotRoutes(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := ws.NewHub(logger, ws.Config{})
	store := offer.NewStore()
	trig := &countingTrigger{}

	srv := NewServer(Config{AdminToken: "ops"}, Handlers{
		Health:    handler.NewHealthHandler(hub, store, logger),
		Sessions:  handler.NewSessionHandler(domain.SeedSessions(), store, logger),
		Status:    handler.NewStatusHandler("full", []string{"redis"}, true),
		Snapshots: handler.NewPipelineHandler(trig, logger),
	}, hub, logger)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	var status map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, "full", status["mode"])
	assert.Equal(t, []any{"redis"}, status["sinks"])

	resp, err = http.Get(ts.URL + "/api/snapshots/trigger")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/snapshots/trigger", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, trig.n)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/snapshots/trigger", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer ops")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, trig.n)
}
