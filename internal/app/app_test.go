package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/offerstream/internal/cache/redis"
	"github.com/alanyoungcy/offerstream/internal/config"
	"github.com/alanyoungcy/offerstream/internal/domain"
	"github.com/alanyoungcy/offerstream/internal/offer"
	"github.com/alanyoungcy/offerstream/internal/store/postgres"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testApp(mutate func(*config.Config)) *App {
	cfg := config.Defaults()
	if mutate != nil {
		mutate(&cfg)
	}
	return New(&cfg, discardLogger())
}

type nopBus struct{}

func (nopBus) Publish(context.Context, string, []byte) error { return nil }
func (nopBus) StreamAppend(context.Context, string, []byte) error { return nil }

type nopWriter struct{}

func (nopWriter) Put(context.Context, string, io.Reader, string) error { return nil }
func (nopWriter) PutMultipart(context.Context, string, io.Reader, int64) error { return nil }

func TestSinksOnlyIncludesWired(t *testing.T) {
	deps := &Dependencies{}
	assert.Empty(t, deps.Sinks())

	deps.Relay = redis.NewOfferRelay(nopBus{}, "", "")
	deps.Journal = postgres.NewEventJournal(nil)
	sinks := deps.Sinks()
	require.Len(t, sinks, 2)
	assert.Equal(t, "redis", sinks[0].Name())
	assert.Equal(t, "postgres", sinks[1].Name())
}

func TestSessionCatalog(t *testing.T) {
	got := sessionCatalog([]int64{2, 9})
	require.Len(t, got, 2)
	assert.Equal(t, "Afternoon Session", got[0].Name)
	assert.Equal(t, int64(9), got[1].ID)
	assert.Equal(t, "Session 9", got[1].Name)
	assert.Equal(t, domain.SessionStatusActive, got[1].Status)
}

func TestLocalServerURL(t *testing.T) {
	a := testApp(nil)
	assert.Equal(t, "http://127.0.0.1:5160", a.localServerURL())

	a = testApp(func(c *config.Config) {
		c.Server.Host = "10.0.0.5"
		c.Server.Port = 8081
	})
	assert.Equal(t, "http://10.0.0.5:8081", a.localServerURL())
}

func TestBuildPipeline(t *testing.T) {
	store := offer.NewStore()

	a := testApp(func(c *config.Config) { c.Snapshot.Enabled = true })
	orch, snaps := a.buildPipeline(&Dependencies{}, store)
	assert.Nil(t, orch, "no blob writer, no pipeline")
	assert.Nil(t, snaps)

	orch, snaps = a.buildPipeline(&Dependencies{BlobWriter: nopWriter{}}, store)
	assert.NotNil(t, orch)
	assert.NotNil(t, snaps)

	a = testApp(func(c *config.Config) {
		c.Snapshot.Enabled = true
		c.Notify.Enabled = true
		c.Notify.DiscordWebhook = "http://127.0.0.1:1/hook"
	})
	orch, _ = a.buildPipeline(&Dependencies{BlobWriter: nopWriter{}}, store)
	assert.NotNil(t, orch, "alerting does not change which jobs run")

	a = testApp(func(c *config.Config) { c.Snapshot.ArchiveEnabled = true })
	orch, snaps = a.buildPipeline(&Dependencies{BlobWriter: nopWriter{}}, store)
	assert.Nil(t, orch, "archiving needs the journal")
	assert.Nil(t, snaps)
}

func TestServerModeStopsOnCancel(t *testing.T) {
	a := testApp(func(c *config.Config) {
		c.Server.Host = "127.0.0.1"
		c.Server.Port = 0
	})
	deps := &Dependencies{Registry: prometheus.NewRegistry()}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.ServerMode(ctx, deps) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(3 * time.Second):
		t.Fatal("server mode did not stop")
	}
}
