package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	name string
	err  error

	mu     sync.Mutex
	alerts []Alert
}

func (s *recordingSender) Send(_ context.Context, a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func TestNotifyFiltersEvents(t *testing.T) {
	rec := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{rec}, []string{" archive_failed "}, 0, discardLogger())

	require.NoError(t, n.Notify(context.Background(), Alert{Event: EventSnapshotFailed}))
	require.NoError(t, n.Notify(context.Background(), Alert{Event: EventArchiveFailed}))

	require.Len(t, rec.alerts, 1)
	assert.Equal(t, EventArchiveFailed, rec.alerts[0].Event)
	assert.False(t, rec.alerts[0].At.IsZero(), "missing timestamps are filled in")
}

func TestNotifyCooldown(t *testing.T) {
	rec := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{rec}, nil, time.Minute, discardLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, n.Notify(ctx, Alert{Event: EventSnapshotFailed}))
	require.NoError(t, n.Notify(ctx, Alert{Event: EventSnapshotFailed}))
	require.NoError(t, n.Notify(ctx, Alert{Event: EventArchiveFailed}), "cooldown is per event")
	assert.Len(t, rec.alerts, 2)

	now = now.Add(time.Minute)
	require.NoError(t, n.Notify(ctx, Alert{Event: EventSnapshotFailed}))
	assert.Len(t, rec.alerts, 3)
}

func TestNotifyJoinsSenderErrors(t *testing.T) {
	boom := errors.New("webhook down")
	bad := &recordingSender{name: "bad", err: boom}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, 0, discardLogger())

	err := n.Notify(context.Background(), Alert{Event: EventSnapshotFailed})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "bad:")
	assert.Len(t, good.alerts, 1, "one failing sender does not block the rest")
}

func TestJobFailed(t *testing.T) {
	rec := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{rec}, nil, 0, discardLogger())

	n.JobFailed(context.Background(), "snapshot", errors.New("bucket gone"))
	require.Len(t, rec.alerts, 1)
	assert.Equal(t, EventSnapshotFailed, rec.alerts[0].Event)
	assert.Equal(t, "bucket gone", rec.alerts[0].Detail)
}

func TestDiscordSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := NewDiscordSender(srv.URL).Send(context.Background(), Alert{Title: "snap", Detail: "failed", At: at})
	require.NoError(t, err)
	assert.Equal(t, "**snap**\nfailed\n`2026-03-01T12:00:00Z`", got["content"])
}

func TestTelegramSenderStatusError(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		http.Error(w, "chat not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.baseURL = srv.URL
	err := s.Send(context.Background(), Alert{Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram: unexpected status 400")
	assert.Equal(t, "/bottok/sendMessage", path)
}

func TestSenders(t *testing.T) {
	assert.Empty(t, Senders("", "", ""))
	got := Senders("https://hook", "tok", "1")
	require.Len(t, got, 2)
	assert.Equal(t, "discord", got[0].Name())
	assert.Equal(t, "telegram", got[1].Name())
}
