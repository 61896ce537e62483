// Package notify delivers operator alerts to chat webhooks. Alerts can be
// filtered by event and repeats of the same event are held back for a
// cooldown so a failing job that retries every few minutes does not flood
// the channel.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Alert events raised by the export pipeline.
const (
	EventSnapshotFailed = "snapshot_failed"
	EventArchiveFailed  = "archive_failed"
)

// Alert is a single notification.
type Alert struct {
	Event  string
	Title  string
	Detail string
	At     time.Time
}

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, a Alert) error
	Name() string
}

// Notifier fans alerts out to every Sender.
type Notifier struct {
	senders  []Sender
	events   map[string]bool
	cooldown time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu   sync.Mutex
	last map[string]time.Time
}

// NewNotifier creates a Notifier. An empty events list lets every event
// through; a zero cooldown disables suppression.
func NewNotifier(senders []Sender, events []string, cooldown time.Duration, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders:  senders,
		events:   allowed,
		cooldown: cooldown,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "notifier")),
		last:     make(map[string]time.Time),
	}
}

// Notify delivers a to every sender unless the event is filtered out or
// still cooling down. A failing sender does not stop delivery to the others;
// their errors are joined.
func (n *Notifier) Notify(ctx context.Context, a Alert) error {
	if len(n.events) > 0 && !n.events[a.Event] {
		n.logger.DebugContext(ctx, "notify: event filtered out", slog.String("event", a.Event))
		return nil
	}
	if a.At.IsZero() {
		a.At = n.now().UTC()
	}
	if !n.admit(a.Event, a.At) {
		n.logger.DebugContext(ctx, "notify: event cooling down", slog.String("event", a.Event))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, a); err != nil {
			n.logger.ErrorContext(ctx, "notify: sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notify: alert sent",
			slog.String("sender", s.Name()),
			slog.String("event", a.Event),
		)
	}
	return errors.Join(errs...)
}

// JobFailed raises the failure alert for a pipeline job. Delivery errors are
// logged only.
func (n *Notifier) JobFailed(ctx context.Context, job string, err error) {
	_ = n.Notify(ctx, Alert{
		Event:  job + "_failed",
		Title:  "offerstream: " + job + " failed",
		Detail: err.Error(),
	})
}

func (n *Notifier) admit(event string, at time.Time) bool {
	if n.cooldown <= 0 {
		return true
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if prev, ok := n.last[event]; ok && at.Sub(prev) < n.cooldown {
		return false
	}
	n.last[event] = at
	return true
}

// Senders builds the senders that have credentials. Empty arguments skip
// the corresponding channel.
func Senders(discordWebhook, telegramToken, telegramChatID string) []Sender {
	var out []Sender
	if discordWebhook != "" {
		out = append(out, NewDiscordSender(discordWebhook))
	}
	if telegramToken != "" {
		out = append(out, NewTelegramSender(telegramToken, telegramChatID))
	}
	return out
}
