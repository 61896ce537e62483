package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/offerstream/internal/domain"
	"github.com/alanyoungcy/offerstream/internal/metrics"
)

// OfferSource provides the offers to export.
type OfferSource interface {
	GetAll() []domain.Offer
}

// SnapshotUploader writes an offer snapshot to object storage and returns
// the key it used.
type SnapshotUploader interface {
	ExportSnapshot(ctx context.Context, offers []domain.Offer, at time.Time) (string, error)
}

// SnapshotExporter periodically uploads the full offer set.
type SnapshotExporter struct {
	source   OfferSource
	uploader SnapshotUploader
	interval time.Duration
	trigger  chan struct{}
	alerter  Alerter
	now      func() time.Time
	logger   *slog.Logger
}

// NewSnapshotExporter creates a SnapshotExporter. A non-positive interval
// defaults to five minutes.
func NewSnapshotExporter(source OfferSource, uploader SnapshotUploader, interval time.Duration, logger *slog.Logger) *SnapshotExporter {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SnapshotExporter{
		source:   source,
		uploader: uploader,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		now:      time.Now,
		logger:   logger.With(slog.String("component", "snapshot_exporter")),
	}
}

// RunOnce exports the current offer set.
func (e *SnapshotExporter) RunOnce(ctx context.Context) (string, error) {
	offers := e.source.GetAll()
	path, err := e.uploader.ExportSnapshot(ctx, offers, e.now().UTC())
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("snapshot", "error").Inc()
		return "", fmt.Errorf("pipeline: export snapshot: %w", err)
	}
	metrics.PipelineRuns.WithLabelValues("snapshot", "ok").Inc()
	e.logger.InfoContext(ctx, "pipeline: snapshot exported",
		slog.String("path", path),
		slog.Int("offers", len(offers)),
	)
	return path, nil
}

// Trigger requests an export ahead of the next tick. It returns false when a
// request is already pending.
func (e *SnapshotExporter) Trigger() bool {
	select {
	case e.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run exports on every interval tick and on every Trigger until ctx is
// cancelled. Failed exports are logged and retried on the next tick.
func (e *SnapshotExporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.trigger:
			e.runLogged(ctx)
		case <-ticker.C:
			e.runLogged(ctx)
		}
	}
}

func (e *SnapshotExporter) runLogged(ctx context.Context) {
	if _, err := e.RunOnce(ctx); err != nil {
		e.logger.ErrorContext(ctx, "pipeline: snapshot failed", slog.String("error", err.Error()))
		if e.alerter != nil {
			e.alerter.JobFailed(ctx, "snapshot", err)
		}
	}
}
