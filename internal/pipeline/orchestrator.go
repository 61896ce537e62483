// Package pipeline runs the background export jobs: periodic offer snapshots
// and journal archival to object storage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Alerter is told about job runs that failed.
type Alerter interface {
	JobFailed(ctx context.Context, job string, err error)
}

// Orchestrator runs the configured pipeline jobs side by side.
type Orchestrator struct {
	snapshots   *SnapshotExporter
	archiver    *Archiver
	archiveCron string
	logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator. Either job may be nil to leave it
// disabled.
func NewOrchestrator(snapshots *SnapshotExporter, archiver *Archiver, archiveCron string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		snapshots:   snapshots,
		archiver:    archiver,
		archiveCron: archiveCron,
		logger:      logger.With(slog.String("component", "pipeline")),
	}
}

// SetAlerter routes failed runs of every job to al.
func (o *Orchestrator) SetAlerter(al Alerter) {
	if o.snapshots != nil {
		o.snapshots.alerter = al
	}
	if o.archiver != nil {
		o.archiver.alerter = al
	}
}

// Run starts every enabled job in an errgroup and blocks until ctx is
// cancelled or a job fails. Cancellation is a clean stop and returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if o.snapshots != nil {
		g.Go(func() error {
			o.logger.InfoContext(ctx, "pipeline: snapshot exporter started",
				slog.Duration("interval", o.snapshots.interval),
			)
			return clean(ctx, "snapshot exporter", o.snapshots.Run(ctx))
		})
	}

	if o.archiver != nil {
		g.Go(func() error {
			o.logger.InfoContext(ctx, "pipeline: journal archiver started",
				slog.String("cron", o.archiveCron),
			)
			return clean(ctx, "journal archiver", o.archiver.RunCron(ctx, o.archiveCron))
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline: stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline: stopped")
	return nil
}

func clean(ctx context.Context, job string, err error) error {
	if err == nil || (ctx.Err() != nil && errors.Is(err, ctx.Err())) {
		return nil
	}
	return fmt.Errorf("%s: %w", job, err)
}
