package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/offerstream/internal/domain"
	"github.com/alanyoungcy/offerstream/internal/metrics"
)

const (
	archiveLockKey = "pipeline:archive"
	archiveLockTTL = 30 * time.Minute
)

// JournalArchive uploads journal rows older than a cutoff.
type JournalArchive interface {
	ArchiveJournal(ctx context.Context, before time.Time) (int64, error)
}

// JournalPruner deletes journal rows older than a cutoff.
type JournalPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver moves journal rows past the retention window to cold storage and
// prunes them from the database once the upload succeeded.
type Archiver struct {
	archive   JournalArchive
	pruner    JournalPruner
	retention time.Duration
	alerter   Alerter
	lock      domain.JobLock
	now       func() time.Time
	logger    *slog.Logger
}

// NewArchiver creates a new Archiver. pruner may be nil to keep archived rows.
func NewArchiver(archive JournalArchive, pruner JournalPruner, retention time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		archive:   archive,
		pruner:    pruner,
		retention: retention,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "journal_archiver")),
	}
}

// SetLock makes every run take a shared lease first, so servers sharing one
// journal archive it once. A run that finds the lease held is skipped.
func (a *Archiver) SetLock(l domain.JobLock) {
	a.lock = l
}

// Run executes a single archive run for rows older than the retention.
func (a *Archiver) Run(ctx context.Context) error {
	if a.lock != nil {
		release, err := a.lock.Acquire(ctx, archiveLockKey, archiveLockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			metrics.PipelineRuns.WithLabelValues("archive", "skipped").Inc()
			a.logger.InfoContext(ctx, "pipeline: archive run skipped, lease held elsewhere")
			return nil
		}
		if err != nil {
			metrics.PipelineRuns.WithLabelValues("archive", "error").Inc()
			return fmt.Errorf("pipeline: archive lease: %w", err)
		}
		defer release()
	}

	cutoff := a.now().UTC().Add(-a.retention)
	a.logger.InfoContext(ctx, "pipeline: archive run starting",
		slog.Time("cutoff", cutoff),
		slog.Duration("retention", a.retention),
	)

	archived, err := a.archive.ArchiveJournal(ctx, cutoff)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("archive", "error").Inc()
		return fmt.Errorf("pipeline: archive journal before %v: %w", cutoff, err)
	}

	var pruned int64
	if archived > 0 && a.pruner != nil {
		pruned, err = a.pruner.DeleteBefore(ctx, cutoff)
		if err != nil {
			metrics.PipelineRuns.WithLabelValues("archive", "error").Inc()
			return fmt.Errorf("pipeline: prune journal before %v: %w", cutoff, err)
		}
	}

	metrics.PipelineRuns.WithLabelValues("archive", "ok").Inc()
	a.logger.InfoContext(ctx, "pipeline: archive run complete",
		slog.Int64("archived", archived),
		slog.Int64("pruned", pruned),
	)
	return nil
}

// RunCron runs the archiver on a cron schedule until the context is cancelled.
// Example: "0 3 * * *" runs at 3:00 AM UTC every day.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	sched, err := parseSchedule(cronExpr)
	if err != nil {
		return fmt.Errorf("pipeline: parse cron %q: %w", cronExpr, err)
	}

	for {
		next, err := nextRun(sched, a.now().UTC())
		if err != nil {
			return fmt.Errorf("pipeline: cron %q: %w", cronExpr, err)
		}

		wait := time.Until(next)
		a.logger.DebugContext(ctx, "pipeline: archiver waiting",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "pipeline: archive run failed", slog.String("error", err.Error()))
				if a.alerter != nil {
					a.alerter.JobFailed(ctx, "archive", err)
				}
			}
		}
	}
}

// parseSchedule parses a standard 5-field expression or a descriptor such as
// "@daily".
func parseSchedule(expr string) (cron.Schedule, error) {
	return cron.ParseStandard(expr)
}

// nextRun returns the first activation strictly after t. A schedule that can
// never fire, such as February 31st, is an error.
func nextRun(sched cron.Schedule, t time.Time) (time.Time, error) {
	next := sched.Next(t)
	if next.IsZero() {
		return time.Time{}, errors.New("schedule never fires")
	}
	return next, nil
}
