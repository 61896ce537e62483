package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/offerstream/internal/blob/s3"
	"github.com/alanyoungcy/offerstream/internal/client"
	"github.com/alanyoungcy/offerstream/internal/domain"
	"github.com/alanyoungcy/offerstream/internal/metrics"
	"github.com/alanyoungcy/offerstream/internal/notify"
	"github.com/alanyoungcy/offerstream/internal/offer"
	"github.com/alanyoungcy/offerstream/internal/pipeline"
	"github.com/alanyoungcy/offerstream/internal/server"
	"github.com/alanyoungcy/offerstream/internal/server/handler"
	"github.com/alanyoungcy/offerstream/internal/server/ws"
	"github.com/alanyoungcy/offerstream/internal/viewer"
)

const summaryTopOffers = 5

// ServerMode hosts the offer store, the generation loop, the HTTP read API
// and the push channel, plus any configured sinks and export jobs.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	return g.Wait()
}

// ViewerMode follows a remote server with a local replica.
func (a *App) ViewerMode(ctx context.Context) error {
	a.logger.InfoContext(ctx, "app: starting viewer mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startViewer(ctx, g, a.cfg.Client.ServerURL); err != nil {
		return err
	}
	return g.Wait()
}

// FullMode runs the server and a viewer pointed at it in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	if err := a.startViewer(ctx, g, a.localServerURL()); err != nil {
		return err
	}
	return g.Wait()
}

// startServer adds the store, loop, hub, HTTP server and pipeline goroutines
// to g.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	cfg := a.cfg

	store := offer.NewStore()
	if cfg.Generator.SeedData {
		store.Initialize(domain.SeedOffers())
	}
	metrics.StoreOffers.Set(float64(store.Len()))

	hub := ws.NewHub(a.logger, ws.Config{
		QueueSize:      cfg.Broadcast.QueueSize,
		SendBufferSize: cfg.Broadcast.SendBufferSize,
		SinkQueueSize:  cfg.Broadcast.SinkQueueSize,
		SinkTimeout:    cfg.Broadcast.SinkTimeout.Duration,
	}, deps.Sinks()...)
	store.SetPublisher(hub)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	sessionIDs := cfg.Generator.SessionIDs
	if len(sessionIDs) == 0 {
		sessionIDs = offer.DefaultSessionIDs
	}
	if cfg.Generator.Enabled {
		var opts []offer.GeneratorOption
		if cfg.Generator.RandomSeed != 0 {
			opts = append(opts, offer.WithSeed(cfg.Generator.RandomSeed))
		}
		loop := offer.NewLoop(store, offer.NewGenerator(sessionIDs, opts...), offer.LoopConfig{
			MinInterval:          cfg.Generator.MinInterval.Duration,
			MaxInterval:          cfg.Generator.MaxInterval.Duration,
			RecoveryDelay:        cfg.Generator.RecoveryDelay.Duration,
			MaxChangesPerSession: cfg.Generator.MaxChangesPerSession,
		}, a.logger)
		g.Go(func() error {
			return loop.Run(ctx)
		})
	}

	orch, snapshots := a.buildPipeline(deps, store)
	if orch != nil {
		g.Go(func() error {
			return orch.Run(ctx)
		})
	}

	sinks := deps.Sinks()
	sinkNames := make([]string, 0, len(sinks))
	for _, s := range sinks {
		sinkNames = append(sinkNames, s.Name())
	}

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(hub, store, a.logger),
		Sessions: handler.NewSessionHandler(sessionCatalog(sessionIDs), store, a.logger),
		Status:   handler.NewStatusHandler(cfg.Mode, sinkNames, snapshots != nil),
		Metrics:  metrics.Handler(deps.Registry),
	}
	if snapshots != nil {
		handlers.Snapshots = handler.NewPipelineHandler(snapshots, a.logger)
	}
	if deps.Journal != nil {
		handlers.Events = handler.NewEventsHandler(deps.Journal, a.logger)
	}
	if deps.RateLimiter != nil {
		handlers.Limiter = deps.RateLimiter
	}

	srv := server.NewServer(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		CORSOrigins:     cfg.Server.CORSOrigins,
		RateLimit:       cfg.Server.RateLimit,
		RateLimitWindow: cfg.Server.RateLimitWindow.Duration,
		AdminToken:      cfg.Server.AdminToken,
	}, handlers, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// buildPipeline assembles the export jobs that the configuration enables and
// the wired dependencies support. The orchestrator is nil when no job can
// run; the exporter is also returned so the API can trigger it.
func (a *App) buildPipeline(deps *Dependencies, store *offer.Store) (*pipeline.Orchestrator, *pipeline.SnapshotExporter) {
	if deps.BlobWriter == nil {
		return nil, nil
	}

	// A nil *EventJournal must not reach the JournalSource interface.
	var archive *s3blob.Archiver
	if deps.Journal != nil {
		archive = s3blob.NewArchiver(deps.BlobWriter, deps.Journal)
	} else {
		archive = s3blob.NewArchiver(deps.BlobWriter, nil)
	}

	var snapshots *pipeline.SnapshotExporter
	if a.cfg.Snapshot.Enabled {
		snapshots = pipeline.NewSnapshotExporter(store, archive, a.cfg.Snapshot.Interval.Duration, a.logger)
	}

	var journalArchiver *pipeline.Archiver
	if a.cfg.Snapshot.ArchiveEnabled && deps.Journal != nil {
		journalArchiver = pipeline.NewArchiver(archive, deps.Journal, a.cfg.Snapshot.ArchiveRetention.Duration, a.logger)
		if deps.JobLock != nil {
			journalArchiver.SetLock(deps.JobLock)
		}
	}

	if snapshots == nil && journalArchiver == nil {
		return nil, nil
	}
	orch := pipeline.NewOrchestrator(snapshots, journalArchiver, a.cfg.Snapshot.ArchiveCron, a.logger)
	if nc := a.cfg.Notify; nc.Enabled {
		senders := notify.Senders(nc.DiscordWebhook, nc.TelegramToken, nc.TelegramChatID)
		orch.SetAlerter(notify.NewNotifier(senders, nc.Events, nc.Cooldown.Duration, a.logger))
	}
	return orch, snapshots
}

// startViewer adds the viewer, the connection manager and the periodic
// summary to g. serverURL is the HTTP base of the server to follow.
func (a *App) startViewer(ctx context.Context, g *errgroup.Group, serverURL string) error {
	cc := a.cfg.Client
	cc.ServerURL = serverURL
	if a.cfg.RunsServer() {
		cc.WSURL = ""
	}
	pushURL, err := cc.PushURL()
	if err != nil {
		return fmt.Errorf("app: viewer: %w", err)
	}

	v := viewer.New(viewer.NewHTTPSessionClient(serverURL, cc.HTTPTimeout.Duration), a.logger)
	mgr := client.NewManager(
		&client.WebSocketDialer{URL: pushURL, HandshakeTimeout: cc.DialTimeout.Duration},
		v,
		client.Options{
			BaseDelay:   cc.BaseDelay.Duration,
			MaxDelay:    cc.MaxDelay.Duration,
			MaxAttempts: cc.MaxAttempts,
			DialTimeout: cc.DialTimeout.Duration,
		},
		a.logger,
	)

	a.logger.InfoContext(ctx, "app: viewer following server",
		slog.String("viewer_id", v.ID()),
		slog.String("server", serverURL),
		slog.String("push", pushURL),
	)

	g.Go(func() error {
		return v.Run(ctx)
	})
	v.EnterSession(cc.InitialSession)

	g.Go(func() error {
		if err := a.connectWithRetry(ctx, mgr); err != nil {
			return err
		}
		<-ctx.Done()
		if err := mgr.Stop(); err != nil {
			a.logger.Warn("app: viewer stop", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})

	g.Go(func() error {
		interval := cc.SummaryInterval.Duration
		if interval <= 0 {
			interval = 5 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				v.LogSummary(summaryTopOffers)
			}
		}
	})
	return nil
}

// connectWithRetry performs the initial connection. The manager only
// reconnects after losing an established channel, so a server that is not up
// yet is retried here on the same delay schedule.
func (a *App) connectWithRetry(ctx context.Context, mgr *client.Manager) error {
	for attempt := 0; ; attempt++ {
		err := mgr.Start(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, domain.ErrStopped) {
			return err
		}

		delay := client.Delay(attempt)
		a.logger.WarnContext(ctx, "app: viewer connect failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// localServerURL is the address a co-hosted viewer uses to reach the server.
func (a *App) localServerURL() string {
	host := a.cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(a.cfg.Server.Port))
}

// sessionCatalog returns the seed sessions for ids it knows and a plain
// active session for any other configured id.
func sessionCatalog(ids []int64) []domain.TradingSession {
	seeds := make(map[int64]domain.TradingSession)
	for _, s := range domain.SeedSessions() {
		seeds[s.ID] = s
	}

	out := make([]domain.TradingSession, 0, len(ids))
	for _, id := range ids {
		if s, ok := seeds[id]; ok {
			out = append(out, s)
			continue
		}
		out = append(out, domain.TradingSession{
			ID:       id,
			Name:     fmt.Sprintf("Session %d", id),
			Status:   domain.SessionStatusActive,
			Products: []string{},
		})
	}
	return out
}
