package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/resolvd/resolvd/internal/domain"
	"github.com/resolvd/resolvd/internal/notify"
	"github.com/resolvd/resolvd/internal/server"
	"github.com/resolvd/resolvd/internal/server/handler"
	"github.com/resolvd/resolvd/internal/server/ws"
	"github.com/resolvd/resolvd/internal/service"
)

// ServeMode runs the full stack: postgres stores, redis cache/locks/bus, the
// HTTP API, the WebSocket hub, notifications, and (when S3 is enabled) the
// background archive sweep.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	svc := a.buildService(deps).
		WithCache(deps.PoolCache).
		WithBus(deps.SignalBus).
		WithLockManager(deps.LockManager)
	if deps.Oracle != nil {
		svc.WithOracle(deps.Oracle)
	}

	// WebSocket hub bridging the signal bus to connected clients.
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	// Notification watcher.
	watcher := notify.NewWatcher(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error {
		return watcher.Run(ctx)
	})

	// Background archive sweep.
	if deps.Archiver != nil && a.cfg.Archive.Interval.Duration > 0 {
		g.Go(func() error {
			return a.archiveLoop(ctx, deps.Archiver)
		})
	}

	a.startServer(ctx, g, svc, hub, deps.RateLimiter)

	return g.Wait()
}

// StandaloneMode runs a single-process instance backed by in-memory stores,
// with no redis or object storage. Useful for demos and local development.
func (a *App) StandaloneMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting standalone mode")

	g, ctx := errgroup.WithContext(ctx)

	svc := a.buildService(deps)
	if deps.Oracle != nil {
		svc.WithOracle(deps.Oracle)
	}

	a.startServer(ctx, g, svc, nil, nil)

	return g.Wait()
}

// ArchiveMode performs a single archive sweep over pools finalized before the
// retention cutoff, then exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: s3 is not configured")
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
	a.logger.InfoContext(ctx, "starting archive sweep",
		slog.Time("cutoff", cutoff),
	)

	n, err := deps.Archiver.ArchivePools(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}

	a.logger.InfoContext(ctx, "archive sweep complete",
		slog.Int64("pools_archived", n),
	)
	return nil
}

// buildService constructs the pool service over the wired stores.
func (a *App) buildService(deps *Dependencies) *service.PoolService {
	return service.NewPoolService(
		deps.PoolStore,
		deps.StakeStore,
		deps.AuditStore,
		domain.SystemClock(),
		domain.IDFunc(uuid.NewString),
		a.logger,
	)
}

// startServer adds the HTTP server goroutine plus its graceful shutdown
// goroutine to the given errgroup.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, svc *service.PoolService, hub *ws.Hub, limiter domain.RateLimiter) {
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:      handler.NewHealthHandler(a.logger),
		Pools:       handler.NewPoolHandler(svc, a.logger),
		Stakes:      handler.NewStakeHandler(svc, a.logger),
		Settlements: handler.NewSettlementHandler(svc, a.logger),
	}, hub, limiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// archiveLoop periodically sweeps fully settled pools into cold storage.
func (a *App) archiveLoop(ctx context.Context, archiver domain.Archiver) error {
	interval := a.cfg.Archive.Interval.Duration
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
			n, err := archiver.ArchivePools(ctx, cutoff)
			if err != nil {
				a.logger.WarnContext(ctx, "archive sweep failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "archive sweep complete",
					slog.Int64("pools_archived", n),
				)
			}
		}
	}
}
