package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/tradelane/bolindexer/internal/blob/s3"
	"github.com/tradelane/bolindexer/internal/indexer"
	"github.com/tradelane/bolindexer/internal/server"
	"github.com/tradelane/bolindexer/internal/server/handler"
	"github.com/tradelane/bolindexer/internal/server/ws"
	"github.com/tradelane/bolindexer/internal/service"
)

// IndexerMode runs only the chain poll loop.
func (a *App) IndexerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting indexer mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startIndexer(ctx, g, deps)
	return g.Wait()
}

// ServerMode runs only the HTTP/WebSocket API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the poll loop and the API in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startIndexer(ctx, g, deps)
	a.startServer(ctx, g, deps)
	return g.Wait()
}

// startIndexer builds the poll pipeline and launches it on g.
func (a *App) startIndexer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	decoder := indexer.NewDecoder(deps.Registry)
	discovery := indexer.NewDiscovery(deps.ChainClient, deps.Registry, decoder, a.logger)
	fetcher := indexer.NewFetcher(deps.ChainClient, deps.Registry, decoder, a.logger)
	handlers := indexer.NewHandlers(deps.StateReader, a.logger)

	var notifiers indexer.Notifiers
	if deps.SignalBus != nil {
		notifiers = append(notifiers, indexer.NewBusNotifier(deps.SignalBus, a.logger))
	}
	if deps.LadingCache != nil {
		notifiers = append(notifiers, indexer.NewCacheNotifier(deps.LadingCache, a.logger))
	}
	if deps.BlobWriter != nil {
		archiver := s3blob.NewEventArchiver(deps.BlobWriter, s3blob.EventArchiverConfig{
			Prefix:        a.cfg.S3.ArchivePrefix,
			FlushCount:    a.cfg.S3.ArchiveFlushCount,
			FlushInterval: a.cfg.S3.ArchiveFlushInterval.Duration,
		}, a.logger)
		notifiers = append(notifiers, archiver)
		g.Go(func() error {
			return archiver.Run(ctx)
		})
	}

	var notify indexer.Notifier
	if len(notifiers) > 0 {
		notify = notifiers
	}

	poller := indexer.NewPoller(
		deps.ChainClient, discovery, fetcher, handlers, deps.Store, notify,
		indexer.Config{
			BatchSize:     a.cfg.Indexer.BatchSize,
			PollInterval:  a.cfg.Indexer.PollInterval.Duration,
			ErrorInterval: a.cfg.Indexer.ErrorInterval.Duration,
			SafetyMargin:  a.cfg.Indexer.SafetyMargin,
			CursorName:    a.cfg.Indexer.CursorName,
			Fanout:        a.cfg.Indexer.Fanout,
		},
		a.logger,
	)
	g.Go(func() error {
		return poller.Run(ctx)
	})
}

// startServer builds the query service, handlers, and WebSocket hub, and
// launches the HTTP server on g with graceful shutdown tied to ctx.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	ladingSvc := service.NewLadingService(
		deps.Store.Ladings(), deps.Store.Offers(), deps.LadingCache, a.logger,
	)

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.cfg.Mode, a.logger),
		Ladings: handler.NewLadingHandler(ladingSvc, a.logger),
		Offers:  handler.NewOfferHandler(ladingSvc, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.cfg.S3.ArchivePrefix, a.logger)
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.cfg.Server.CORSOrigins, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	})
}
