// Command server runs the messaging API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dancemarket/messaging/api"
	"github.com/dancemarket/messaging/api/validator"
	"github.com/dancemarket/messaging/config"
	"github.com/dancemarket/messaging/eventbus"
	"github.com/dancemarket/messaging/observability"
	"github.com/dancemarket/messaging/postgres"
	"github.com/dancemarket/messaging/redis"
	"github.com/dancemarket/messaging/store"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := eventbus.New()
	defer bus.Close()

	db, closeDB, err := openDB(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	feed, closeFeed, err := openFeed(ctx, cfg, bus, logger)
	if err != nil {
		return err
	}
	defer closeFeed()

	a := &api.API{
		Logger: logger,
		Store:  &store.Live{Logger: logger, DB: db, Feed: feed},
		Bus:    bus,
		Val:    validator.New(),
	}
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: a}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver, "feed", cfg.FeedDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		// Log everyone out first so open conversations flush their last marks.
		if err := a.Shutdown(sctx); err != nil {
			logger.Error("Could not log out clients", "error", err.Error())
		}
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server failed", "error", err.Error())
		return err
	}
	logger.Info("Server stopped")
	return nil
}

func openDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.DB, func(), error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("Using in-memory store, messages are lost on restart")
		return store.NewMemory(), func() {}, nil
	}

	pg, err := postgres.Connect(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		closeLogged(logger, "postgres", pg)
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}
	logger.Info("Connected to postgres")
	return pg, func() { closeLogged(logger, "postgres", pg) }, nil
}

func openFeed(ctx context.Context, cfg *config.Config, bus *eventbus.Bus, logger *slog.Logger) (store.Feed, func(), error) {
	if cfg.FeedDriver == "local" {
		return &store.LocalFeed{Bus: bus}, func() {}, nil
	}

	rd, err := redis.Connect(ctx, cfg.RedisAddr, cfg.RedisChannelPrefix)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("Connected to redis", "addr", cfg.RedisAddr)
	return rd, func() { closeLogged(logger, "redis", rd) }, nil
}

// closeLogged closes c and logs a failure.
func closeLogged(logger *slog.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Error("Could not close "+name, "error", err.Error())
	}
}
