package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bjarke-xyz/appstore-api/internal/metrics"
	serverPkg "github.com/bjarke-xyz/appstore-api/internal/server"
	"github.com/bjarke-xyz/appstore-api/internal/store"
)

func ServerCmd(ctx context.Context) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	logger := newLogger("api", cfg)

	docs, closeDocs, err := newDocuments(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer closeDocs()

	feed := serverPkg.NewFeed(logger)
	go feed.Listen(ctx)

	opts := []store.Option{store.WithPublisher(feed)}
	if cfg.RecordTimestamps {
		opts = append(opts, store.WithTimestamps(time.Now))
	}
	st := store.New(logger, docs, opts...)

	server := serverPkg.NewServer(logger, st, feed, serverPkg.Options{
		AllowedOrigins: cfg.AllowedOrigins(),
		MaxBodyBytes:   cfg.MaxBodyBytes,
	})
	srv := server.Server(cfg.Port)

	// metrics
	if cfg.MetricsPort != 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.MetricsPort), mux)
			logger.Error("metrics server stopped", "error", err)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("started server", slog.Int("port", cfg.Port), slog.Int("metricsPort", cfg.MetricsPort))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
