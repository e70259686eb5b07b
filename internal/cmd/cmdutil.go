package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bjarke-xyz/appstore-api/internal/domain"
	"github.com/bjarke-xyz/appstore-api/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func newLogger(service string, cfg Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = newConsoleHandler(os.Stderr, level)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler)
	child := logger.With(slog.Group("service_info", slog.String("env", cfg.Env), slog.String("service", service)))
	return child
}

func newConsoleHandler(f *os.File, level slog.Level) slog.Handler {
	return tint.NewHandler(colorable.NewColorable(f), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(f.Fd()),
	})
}

// newDocuments picks the collection backend: Postgres when a connection string
// is configured, JSON files otherwise. The returned func releases resources.
func newDocuments(ctx context.Context, logger *slog.Logger, cfg Config) (domain.DocumentRepository, func(), error) {
	if cfg.DatabaseURL == "" {
		paths := map[string]string{
			domain.Apps.Name:  cfg.AppsPath(),
			domain.Users.Name: cfg.UsersPath(),
		}
		logger.Info("using file documents", "apps", paths[domain.Apps.Name], "users", paths[domain.Users.Name])
		return repository.NewFileDocuments(paths), func() {}, nil
	}
	pool, err := newDatabasePool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating db pool: %w", err)
	}
	logger.Info("using postgres documents")
	return repository.NewPostgresDocuments(pool), pool.Close, nil
}

func newDatabasePool(ctx context.Context, unformattedConnStr string, maxConns int) (*pgxpool.Pool, error) {
	if maxConns == 0 {
		maxConns = 1
	}
	err := repository.Migrate("up", unformattedConnStr)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	queryChar := "?"
	if strings.Contains(unformattedConnStr, "?") {
		queryChar = "&"
	}
	url := fmt.Sprintf(
		"%s%vpool_max_conns=%d&pool_min_conns=%d",
		unformattedConnStr,
		queryChar,
		maxConns,
		min(2, maxConns),
	)
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}

	// Setting the build statement cache to nil helps this work with pgbouncer
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Second
	return pgxpool.NewWithConfig(ctx, config)
}
