package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/gloss-export/internal/adapter/contentstore/github"
	"github.com/heartmarshall/gloss-export/internal/adapter/postgres"
	"github.com/heartmarshall/gloss-export/internal/adapter/postgres/gloss"
	"github.com/heartmarshall/gloss-export/internal/config"
	"github.com/heartmarshall/gloss-export/internal/service/export"
	"github.com/heartmarshall/gloss-export/pkg/ctxutil"
)

// ErrLanguagesFailed is returned by Run when the run finished but at least
// one language document could not be published.
var ErrLanguagesFailed = errors.New("some languages failed to export")

// Run is the entry point of one export run. It loads configuration, connects
// to the database and the content store, runs the pipeline under the
// configured timeout and releases every resource before returning.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := NewLogger(cfg.Log)

	runID := uuid.NewString()
	ctx = ctxutil.WithRunID(ctx, runID)

	logger.InfoContext(ctx, "starting export",
		slog.String("version", BuildVersion()),
		slog.String("log_level", cfg.Log.Level),
		slog.String("repository", cfg.ContentStore.Owner+"/"+cfg.ContentStore.Repo),
		slog.String("branch", cfg.ContentStore.Branch),
	)

	shutdownTracing, err := InitTracing(ctx, cfg.Trace, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		// The run context may already be expired; flushing gets its own budget.
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.WarnContext(ctx, "tracing shutdown", slog.String("error", err.Error()))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, cfg.Export.RunTimeout)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	svc := export.NewService(
		logger,
		gloss.New(pool),
		github.NewStore(cfg.ContentStore, logger),
		postgres.NewTxManager(pool),
		cfg.Export,
	)

	report, err := svc.Run(ctx)
	if err != nil {
		return fmt.Errorf("export run %s: %w", runID, err)
	}
	if report.HasFailures() {
		return fmt.Errorf("export run %s: %w", runID, ErrLanguagesFailed)
	}
	return nil
}
