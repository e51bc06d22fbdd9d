// Command cleanup physically removes gloss events that were settled by an
// export run longer ago than the configured retention period. Pending events
// are never removed. It is intended to be invoked by an external cron job.
//
// Exit codes: 0 = success, 1 = error.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/heartmarshall/gloss-export/internal/adapter/postgres"
	"github.com/heartmarshall/gloss-export/internal/adapter/postgres/gloss"
	"github.com/heartmarshall/gloss-export/internal/app"
	"github.com/heartmarshall/gloss-export/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := app.NewLogger(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Export.RunTimeout)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	repo := gloss.New(pool)

	threshold := time.Now().AddDate(0, 0, -cfg.Export.SyncedEventRetentionDays)

	deleted, err := repo.PruneSyncedEvents(ctx, threshold)
	if err != nil {
		logger.Error("prune synced events failed",
			slog.String("error", err.Error()),
			slog.Time("threshold", threshold),
		)
		pool.Close()
		os.Exit(1)
	}

	logger.Info("prune synced events completed",
		slog.Int64("deleted", deleted),
		slog.Time("threshold", threshold),
	)
}
