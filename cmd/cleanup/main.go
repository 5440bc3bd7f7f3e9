package main

import (
	"context"
	"os"
	"time"

	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/config"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/db"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/logger"
	"github.com/WailSalutem-Health-Care/clinic-intake-service/internal/wizard"
	"go.uber.org/zap"
)

// One-shot purge of wizard drafts older than WIZARD_DRAFT_TTL, for running
// from a cron job instead of the in-process schedule.
func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.Logger.Level, cfg.App.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("draft cleanup job starting", zap.Duration("retention", cfg.Wizard.DraftTTL))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	database, err := db.Connect(ctx, cfg.Postgres, log)
	if err != nil {
		log.Error("failed to connect to database", zap.Error(err))
		os.Exit(1)
	}
	defer database.Close()

	cleanup := wizard.NewCleanupService(wizard.NewPostgresDraftStore(database), cfg.Wizard.DraftTTL, log)

	count, err := cleanup.ExpiredCount(ctx)
	if err != nil {
		log.Error("failed to count expired drafts", zap.Error(err))
		os.Exit(1)
	}
	if count == 0 {
		log.Info("no cleanup needed")
		return
	}

	deleted, err := cleanup.CleanupExpiredDrafts(ctx)
	if err != nil {
		log.Error("cleanup failed", zap.Error(err))
		os.Exit(1)
	}
	log.Info("draft cleanup job finished", zap.Int("found", count), zap.Int("deleted", deleted))
}
