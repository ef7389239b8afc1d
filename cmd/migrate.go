package main

import (
	"context"
	"fmt"
	"time"

	"contact-service/internal/config"
	"contact-service/internal/logging"
	"contact-service/internal/storage"
)

const migrateTimeout = 30 * time.Second

func runMigrate(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to init logging: %w", err)
	}
	defer logCloser.Close()

	ctx, cancel := context.WithTimeout(ctx, migrateTimeout)
	defer cancel()

	store, err := storage.Open(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info().Msg("migration complete")
	return nil
}
