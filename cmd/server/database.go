package main

import (
	"context"
	"database/sql"
	"fmt"

	"livetimers/timetracker/internal/app"
	"livetimers/timetracker/internal/config"
	"livetimers/timetracker/internal/migrations"
)

func withDatabase(ctx context.Context, fn func(ctx context.Context, svc *migrations.Service, db *sql.DB) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DB.URL == "" {
		return fmt.Errorf("DATABASE_URL is required for migrations")
	}
	db, err := app.OpenDB(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, migrations.NewService(), db)
}
