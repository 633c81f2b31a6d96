package main

// Run database migrations:
//   go run ./cmd/migrate
//   go run ./cmd/migrate -status

import (
	"context"
	"flag"
	"log"
	"os"

	"supercv-backend/internal/shared/config"
	"supercv-backend/internal/shared/storage/db"
	"supercv-backend/internal/shared/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	status := flag.Bool("status", false, "print migration status instead of applying")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Print(err)
		return 1
	}
	flush, err := telemetry.Init(cfg.Env)
	if err != nil {
		log.Printf("init logger: %v", err)
		return 1
	}
	defer flush()
	ctx := context.Background()

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		telemetry.Error("migrate.connect_failed", map[string]any{"error": err})
		return 1
	}
	defer sqlDB.Close()

	if *status {
		if err := db.MigrationStatus(ctx, sqlDB); err != nil {
			telemetry.Error("migrate.status_failed", map[string]any{"error": err})
			return 1
		}
		return 0
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"error": err})
		return 1
	}
	telemetry.Info("migrate.done", nil)
	return 0
}
