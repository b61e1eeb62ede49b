package main

import (
	"database/sql"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver
	"github.com/pressly/goose/v3"

	"github.com/tinyco/harvest/configs"
	"github.com/tinyco/harvest/internal/logging"
	"github.com/tinyco/harvest/internal/migrations"
)

func main() {
	cfg := configs.AppLoad()
	logger := logging.New(cfg.App, cfg.LogPath, cfg.LogLevel)

	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Errorf("Failed to ping database: %v", err)
		os.Exit(1)
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		logger.Errorf("Goose: failed to set dialect: %v", err)
		os.Exit(1)
	}

	logger.Info("Running database migrations...")
	if err := goose.Up(db, "."); err != nil {
		logger.Errorf("Goose migration failed: %v", err)
		os.Exit(1)
	}

	logger.Info("Migrations completed successfully")
}
