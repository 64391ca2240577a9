package main

import (
	"fmt"
	"os"

	"github.com/kurihiro0119/sponsor-access-sync/internal/aggregator"
	"github.com/kurihiro0119/sponsor-access-sync/internal/api"
	"github.com/kurihiro0119/sponsor-access-sync/internal/config"
	"github.com/kurihiro0119/sponsor-access-sync/internal/logging"
	"github.com/kurihiro0119/sponsor-access-sync/internal/storage"
	"github.com/kurihiro0119/sponsor-access-sync/internal/storage/postgres"
	"github.com/kurihiro0119/sponsor-access-sync/internal/storage/sqlite"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateStorage(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	// Initialize storage
	var store storage.Storage
	switch cfg.StorageType {
	case "none":
		logger.Error("the report API needs run history; set STORAGE_TYPE to sqlite or postgres")
		os.Exit(1)
	case "postgres":
		store, err = postgres.NewPostgresStorage(cfg.PostgresURL)
		if err != nil {
			logger.Error("failed to initialize PostgreSQL storage", "error", err)
			os.Exit(1)
		}
	default:
		store, err = sqlite.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			logger.Error("failed to initialize SQLite storage", "error", err)
			os.Exit(1)
		}
	}
	defer store.Close()

	agg := aggregator.NewAggregator(store)
	handler := api.NewHandler(agg)
	router := api.SetupRoutes(handler, logger)

	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	logger.Info("starting API server", "addr", addr, "storage", cfg.StorageType)

	if err := router.Run(addr); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}
