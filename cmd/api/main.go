package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/skylinefoods/stocktx/internal/config"
	"github.com/skylinefoods/stocktx/internal/database"
	"github.com/skylinefoods/stocktx/internal/server"
)

func main() {
	logg := config.GetLogger()
	if err := godotenv.Load(); err != nil {
		logg.Warnf("Could not load .env file: %v", err)
	}

	cfg, err := config.New()
	if err != nil {
		logg.Fatalf("Failed to load config: %v", err)
	}
	config.SetLogLevel(cfg.LogLevel)

	dbpool, err := database.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		logg.Fatalf("Failed to connect to the database: %v", err)
	}
	defer dbpool.Close()

	store := database.NewPostgresStore(context.Background(), dbpool, database.StoreConfig{
		LedgerTable:     cfg.LedgerTable,
		AnchorTable:     cfg.AnchorTable,
		LifecycleTable:  cfg.LifecycleTable,
		DiffDetailTable: cfg.DiffDetailTable,
		DiffTotalTable:  cfg.DiffTotalTable,
		LifecycleProc:   cfg.LifecycleProc,
	}, logg)

	// The schema is resolved once at startup. Redeploy after renaming
	// columns on the discrepancy tables.
	schema, err := store.IntrospectSchema()
	if err != nil {
		logg.Fatalf("Failed to resolve destination schema: %v", err)
	}

	router := server.SetupRoutes(server.NewReportService(store, schema))

	logg.Infof("Server starting on port %s", cfg.APIPort)
	if err := http.ListenAndServe(fmt.Sprintf(":%s", cfg.APIPort), router); err != nil {
		logg.Fatalf("Failed to start server: %v", err)
	}
}
