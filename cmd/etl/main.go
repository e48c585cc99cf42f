package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/skylinefoods/stocktx/internal/config"
	"github.com/skylinefoods/stocktx/internal/database"
	"github.com/skylinefoods/stocktx/internal/ingestion"
)

// runTimeout bounds one pipeline run end to end, fetch included.
const runTimeout = 10 * time.Minute

func setup() (*config.Config, *ingestion.Setup, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	config.SetLogLevel(cfg.LogLevel)

	dbpool, err := database.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	setupService := ingestion.NewSetup(dbpool, cfg, config.GetLogger())

	cleanupFunc := func() {
		dbpool.Close()
	}

	return cfg, setupService, cleanupFunc, nil
}

func runOnce(setupService *ingestion.Setup) error {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	pipeline, err := setupService.BuildRun(ctx)
	if err != nil {
		return err
	}

	_, err = pipeline.Execute(ctx)
	return err
}

// runScheduled blocks forever, firing runs on the cron schedule. A tick that
// lands while the previous run is still going is skipped, not queued.
func runScheduled(cfg *config.Config, setupService *ingestion.Setup) error {
	logg := config.GetLogger()

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logg.Warnf("Unknown timezone %q, falling back to local time: %v", cfg.Timezone, err)
		location = time.Local
	}

	var running int32
	scheduler := cron.New(cron.WithLocation(location))
	_, err = scheduler.AddFunc(cfg.CronSchedule, func() {
		if !atomic.CompareAndSwapInt32(&running, 0, 1) {
			logg.Warn("Previous run still in progress, skipping this tick")
			return
		}
		defer atomic.StoreInt32(&running, 0)

		if err := runOnce(setupService); err != nil {
			logg.Errorf("Scheduled run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron schedule %q: %v", cfg.CronSchedule, err)
	}

	logg.Infof("Scheduler started with schedule %q in %s", cfg.CronSchedule, location)
	scheduler.Start()
	select {}
}

func main() {
	logg := config.GetLogger()
	if err := godotenv.Load(); err != nil {
		logg.Warnf("Could not load .env file: %v", err)
	}

	startTime := time.Now()

	cfg, setupService, cleanupFunc, err := setup()
	if err != nil {
		logg.Fatal(err)
	}
	defer cleanupFunc()

	if err := setupService.EnsureSchema(context.Background()); err != nil {
		logg.Fatalf("Failed to prepare database schema: %v", err)
	}

	if cfg.CronSchedule != "" {
		if err := runScheduled(cfg, setupService); err != nil {
			logg.Fatal(err)
		}
		return
	}

	logg.Info("Starting stock transactions run...")
	if err := runOnce(setupService); err != nil {
		logg.Fatalf("Run failed: %v", err)
	}
	logg.Infof("Execution time: %s", time.Since(startTime))
}
