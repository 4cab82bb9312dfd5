package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/i474232898/citibike-dashboard/internal/api/http"
	"github.com/i474232898/citibike-dashboard/internal/config"
	"github.com/i474232898/citibike-dashboard/internal/dataset"
	"github.com/i474232898/citibike-dashboard/internal/geocode"
	"github.com/i474232898/citibike-dashboard/internal/observability"
	"github.com/i474232898/citibike-dashboard/internal/scheduler"
	"github.com/i474232898/citibike-dashboard/internal/trips"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	metrics := observability.NewMetrics()

	// Shared HTTP client for URL resources.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Loader behind a cache.
	loader := dataset.NewLoader(cfg.Sources, cfg.Schema, dataset.NewFetcher(httpClient))
	cache := dataset.NewCache(loader, metrics, dataset.WithTTL(cfg.CacheTTL))

	// Station address labels are optional.
	var labeler trips.Labeler
	if cfg.GeocoderAPIKey != "" {
		labeler = geocode.NewLabeler(geocode.NewGoogleReverse(cfg.GeocoderAPIKey), cfg.GeocoderCacheSize, 24*time.Hour, metrics)
		log.Printf("INFO: station address labels enabled")
	}

	service := trips.NewService(cache, cfg.Schema.Pipelines, cfg.MissingCoordinates, labeler, metrics)

	// Warm the cache so a missing resource shows up in the logs at startup.
	warmCtx, cancelWarm := context.WithTimeout(context.Background(), cfg.HTTPTimeout*3)
	if _, err := cache.Tables(warmCtx); err != nil {
		log.Printf("WARN: initial dataset load failed, will retry on request: %v", err)
	}
	cancelWarm()

	// Scheduler that periodically reloads the dataset.
	sched := scheduler.New(cache, cfg.RefreshInterval, cfg.RefreshCron)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	app := httpapi.NewApp(service)

	go func() {
		log.Printf("INFO: listening on :%s", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
