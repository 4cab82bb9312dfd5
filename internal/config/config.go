package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/i474232898/citibike-dashboard/internal/dataset"
	"github.com/i474232898/citibike-dashboard/internal/trips"
)

type AppConfig struct {
	Port string `validate:"required,numeric"`

	// Input resources: local paths or http(s) URLs.
	Sources dataset.Sources

	// SchemaFile optionally overrides column names and pipelines.
	SchemaFile string
	Schema     dataset.Schema

	TopN               int                    `validate:"gte=1,lte=100"`
	MissingCoordinates trips.CoordinatePolicy `validate:"oneof=exclude error"`

	// CacheTTL expires the loaded tables (0 = keep for the process lifetime).
	CacheTTL    time.Duration `validate:"gte=0"`
	HTTPTimeout time.Duration `validate:"gt=0"`

	// Background refresh: an interval, a cron expression, or neither.
	RefreshInterval time.Duration `validate:"gte=0"`
	RefreshCron     string

	GeocoderAPIKey    string
	GeocoderCacheSize int `validate:"gte=1"`
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.Sources = dataset.Sources{
		TripWeather: getenvDefault("TRIPS_WEATHER_PATH", "daily_trips_weather.csv"),
		Stations:    getenvDefault("STATION_SAMPLE_PATH", "kepler_ready_sample.csv"),
		MapDocument: getenvDefault("MAP_DOCUMENT_PATH", "kepler_map.html"),
		RawTrips:    os.Getenv("RAW_TRIPS_PATH"),
	}

	cfg.TopN = getenvInt("TOP_N", trips.DefaultTopN)
	cfg.MissingCoordinates = trips.CoordinatePolicy(getenvDefault("MISSING_COORDINATES", string(trips.CoordinatesExclude)))

	var err error
	if cfg.CacheTTL, err = getenvDuration("CACHE_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = getenvDuration("DATA_REFRESH_INTERVAL", 0); err != nil {
		return nil, err
	}

	cfg.RefreshCron = os.Getenv("DATA_REFRESH_CRON")
	if cfg.RefreshCron != "" {
		if _, err := cron.ParseStandard(cfg.RefreshCron); err != nil {
			return nil, fmt.Errorf("invalid DATA_REFRESH_CRON: %w", err)
		}
	}

	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")
	cfg.GeocoderCacheSize = getenvInt("GEOCODER_CACHE_SIZE", 256)

	cfg.SchemaFile = os.Getenv("DATASET_SCHEMA_FILE")
	schema, err := dataset.LoadSchema(cfg.SchemaFile)
	if err != nil {
		return nil, err
	}
	applyTopN(schema.Pipelines, cfg.TopN, cfg.SchemaFile == "")
	cfg.Schema = schema

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyTopN sets TOP_N on the built-in pipelines, or only on pipelines
// that leave top_n unset when a schema file is used.
func applyTopN(pipelines []trips.Pipeline, n int, builtIn bool) {
	for i := range pipelines {
		if builtIn || pipelines[i].TopN == 0 {
			pipelines[i].TopN = n
		}
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
