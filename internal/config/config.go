package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"gpxstops/internal/gps"
)

type Config struct {
	DatabasePath           string
	ServerAddr             string
	RestThresholdSeconds   int
	SpatialThresholdMeters float64
	WorkerPollIntervalMS   int
	DetectCacheSize        int
	LogDebug               bool
}

func Load(path string) (Config, error) {
	defaults := gps.DefaultStopOptions()
	cfg := Config{
		DatabasePath:           "gpxstops.db",
		ServerAddr:             ":8080",
		RestThresholdSeconds:   int(defaults.RestThreshold / time.Second),
		SpatialThresholdMeters: defaults.SpatialThreshold,
		WorkerPollIntervalMS:   2000,
		DetectCacheSize:        128,
	}

	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg.DatabasePath = getenv("DATABASE_PATH", cfg.DatabasePath)
	cfg.ServerAddr = getenv("SERVER_ADDR", cfg.ServerAddr)

	ints := []struct {
		key    string
		target *int
	}{
		{"REST_THRESHOLD_SECONDS", &cfg.RestThresholdSeconds},
		{"WORKER_POLL_INTERVAL_MS", &cfg.WorkerPollIntervalMS},
		{"DETECT_CACHE_SIZE", &cfg.DetectCacheSize},
	}
	for _, item := range ints {
		if v := os.Getenv(item.key); v != "" {
			parsed, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return Config{}, fmt.Errorf("%s: %w", item.key, err)
			}
			*item.target = parsed
		}
	}
	if v := os.Getenv("SPATIAL_THRESHOLD_METERS"); v != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return Config{}, fmt.Errorf("SPATIAL_THRESHOLD_METERS: %w", err)
		}
		cfg.SpatialThresholdMeters = parsed
	}
	if v := os.Getenv("LOG_DEBUG"); v != "" {
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("LOG_DEBUG: %w", err)
		}
		cfg.LogDebug = parsed
	}

	if err := cfg.StopOptions().Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) StopOptions() gps.StopOptions {
	return gps.StopOptions{
		RestThreshold:    time.Duration(c.RestThresholdSeconds) * time.Second,
		SpatialThreshold: c.SpatialThresholdMeters,
	}
}

func (c Config) WorkerPollInterval() time.Duration {
	return time.Duration(c.WorkerPollIntervalMS) * time.Millisecond
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
