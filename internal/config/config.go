package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the aggregator needs to start.
type Config struct {
	// Port is the TCP port the acceptor listens on.
	Port string

	// DataFile is the canonical path for the persisted record array.
	DataFile string

	// TTL is the maximum age of a record before the sweeper removes it.
	TTL time.Duration

	// SweepInterval is how often the expiry sweeper runs.
	SweepInterval time.Duration

	// QueueDepth bounds the request pipeline's FIFO.
	QueueDepth int

	// PoolSize bounds the number of concurrent connection handlers.
	PoolSize int

	// DrainTimeout bounds how long shutdown waits for in-flight
	// connections before force-cancelling them.
	DrainTimeout time.Duration

	// Dev selects colorized human-readable logging over JSON.
	Dev bool
}

// Load reads configuration from environment with sensible defaults,
// matching the source's DEFAULT_PORT/EXPIRY_SECONDS constants.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := &Config{
		Port:     getenvDefault("AGG_PORT", "4567"),
		DataFile: getenvDefault("AGG_DATA_FILE", "resources/weather_data.json"),
	}

	ttl, err := getenvDuration("AGG_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid AGG_TTL: %w", err)
	}
	cfg.TTL = ttl

	sweep, err := getenvDuration("AGG_SWEEP_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid AGG_SWEEP_INTERVAL: %w", err)
	}
	cfg.SweepInterval = sweep

	drain, err := getenvDuration("AGG_DRAIN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid AGG_DRAIN_TIMEOUT: %w", err)
	}
	cfg.DrainTimeout = drain

	cfg.QueueDepth = getenvInt("AGG_QUEUE_DEPTH", 64)
	cfg.PoolSize = getenvInt("AGG_POOL_SIZE", 10)
	cfg.Dev = getenvDefault("AGG_ENV", "dev") != "prod"

	return cfg, nil
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
	return time.ParseDuration(v)
}
