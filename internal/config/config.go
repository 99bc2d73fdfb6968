// Package config reads the server configuration from flags and
// environment variables. Environment variables win over flags.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the server configuration.
type Config struct {
	RunAddress   string        `env:"RUN_ADDRESS"`
	DataFile     string        `env:"DATA_FILE"`
	DatabaseURI  string        `env:"DATABASE_URI"`
	RedisAddress string        `env:"REDIS_ADDRESS"`
	TokenSecret  string        `env:"TOKEN_SECRET"`
	FrontendDir  string        `env:"FRONTEND_DIR"`
	PriceRefresh time.Duration `env:"PRICE_REFRESH"`
}

// Parse reads configuration from command-line flags and environment
// variables.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDataFile := cfg.DataFile
	envDatabaseURI := cfg.DatabaseURI
	envRedisAddress := cfg.RedisAddress
	envTokenSecret := cfg.TokenSecret
	envFrontendDir := cfg.FrontendDir
	envPriceRefresh := cfg.PriceRefresh

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DataFile, "f", "cryptonova.json", "path of the file-backed store")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "PostgreSQL URI (overrides the file store)")
	flag.StringVar(&cfg.RedisAddress, "r", "", "Redis address (overrides the file store)")
	flag.StringVar(&cfg.TokenSecret, "s", "cryptonova-secret", "JWT signing secret")
	flag.StringVar(&cfg.FrontendDir, "w", "frontend", "directory of built frontend assets")
	flag.DurationVar(&cfg.PriceRefresh, "i", 3*time.Second, "mock price refresh interval")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDataFile != "" {
		cfg.DataFile = envDataFile
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}
	if envTokenSecret != "" {
		cfg.TokenSecret = envTokenSecret
	}
	if envFrontendDir != "" {
		cfg.FrontendDir = envFrontendDir
	}
	if envPriceRefresh != 0 {
		cfg.PriceRefresh = envPriceRefresh
	}

	return cfg, nil
}
