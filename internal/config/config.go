// Package config содержит логику чтения конфигурации сервиса проверки кодов.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса проверки кодов.
type Config struct {
	RunAddress    string `env:"RUN_ADDRESS"`
	DatabaseURI   string `env:"DATABASE_URI"`
	SessionSecret string `env:"SESSION_SECRET"`
	BatchLimit    int    `env:"BATCH_LIMIT"`
	BatchWorkers  int    `env:"BATCH_WORKERS"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envSessionSecret := cfg.SessionSecret
	envBatchLimit := cfg.BatchLimit
	envBatchWorkers := cfg.BatchWorkers

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.SessionSecret, "s", "", "secret key for session cookies")
	flag.IntVar(&cfg.BatchLimit, "l", 500, "maximum codes per batch request")
	flag.IntVar(&cfg.BatchWorkers, "w", 8, "concurrent verifications per batch")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envSessionSecret != "" {
		cfg.SessionSecret = envSessionSecret
	}
	if envBatchLimit != 0 {
		cfg.BatchLimit = envBatchLimit
	}
	if envBatchWorkers != 0 {
		cfg.BatchWorkers = envBatchWorkers
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 500
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = 8
	}

	return cfg, nil
}
