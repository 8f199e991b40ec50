// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime settings.
type Config struct {
	Port         string `env:"PORT" envDefault:"8080"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"metamorph.db"`

	// AdminKey gates mint, budget reset and manual reading pushes.
	// Empty denies every privileged call.
	AdminKey string `env:"ADMIN_KEY" envDefault:"dev-admin-key"`

	// UpkeepInterval is the minimum time between committed advances
	// (the collection's global clock interval).
	UpkeepInterval time.Duration `env:"UPKEEP_INTERVAL" envDefault:"10m"`

	// CheckInterval is the scheduler tick at which the evaluator runs.
	CheckInterval time.Duration `env:"CHECK_INTERVAL" envDefault:"1m"`

	// MaxUpdates caps data-driven advances before a reset is required.
	// Zero disables the budget.
	MaxUpdates int `env:"MAX_UPDATES" envDefault:"0"`

	// WeatherMode gates advancement on oracle readings. With an empty
	// OracleURL readings are pushed through the admin API instead.
	WeatherMode bool   `env:"WEATHER_MODE" envDefault:"false"`
	OracleURL   string `env:"ORACLE_URL"`

	// BaseImageURI prefixes every synthesized image reference.
	BaseImageURI string `env:"BASE_IMAGE_URI" envDefault:"ipfs://metamorph/"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
