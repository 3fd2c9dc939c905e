// Package config reads server settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr           string        `env:"DRAFT_ADDR" envDefault:":8080"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	StepDuration   time.Duration `env:"DRAFT_STEP_DURATION" envDefault:"30s"`
	TickInterval   time.Duration `env:"DRAFT_TICK_INTERVAL" envDefault:"1s"`
	SweepInterval  time.Duration `env:"DRAFT_SWEEP_INTERVAL" envDefault:"60s"`
	IdleTTL        time.Duration `env:"DRAFT_IDLE_TTL" envDefault:"5m"`
	PersistTimeout time.Duration `env:"DRAFT_PERSIST_TIMEOUT" envDefault:"5s"`
	AllowedOrigins []string      `env:"DRAFT_ALLOWED_ORIGINS" envSeparator:","`
	LogLevel       string        `env:"DRAFT_LOG_LEVEL" envDefault:"info"`
	Dev            bool          `env:"DRAFT_DEV" envDefault:"false"`
}

// Load reads envFile when it exists, then parses the environment. Variables
// already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"DRAFT_STEP_DURATION", c.StepDuration},
		{"DRAFT_TICK_INTERVAL", c.TickInterval},
		{"DRAFT_SWEEP_INTERVAL", c.SweepInterval},
		{"DRAFT_IDLE_TTL", c.IdleTTL},
		{"DRAFT_PERSIST_TIMEOUT", c.PersistTimeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.d)
		}
	}
	if c.TickInterval > c.StepDuration {
		return fmt.Errorf("DRAFT_TICK_INTERVAL (%s) exceeds DRAFT_STEP_DURATION (%s)", c.TickInterval, c.StepDuration)
	}
	return nil
}
