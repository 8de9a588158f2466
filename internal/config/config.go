package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DatabasePath     string        `env:"CHORENET_DATABASE_PATH" envDefault:"./data/chorenet.db"`
	HouseholdFile    string        `env:"CHORENET_HOUSEHOLD_FILE" envDefault:"./household.yaml"`
	Port             string        `env:"CHORENET_PORT" envDefault:"8080"`
	LogLevel         string        `env:"CHORENET_LOG_LEVEL" envDefault:"info"`
	APIToken         string        `env:"CHORENET_API_TOKEN"`
	HAURL            string        `env:"CHORENET_HA_URL"`
	HAToken          string        `env:"CHORENET_HA_TOKEN"`
	HASensorToken    string        `env:"CHORENET_HA_SENSOR_TOKEN"`
	TickInterval     time.Duration `env:"CHORENET_TICK_INTERVAL" envDefault:"1m"`
	DispatchInterval time.Duration `env:"CHORENET_DISPATCH_INTERVAL" envDefault:"30s"`
	Timezone         string        `env:"CHORENET_TIMEZONE"`
}

func Load() (Config, error) {
	var config Config
	if err := env.Parse(&config); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (config Config) Validate() error {
	if config.TickInterval <= 0 {
		return fmt.Errorf("CHORENET_TICK_INTERVAL must be positive")
	}
	if config.DispatchInterval <= 0 {
		return fmt.Errorf("CHORENET_DISPATCH_INTERVAL must be positive")
	}
	if config.HAURL != "" && config.HAToken == "" {
		return fmt.Errorf("CHORENET_HA_TOKEN is required when CHORENET_HA_URL is set")
	}
	if _, err := config.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the household time zone, defaulting to the local zone.
func (config Config) Location() (*time.Location, error) {
	if config.Timezone == "" {
		return time.Local, nil
	}
	location, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", config.Timezone, err)
	}
	return location, nil
}

func (config Config) SlogLevel() slog.Level {
	switch strings.ToLower(config.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
