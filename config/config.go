package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const DefaultEnvFile = ".env"

// Config holds the server settings read from the environment
type Config struct {
	ServerPort        string
	DatabasePath      string
	ActivityLogDir    string
	LogLevel          logrus.Level
	GinMode           string
	RequireSignatures bool
	SignatureWindow   time.Duration
	PriceDecimals     int32
}

// Load reads envFile if it exists, then builds a Config from the environment.
// Variables already set in the process environment take precedence over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s file: %w", envFile, err)
		}
	}

	cfg := &Config{
		ServerPort:     getEnv("SERVER_PORT", "4534"),
		DatabasePath:   getEnv("DATABASE_PATH", "./data/option_ledger.db"),
		ActivityLogDir: getEnv("ACTIVITY_LOG_DIR", "./activity_logs"),
		GinMode:        getEnv("GIN_MODE", "release"),
	}

	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	cfg.RequireSignatures, err = strconv.ParseBool(getEnv("REQUIRE_SIGNATURES", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUIRE_SIGNATURES: %w", err)
	}

	cfg.SignatureWindow, err = time.ParseDuration(getEnv("SIGNATURE_WINDOW", "60s"))
	if err != nil || cfg.SignatureWindow <= 0 {
		return nil, fmt.Errorf("invalid SIGNATURE_WINDOW %q: must be a positive duration", os.Getenv("SIGNATURE_WINDOW"))
	}

	decimals, err := strconv.ParseInt(getEnv("PRICE_DECIMALS", "9"), 10, 32)
	if err != nil || decimals < 0 || decimals > 18 {
		return nil, fmt.Errorf("invalid PRICE_DECIMALS %q: must be an integer in [0, 18]", os.Getenv("PRICE_DECIMALS"))
	}
	cfg.PriceDecimals = int32(decimals)

	if _, err := strconv.Atoi(cfg.ServerPort); err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT %q: %w", cfg.ServerPort, err)
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server
func (c *Config) Addr() string {
	return ":" + c.ServerPort
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
