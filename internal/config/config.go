package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application
type Config struct {
	// Database
	DatabaseURL string

	// Server
	Port        string
	CORSOrigins []string
	Env         string
	APISecret   string

	// Remote payout engine
	PayoutEngineURL     string
	PayoutEngineTimeout time.Duration

	// Circuit breaker
	BreakerFailureThreshold int
	BreakerCooldown         time.Duration

	// Local fallback relayer
	RelayerPrivateKey string // EVM signing key
	TronPrivateKey    string // TRON signing key (separate from EVM)
	RelayerRPCURL     string // signer sidecar endpoint, defaults to the payout engine URL

	// Reconciliation
	ReconcileTolerance decimal.Decimal

	// Scheduled payment sweeper
	SweepInterval time.Duration
	SweepLimit    int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	tolerance, err := decimal.NewFromString(getEnv("RECONCILE_TOLERANCE", "0.000001"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_TOLERANCE: %w", err)
	}

	cfg := &Config{
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		Port:                    getEnv("PORT", "8080"),
		CORSOrigins:             strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		Env:                     getEnv("ENV", "development"),
		APISecret:               getEnv("API_SECRET", ""),
		PayoutEngineURL:         getEnv("PAYOUT_ENGINE_URL", ""),
		PayoutEngineTimeout:     getDurationEnv("PAYOUT_ENGINE_TIMEOUT", 5*time.Second),
		BreakerFailureThreshold: getIntEnv("BREAKER_FAILURE_THRESHOLD", 3),
		BreakerCooldown:         getDurationEnv("BREAKER_COOLDOWN", 30*time.Second),
		RelayerPrivateKey:       getEnv("RELAYER_PRIVATE_KEY", ""),
		TronPrivateKey:          getEnv("TRON_PRIVATE_KEY", ""),
		RelayerRPCURL:           getEnv("RELAYER_RPC_URL", ""),
		ReconcileTolerance:      tolerance,
		SweepInterval:           getDurationEnv("SWEEP_INTERVAL", 1*time.Minute),
		SweepLimit:              getIntEnv("SWEEP_LIMIT", 50),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.PayoutEngineURL == "" {
		return fmt.Errorf("PAYOUT_ENGINE_URL is required")
	}
	if c.BreakerFailureThreshold < 1 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be at least 1")
	}
	if c.ReconcileTolerance.IsNegative() {
		return fmt.Errorf("RECONCILE_TOLERANCE must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
