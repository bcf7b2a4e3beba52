// Package config loads the engine's process-environment configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all engine configuration, read once at startup.
type Config struct {
	Ingress IngressConfig
	Broker  BrokerConfig
	Engine  EngineConfig
}

// IngressConfig describes the upstream market-data producer connection.
type IngressConfig struct {
	Endpoint string
}

// BrokerConfig describes the downstream pub/sub + history broker.
type BrokerConfig struct {
	URL     string
	Channel string
}

// EngineConfig holds the spread-search and staleness tuning knobs.
type EngineConfig struct {
	SpreadThresholdPct float64
	Symbols            []string
	MaxPriceAgeMs      int64
	LogLevel           string
}

// Load reads configuration from the process environment, following the
// defaults table documented for this engine. A .env file in the working
// directory is loaded first, if present; its absence is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Ingress: IngressConfig{
			Endpoint: getEnv("ZMQ_ENDPOINT", "tcp://ingestor:5555"),
		},
		Broker: BrokerConfig{
			URL:     getEnv("REDIS_URL", "redis://redis:6379"),
			Channel: getEnv("SIGNAL_CHANNEL", "arbitrage:signals"),
		},
		Engine: EngineConfig{
			SpreadThresholdPct: getEnvAsFloat("SPREAD_THRESHOLD_PCT", 0.5),
			Symbols:            getEnvAsSlice("SYMBOLS", []string{"BTC/USDT"}, ","),
			MaxPriceAgeMs:      getEnvAsInt64("MAX_PRICE_AGE_MS", 5000),
			LogLevel:           getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that Load cannot express through defaults alone.
func (c *Config) Validate() error {
	if c.Engine.SpreadThresholdPct < 0 {
		return fmt.Errorf("SPREAD_THRESHOLD_PCT must be >= 0, got %v", c.Engine.SpreadThresholdPct)
	}
	if c.Engine.MaxPriceAgeMs <= 0 {
		return fmt.Errorf("MAX_PRICE_AGE_MS must be > 0, got %d", c.Engine.MaxPriceAgeMs)
	}
	if strings.TrimSpace(c.Ingress.Endpoint) == "" {
		return fmt.Errorf("ZMQ_ENDPOINT must not be empty")
	}
	if strings.TrimSpace(c.Broker.URL) == "" {
		return fmt.Errorf("REDIS_URL must not be empty")
	}
	return nil
}

// MaxPriceAge returns the staleness threshold as a time.Duration.
func (c *Config) MaxPriceAge() time.Duration {
	return time.Duration(c.Engine.MaxPriceAgeMs) * time.Millisecond
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsSlice(key string, defaultVal []string, sep string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal
	}
	return strings.Split(valueStr, sep)
}
