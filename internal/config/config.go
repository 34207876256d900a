package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds process configuration, read once from the environment at
// startup and treated as immutable.
type Config struct {
	DBSource string
	Port     string
	Env      string

	// RedisAddr selects the Redis-backed idempotency guard when set; empty
	// means the in-process bounded guard.
	RedisAddr string

	// DedupCapacity and DedupTTL size the guard to the duplicate-delivery
	// window of the upstream event source.
	DedupCapacity int
	DedupTTL      time.Duration

	// CommandTimeout bounds the store round-trips of a single command.
	CommandTimeout time.Duration

	RateLimit float64
	RateBurst int
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	return &Config{
		DBSource:       dbSource,
		Port:           getEnvString("SERVER_PORT", "8080"),
		Env:            getEnvString("ENVIRONMENT", "development"),
		RedisAddr:      getEnvString("REDIS_ADDR", ""),
		DedupCapacity:  getEnvInt("DEDUP_CAPACITY", 4096),
		DedupTTL:       getEnvDuration("DEDUP_TTL", 15*time.Minute),
		CommandTimeout: getEnvDuration("COMMAND_TIMEOUT", 5*time.Second),
		RateLimit:      getEnvFloat("RATE_LIMIT", 20),
		RateBurst:      getEnvInt("RATE_BURST", 40),
	}, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
