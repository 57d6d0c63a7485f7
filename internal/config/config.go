package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	HTTPAddr                  string
	ReadTimeout               time.Duration
	WriteTimeout              time.Duration
	IdleTimeout               time.Duration
	ShutdownTimeout           time.Duration
	LogLevel                  string
	Store                     string
	RedisAddr                 string
	RedisPassword             string
	RedisDB                   int
	PostgresDSN               string
	APIKey                    string
	RateLimitPerMinute        int
	IdempotencyHeader         string
	IdempotencyTTL            time.Duration
	IdempotencyLockTTL        time.Duration
	IdempotencyConflictWait   time.Duration
	IdempotencyReleaseTimeout time.Duration
}

// Load reads configuration from the environment. Values from a .env file in
// the working directory, or the files named in envFiles, fill variables that
// are not already set.
func Load(envFiles ...string) Config {
	_ = godotenv.Load(envFiles...)

	return Config{
		HTTPAddr:                  envOrDefault("IDEMPOTENCY_HTTP_ADDR", ":8080"),
		ReadTimeout:               durationOrDefault("IDEMPOTENCY_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:              durationOrDefault("IDEMPOTENCY_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:               durationOrDefault("IDEMPOTENCY_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:           durationOrDefault("IDEMPOTENCY_SHUTDOWN_TIMEOUT", 10*time.Second),
		LogLevel:                  envOrDefault("LOG_LEVEL", "info"),
		Store:                     storeOrDefault("IDEMPOTENCY_STORE", StoreRedis),
		RedisAddr:                 envOrDefault("REDIS_ADDR", "redis:6379"),
		RedisPassword:             os.Getenv("REDIS_PASSWORD"),
		RedisDB:                   intOrDefault("REDIS_DB", 0),
		PostgresDSN:               strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
		APIKey:                    strings.TrimSpace(os.Getenv("IDEMPOTENCY_API_KEY")),
		RateLimitPerMinute:        intOrDefault("IDEMPOTENCY_RATE_LIMIT", 0),
		IdempotencyHeader:         envOrDefault("IDEMPOTENCY_HEADER", "Idempotency-Key"),
		IdempotencyTTL:            durationOrDefault("IDEMPOTENCY_TTL", time.Hour),
		IdempotencyLockTTL:        durationOrDefault("IDEMPOTENCY_LOCK_TTL", 30*time.Second),
		IdempotencyConflictWait:   durationOrDefault("IDEMPOTENCY_CONFLICT_WAIT", 0),
		IdempotencyReleaseTimeout: durationOrDefault("IDEMPOTENCY_RELEASE_TIMEOUT", 5*time.Second),
	}
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func durationOrDefault(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func intOrDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func storeOrDefault(key, fallback string) string {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case StoreRedis, StoreMemory:
		return value
	default:
		return fallback
	}
}
