package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/s2s-forecast-service/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DataDir        string
	DataPattern    string
	HTTPAddr       string
	AllowedOrigins []string

	LogLevel        string
	LogFormat       string
	LogFile         string
	ShutdownTimeout time.Duration

	// Cube build configuration.
	Reducer          domain.Reducer
	BuildConcurrency int
	LoadAttempts     int

	// QueryCacheSize bounds the memoized query results. Zero disables caching.
	QueryCacheSize int

	// Kafka publishing is enabled when at least one broker is configured.
	KafkaBrokers []string
	KafkaTopic   string
	// KafkaBreakerTimeout is how long the publish circuit stays open before
	// a trial write is let through.
	KafkaBreakerTimeout time.Duration

	// ReloadInterval schedules periodic cube rebuilds. Zero disables them.
	ReloadInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	reducer, err := domain.ParseReducer(sharedcfg.EnvOrDefault("ENSEMBLE_REDUCER", "mean"))
	if err != nil {
		return nil, errors.New("invalid ENSEMBLE_REDUCER: must be mean or median")
	}

	concurrency, err := parsePositive("BUILD_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}

	attempts, err := parsePositive("LOAD_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}

	cacheSize, err := parseCacheSize()
	if err != nil {
		return nil, err
	}

	breakerTimeout, err := parseDuration("KAFKA_BREAKER_TIMEOUT", 30*time.Second, false)
	if err != nil {
		return nil, err
	}

	reloadInterval, err := parseDuration("RELOAD_INTERVAL", 0, true)
	if err != nil {
		return nil, err
	}

	port := sharedcfg.EnvOrDefault("PORT", "8050")
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return nil, errors.New("invalid PORT: must be 1-65535")
	}

	cfg := &Config{
		DataDir:          sharedcfg.EnvOrDefault("DATA_DIR", "data"),
		DataPattern:      sharedcfg.EnvOrDefault("DATA_PATTERN", "*.nc"),
		HTTPAddr:         ":" + port,
		AllowedOrigins:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("ALLOWED_ORIGINS", "localhost:8050")),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		LogFile:          os.Getenv("LOG_FILE"),
		ShutdownTimeout:  shutdownTimeout,
		Reducer:          reducer,
		BuildConcurrency: concurrency,
		LoadAttempts:     attempts,
		QueryCacheSize:   cacheSize,
		KafkaBrokers:     sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:       sharedcfg.EnvOrDefault("KAFKA_TOPIC", "forecast-cube-events"),

		KafkaBreakerTimeout: breakerTimeout,
		ReloadInterval:      reloadInterval,
	}

	if strings.ContainsAny(cfg.DataPattern, `/\`) {
		return nil, errors.New("invalid DATA_PATTERN: must be a file name glob")
	}
	if len(cfg.AllowedOrigins) == 0 {
		return nil, errors.New("ALLOWED_ORIGINS is required")
	}

	return cfg, nil
}

// KafkaEnabled reports whether cube events should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parsePositive(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errors.New("invalid " + key + ": must be a positive integer")
	}
	return n, nil
}

func parseCacheSize() (int, error) {
	s := os.Getenv("QUERY_CACHE_SIZE")
	if s == "" {
		return 256, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid QUERY_CACHE_SIZE: must be 0 or greater")
	}
	return n, nil
}

// parseDuration reads a Go duration. Zero is accepted only when allowZero is
// set; negative values are always rejected.
func parseDuration(key string, fallback time.Duration, allowZero bool) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, errors.New("invalid " + key + ": must be a positive duration")
	}
	return d, nil
}
