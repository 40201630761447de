package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	CacheBackendMemory    = "memory"
	CacheBackendMemcached = "memcached"
)

// DefaultCityIDs are the OpenWeatherMap IDs of the French cities averaged
// into the national temperature.
var DefaultCityIDs = []string{
	"3030300", "6455259", "6441375", "6454573",
	"3024635", "6453974", "4923747", "6454924",
}

type Config struct {
	Server struct {
		Port           string
		ReadTimeout    time.Duration
		WriteTimeout   time.Duration
		RequestTimeout time.Duration
		LogLevel       string
	}

	RTE struct {
		AccountToken string
		BaseURL      string
	}

	OpenWeather struct {
		APIKey  string
		BaseURL string
		CityIDs []string
	}

	Upstream struct {
		Timeout        time.Duration
		StartupTimeout time.Duration
	}

	Scheduler struct {
		Schedule string
		Timeout  time.Duration
	}

	Cache struct {
		Backend          string
		Duration         time.Duration
		MaxSize          int
		MemcachedServers string
	}

	CircuitBreaker struct {
		Threshold int
		Timeout   time.Duration
	}

	Retry struct {
		MaxRetries int
		Delay      time.Duration
		Multiplier float64
	}
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		zap.L().Info("No .env file found, using environment variables")
	}

	cfg := &Config{}

	// Server configuration
	cfg.Server.Port = getEnv("PORT", "3000")
	cfg.Server.ReadTimeout = parseDuration(getEnv("READ_TIMEOUT", "10s"))
	cfg.Server.WriteTimeout = parseDuration(getEnv("WRITE_TIMEOUT", "20s"))
	cfg.Server.RequestTimeout = parseDuration(getEnv("REQUEST_TIMEOUT", "15s"))
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", "info")

	// Upstream credentials and endpoints
	cfg.RTE.AccountToken = getEnv("RTE_ACCOUNT_TOKEN", "")
	cfg.RTE.BaseURL = strings.TrimRight(getEnv("RTE_BASE_URL", "https://digital.iservices.rte-france.com"), "/")
	cfg.OpenWeather.APIKey = getEnv("OPEN_WEATHER_TOKEN", "")
	cfg.OpenWeather.BaseURL = strings.TrimRight(getEnv("OPENWEATHER_URL", "https://api.openweathermap.org/data/2.5"), "/")
	cfg.OpenWeather.CityIDs = DefaultCityIDs
	if ids := splitList(getEnv("OPENWEATHER_CITY_IDS", "")); len(ids) > 0 {
		cfg.OpenWeather.CityIDs = ids
	}

	cfg.Upstream.Timeout = parseDuration(getEnv("UPSTREAM_TIMEOUT", "10s"))
	cfg.Upstream.StartupTimeout = parseDuration(getEnv("STARTUP_TIMEOUT", "60s"))

	// Refresh policy
	cfg.Scheduler.Schedule = getEnv("REFRESH_SCHEDULE", "@every 5m")
	cfg.Scheduler.Timeout = parseDuration(getEnv("REFRESH_TIMEOUT", "60s"))

	// Cache configuration
	cfg.Cache.Backend = strings.ToLower(getEnv("CACHE_BACKEND", CacheBackendMemory))
	cfg.Cache.Duration = parseDuration(getEnv("CACHE_DURATION", "10m"))
	cfg.Cache.MaxSize = parseInt(getEnv("MAX_CACHE_SIZE", "100"))
	cfg.Cache.MemcachedServers = getEnv("MEMCACHED_SERVERS", "localhost:11211")

	// Circuit breaker configuration
	cfg.CircuitBreaker.Threshold = parseInt(getEnv("CIRCUIT_BREAKER_THRESHOLD", "3"))
	cfg.CircuitBreaker.Timeout = parseDuration(getEnv("CIRCUIT_BREAKER_TIMEOUT", "30s"))

	// Retry configuration
	cfg.Retry.MaxRetries = parseInt(getEnv("MAX_RETRIES", "3"))
	cfg.Retry.Delay = parseDuration(getEnv("RETRY_DELAY", "1s"))
	cfg.Retry.Multiplier = parseFloat(getEnv("RETRY_MULTIPLIER", "2"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every missing credential and unusable value at once.
func (c *Config) Validate() error {
	var errs []error

	if c.RTE.AccountToken == "" {
		errs = append(errs, errors.New("RTE_ACCOUNT_TOKEN is required"))
	}
	if c.OpenWeather.APIKey == "" {
		errs = append(errs, errors.New("OPEN_WEATHER_TOKEN is required"))
	}
	if len(c.OpenWeather.CityIDs) == 0 {
		errs = append(errs, errors.New("OPENWEATHER_CITY_IDS must not be empty"))
	}

	durations := map[string]time.Duration{
		"READ_TIMEOUT":            c.Server.ReadTimeout,
		"WRITE_TIMEOUT":           c.Server.WriteTimeout,
		"REQUEST_TIMEOUT":         c.Server.RequestTimeout,
		"UPSTREAM_TIMEOUT":        c.Upstream.Timeout,
		"STARTUP_TIMEOUT":         c.Upstream.StartupTimeout,
		"REFRESH_TIMEOUT":         c.Scheduler.Timeout,
		"CACHE_DURATION":          c.Cache.Duration,
		"CIRCUIT_BREAKER_TIMEOUT": c.CircuitBreaker.Timeout,
	}
	for name, d := range durations {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive duration", name))
		}
	}

	switch c.Cache.Backend {
	case CacheBackendMemory:
		if c.Cache.MaxSize <= 0 {
			errs = append(errs, errors.New("MAX_CACHE_SIZE must be positive"))
		}
	case CacheBackendMemcached:
		if len(splitList(c.Cache.MemcachedServers)) == 0 {
			errs = append(errs, errors.New("MEMCACHED_SERVERS is required for the memcached backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_BACKEND %q", c.Cache.Backend))
	}

	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("MAX_RETRIES must not be negative"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("RETRY_MULTIPLIER must be at least 1"))
	}
	if c.CircuitBreaker.Threshold <= 0 {
		errs = append(errs, errors.New("CIRCUIT_BREAKER_THRESHOLD must be positive"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseDuration(value string) time.Duration {
	duration, err := time.ParseDuration(value)
	if err != nil {
		zap.L().Warn("Failed to parse duration", zap.String("value", value), zap.Error(err))
		return 0
	}
	return duration
}

func parseInt(value string) int {
	intValue, err := strconv.Atoi(value)
	if err != nil {
		zap.L().Warn("Failed to parse int", zap.String("value", value), zap.Error(err))
		return 0
	}
	return intValue
}

func parseFloat(value string) float64 {
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		zap.L().Warn("Failed to parse float", zap.String("value", value), zap.Error(err))
		return 0
	}
	return floatValue
}
