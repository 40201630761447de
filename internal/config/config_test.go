package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("RTE_ACCOUNT_TOKEN", "cnRlOnNlY3JldA==")
	t.Setenv("OPEN_WEATHER_TOKEN", "owm-key")
}

// TestLoadConfig_Defaults verifies defaults when only the credentials are set.
func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "3000" {
		t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "3000")
	}
	if cfg.Server.RequestTimeout != 15*time.Second {
		t.Errorf("Server.RequestTimeout = %v, want 15s", cfg.Server.RequestTimeout)
	}
	if cfg.RTE.BaseURL != "https://digital.iservices.rte-france.com" {
		t.Errorf("RTE.BaseURL = %q", cfg.RTE.BaseURL)
	}
	if len(cfg.OpenWeather.CityIDs) != 8 {
		t.Errorf("len(OpenWeather.CityIDs) = %d, want 8", len(cfg.OpenWeather.CityIDs))
	}
	if cfg.Scheduler.Schedule != "@every 5m" {
		t.Errorf("Scheduler.Schedule = %q, want %q", cfg.Scheduler.Schedule, "@every 5m")
	}
	if cfg.Cache.Backend != CacheBackendMemory {
		t.Errorf("Cache.Backend = %q, want %q", cfg.Cache.Backend, CacheBackendMemory)
	}
	if cfg.Cache.Duration != 10*time.Minute {
		t.Errorf("Cache.Duration = %v, want 10m", cfg.Cache.Duration)
	}
	if cfg.Retry.MaxRetries != 3 || cfg.Retry.Delay != time.Second || cfg.Retry.Multiplier != 2 {
		t.Errorf("Retry = %+v, want {3 1s 2}", cfg.Retry)
	}
}

// TestLoadConfig_Overrides verifies that environment values replace defaults.
func TestLoadConfig_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "8081")
	t.Setenv("RTE_BASE_URL", "http://rte.local/")
	t.Setenv("OPENWEATHER_CITY_IDS", " 1, 2 ,,3")
	t.Setenv("CACHE_BACKEND", "Memcached")
	t.Setenv("MEMCACHED_SERVERS", "mc1:11211,mc2:11211")
	t.Setenv("REFRESH_SCHEDULE", "*/15 * * * *")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "8081" {
		t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "8081")
	}
	if cfg.RTE.BaseURL != "http://rte.local" {
		t.Errorf("RTE.BaseURL = %q, want trailing slash trimmed", cfg.RTE.BaseURL)
	}
	if got := strings.Join(cfg.OpenWeather.CityIDs, ","); got != "1,2,3" {
		t.Errorf("OpenWeather.CityIDs = %q, want %q", got, "1,2,3")
	}
	if cfg.Cache.Backend != CacheBackendMemcached {
		t.Errorf("Cache.Backend = %q, want %q", cfg.Cache.Backend, CacheBackendMemcached)
	}
	if cfg.Scheduler.Schedule != "*/15 * * * *" {
		t.Errorf("Scheduler.Schedule = %q", cfg.Scheduler.Schedule)
	}
}

// TestLoadConfig_MissingCredentials verifies that both credentials are reported.
func TestLoadConfig_MissingCredentials(t *testing.T) {
	t.Setenv("RTE_ACCOUNT_TOKEN", "")
	t.Setenv("OPEN_WEATHER_TOKEN", "")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("LoadConfig() error = nil, want missing credentials")
	}
	for _, want := range []string{"RTE_ACCOUNT_TOKEN", "OPEN_WEATHER_TOKEN"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("LoadConfig() error = %q, want mention of %s", err, want)
		}
	}
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"bad duration", "CACHE_DURATION", "ten minutes", "CACHE_DURATION"},
		{"negative retries", "MAX_RETRIES", "-1", "MAX_RETRIES"},
		{"unknown backend", "CACHE_BACKEND", "redis", "CACHE_BACKEND"},
		{"multiplier below one", "RETRY_MULTIPLIER", "0.5", "RETRY_MULTIPLIER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.val)

			_, err := LoadConfig()
			if err == nil {
				t.Fatalf("LoadConfig() error = nil, want error for %s=%q", tt.key, tt.val)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadConfig() error = %q, want mention of %s", err, tt.want)
			}
		})
	}
}
