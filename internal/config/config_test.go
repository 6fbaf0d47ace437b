package config

import (
	"os"
	"testing"
	"time"

	"github.com/rewired-gh/loadforecast/internal/models"
)

func TestLoadAndValidate(t *testing.T) {
	// Create temp config file
	content := `
forecast:
  country: "Belgium"
  yearly_seasonality: false
  weekly_seasonality: 14
  daily_seasonality: auto
  periods: 192
  frequency: "30min"

input:
  path: "./miris_load_15.csv"
  before: "2019-06-20"

storage:
  model_path: "./data/test.json"
  double_encode: true
  registry_path: "./data/registry.db"

telegram:
  bot_token: "test_token"
  chat_id: "12345"
  enabled: true

logging:
  level: "debug"
  format: "text"
`
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	// Test Load
	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Verify values
	if cfg.Forecast.Periods != 192 {
		t.Errorf("Unexpected periods: %d", cfg.Forecast.Periods)
	}
	if cfg.Forecast.ChangepointPriorScale != 0.001 {
		t.Errorf("Expected default changepoint prior 0.001, got %f", cfg.Forecast.ChangepointPriorScale)
	}
	if !cfg.Storage.DoubleEncode {
		t.Error("Expected double_encode to be set")
	}
	if cfg.Storage.FileMode() != 0o644 {
		t.Errorf("Unexpected file mode: %v", cfg.Storage.FileMode())
	}

	yearly, weekly, daily, err := cfg.Forecast.Seasonalities()
	if err != nil {
		t.Fatalf("Seasonalities failed: %v", err)
	}
	if yearly != models.Off() || weekly != models.Terms(14) || daily != models.Auto() {
		t.Errorf("Unexpected seasonalities: %v %v %v", yearly, weekly, daily)
	}

	before, err := cfg.Input.BeforeTime()
	if err != nil {
		t.Fatalf("BeforeTime failed: %v", err)
	}
	if !before.Equal(time.Date(2019, 6, 20, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected cutoff: %v", before)
	}

	// Test Validate
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Forecast.Country != "BE" || cfg.Forecast.Frequency != "15 minutes" || cfg.Forecast.Periods != 96 {
		t.Errorf("Unexpected forecast defaults: %+v", cfg.Forecast)
	}

	yearly, weekly, daily, err := cfg.Forecast.Seasonalities()
	if err != nil {
		t.Fatalf("Seasonalities failed: %v", err)
	}
	if yearly != models.Auto() || weekly != models.Terms(28) || daily != models.On() {
		t.Errorf("Unexpected default seasonalities: %v %v %v", yearly, weekly, daily)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LOADFORECAST_FORECAST_COUNTRY", "NL")
	t.Setenv("LOADFORECAST_FORECAST_WEEKLY_SEASONALITY", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Forecast.Country != "NL" {
		t.Errorf("Expected country override, got %s", cfg.Forecast.Country)
	}
	_, weekly, _, err := cfg.Forecast.Seasonalities()
	if err != nil {
		t.Fatalf("Seasonalities failed: %v", err)
	}
	if weekly != models.Off() {
		t.Errorf("Expected weekly seasonality off, got %v", weekly)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return cfg
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown country", func(c *Config) { c.Forecast.Country = "Atlantis" }},
		{"zero weekly terms", func(c *Config) { c.Forecast.WeeklySeasonality = 0 }},
		{"fractional daily terms", func(c *Config) { c.Forecast.DailySeasonality = 2.5 }},
		{"bad seasonality string", func(c *Config) { c.Forecast.YearlySeasonality = "sometimes" }},
		{"invalid interval width", func(c *Config) { c.Forecast.IntervalWidth = 1.5 }},
		{"zero changepoint prior", func(c *Config) { c.Forecast.ChangepointPriorScale = 0 }},
		{"zero periods", func(c *Config) { c.Forecast.Periods = 0 }},
		{"calendar frequency", func(c *Config) { c.Forecast.Frequency = "MS" }},
		{"bad cutoff", func(c *Config) { c.Input.Before = "soon" }},
		{"unknown location", func(c *Config) { c.Input.Location = "Mars/Olympus" }},
		{"missing telegram token when enabled", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.ChatID = "1"
		}},
		{"registry without cache", func(c *Config) {
			c.Storage.RegistryPath = "./registry.db"
			c.Storage.CacheSize = 0
		}},
		{"invalid log level", func(c *Config) { c.Logging.Level = "trace" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() expected error for %s", tt.name)
			}
		})
	}
}
