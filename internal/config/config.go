package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rewired-gh/loadforecast/internal/holidays"
	"github.com/rewired-gh/loadforecast/internal/models"
)

// Config represents the complete application configuration
type Config struct {
	Forecast ForecastConfig `mapstructure:"forecast"`
	Input    InputConfig    `mapstructure:"input"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ForecastConfig holds model hyperparameters and the forecast horizon.
// Seasonality values are "auto", a boolean, or a Fourier term count.
type ForecastConfig struct {
	Country               string  `mapstructure:"country"`
	YearlySeasonality     any     `mapstructure:"yearly_seasonality"`
	WeeklySeasonality     any     `mapstructure:"weekly_seasonality"`
	DailySeasonality      any     `mapstructure:"daily_seasonality"`
	SeasonalityMode       string  `mapstructure:"seasonality_mode"`
	SeasonalityPriorScale float64 `mapstructure:"seasonality_prior_scale"`
	HolidaysPriorScale    float64 `mapstructure:"holidays_prior_scale"`
	ChangepointPriorScale float64 `mapstructure:"changepoint_prior_scale"`
	NChangepoints         int     `mapstructure:"n_changepoints"`
	IntervalWidth         float64 `mapstructure:"interval_width"`
	UncertaintySamples    int     `mapstructure:"uncertainty_samples"`
	Periods               int     `mapstructure:"periods"`
	Frequency             string  `mapstructure:"frequency"`
	Floor                 float64 `mapstructure:"floor"`
}

// InputConfig describes the load history CSV.
type InputConfig struct {
	Path            string `mapstructure:"path"`
	TimestampColumn string `mapstructure:"timestamp_column"`
	ValueColumn     string `mapstructure:"value_column"`
	Layout          string `mapstructure:"layout"`
	Location        string `mapstructure:"location"`
	// Before drops rows at or after this date (YYYY-MM-DD or RFC 3339).
	Before string `mapstructure:"before"`
}

// StorageConfig holds model persistence configuration
type StorageConfig struct {
	ModelPath       string `mapstructure:"model_path"`
	DoubleEncode    bool   `mapstructure:"double_encode"`
	RegistryPath    string `mapstructure:"registry_path"`
	ModelName       string `mapstructure:"model_name"`
	CacheSize       int    `mapstructure:"cache_size"`
	FilePermissions uint32 `mapstructure:"file_permissions"`
	DirPermissions  uint32 `mapstructure:"dir_permissions"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// MetricsConfig holds metrics export configuration
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level             string `mapstructure:"level"`
	Format            string `mapstructure:"format"`
	SuppressFitOutput bool   `mapstructure:"suppress_fit_output"`
}

// Load reads configuration from file and environment variables. An empty
// path uses defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override, e.g. LOADFORECAST_FORECAST_COUNTRY
	v.SetEnvPrefix("LOADFORECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Forecast defaults, tuned for quarter-hourly load data
	v.SetDefault("forecast.country", "BE")
	v.SetDefault("forecast.yearly_seasonality", "auto")
	v.SetDefault("forecast.weekly_seasonality", 28)
	v.SetDefault("forecast.daily_seasonality", true)
	v.SetDefault("forecast.seasonality_mode", models.ModeAdditive)
	v.SetDefault("forecast.seasonality_prior_scale", 10.0)
	v.SetDefault("forecast.holidays_prior_scale", 0.1)
	v.SetDefault("forecast.changepoint_prior_scale", 0.001)
	v.SetDefault("forecast.n_changepoints", 25)
	v.SetDefault("forecast.interval_width", 0.8)
	v.SetDefault("forecast.uncertainty_samples", 1000)
	v.SetDefault("forecast.periods", 96)
	v.SetDefault("forecast.frequency", "15 minutes")
	v.SetDefault("forecast.floor", 0.0)

	// Input defaults
	v.SetDefault("input.path", "")
	v.SetDefault("input.timestamp_column", "DateTime")
	v.SetDefault("input.value_column", "Load")
	v.SetDefault("input.layout", "")
	v.SetDefault("input.location", "UTC")
	v.SetDefault("input.before", "")

	// Storage defaults
	v.SetDefault("storage.model_path", "./data/model.json")
	v.SetDefault("storage.double_encode", false)
	v.SetDefault("storage.registry_path", "")
	v.SetDefault("storage.model_name", "load")
	v.SetDefault("storage.cache_size", 16)
	v.SetDefault("storage.file_permissions", 0o644)
	v.SetDefault("storage.dir_permissions", 0o755)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Metrics defaults
	v.SetDefault("metrics.textfile_path", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.suppress_fit_output", false)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Forecast config
	if _, err := holidays.Lookup(c.Forecast.Country); err != nil {
		return fmt.Errorf("forecast.country: %w", err)
	}
	if _, _, _, err := c.Forecast.Seasonalities(); err != nil {
		return err
	}
	if c.Forecast.SeasonalityMode != models.ModeAdditive && c.Forecast.SeasonalityMode != models.ModeMultiplicative {
		return fmt.Errorf("forecast.seasonality_mode must be one of: additive, multiplicative")
	}
	if c.Forecast.SeasonalityPriorScale <= 0 {
		return fmt.Errorf("forecast.seasonality_prior_scale must be positive")
	}
	if c.Forecast.HolidaysPriorScale <= 0 {
		return fmt.Errorf("forecast.holidays_prior_scale must be positive")
	}
	if c.Forecast.ChangepointPriorScale <= 0 {
		return fmt.Errorf("forecast.changepoint_prior_scale must be positive")
	}
	if c.Forecast.NChangepoints < 0 {
		return fmt.Errorf("forecast.n_changepoints must not be negative")
	}
	if c.Forecast.IntervalWidth <= 0 || c.Forecast.IntervalWidth >= 1 {
		return fmt.Errorf("forecast.interval_width must be between 0.0 and 1.0 (exclusive)")
	}
	if c.Forecast.UncertaintySamples < 0 {
		return fmt.Errorf("forecast.uncertainty_samples must not be negative")
	}
	if c.Forecast.Periods < 1 {
		return fmt.Errorf("forecast.periods must be at least 1")
	}
	if _, err := models.ParseFrequency(c.Forecast.Frequency); err != nil {
		return fmt.Errorf("forecast.frequency: %w", err)
	}

	// Validate Input config
	if c.Input.TimestampColumn == "" || c.Input.ValueColumn == "" {
		return fmt.Errorf("input.timestamp_column and input.value_column are required")
	}
	if _, err := c.Input.LoadLocation(); err != nil {
		return err
	}
	if _, err := c.Input.BeforeTime(); err != nil {
		return err
	}

	// Validate Storage config
	if c.Storage.ModelPath == "" {
		return fmt.Errorf("storage.model_path is required")
	}
	if c.Storage.RegistryPath != "" {
		if c.Storage.CacheSize < 1 {
			return fmt.Errorf("storage.cache_size must be at least 1")
		}
		if c.Storage.ModelName == "" {
			return fmt.Errorf("storage.model_name is required when the registry is enabled")
		}
	}
	if c.Storage.FilePermissions == 0 || c.Storage.FilePermissions > 0o777 {
		return fmt.Errorf("storage.file_permissions must be a permission mode between 0001 and 0777")
	}
	if c.Storage.DirPermissions == 0 || c.Storage.DirPermissions > 0o777 {
		return fmt.Errorf("storage.dir_permissions must be a permission mode between 0001 and 0777")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Telegram.MaxRetries < 0 {
		return fmt.Errorf("telegram.max_retries must not be negative")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Seasonalities parses the yearly, weekly and daily settings.
func (f ForecastConfig) Seasonalities() (yearly, weekly, daily models.Setting, err error) {
	if yearly, err = settingValue("forecast.yearly_seasonality", f.YearlySeasonality); err != nil {
		return
	}
	if weekly, err = settingValue("forecast.weekly_seasonality", f.WeeklySeasonality); err != nil {
		return
	}
	daily, err = settingValue("forecast.daily_seasonality", f.DailySeasonality)
	return
}

// settingValue accepts the YAML scalar as decoded or the string form used by
// environment overrides.
func settingValue(key string, v any) (models.Setting, error) {
	var s models.Setting
	var err error
	switch x := v.(type) {
	case nil:
		s = models.Auto()
	case bool:
		s = models.Off()
		if x {
			s = models.On()
		}
	case int:
		s = models.Terms(x)
		err = s.Validate()
	case int64:
		s = models.Terms(int(x))
		err = s.Validate()
	case float64:
		if x != math.Trunc(x) {
			err = fmt.Errorf("%w: %v is not an integer", models.ErrConfiguration, x)
			break
		}
		s = models.Terms(int(x))
		err = s.Validate()
	case string:
		s, err = models.ParseSetting(x)
	default:
		err = fmt.Errorf("%w: unsupported value %v", models.ErrConfiguration, v)
	}
	if err != nil {
		return models.Setting{}, fmt.Errorf("%s: %w", key, err)
	}
	return s, nil
}

// LoadLocation resolves the input time zone.
func (i InputConfig) LoadLocation() (*time.Location, error) {
	if i.Location == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(i.Location)
	if err != nil {
		return nil, fmt.Errorf("input.location: %w", err)
	}
	return loc, nil
}

// BeforeTime parses the input cutoff. The zero time means no cutoff.
func (i InputConfig) BeforeTime() (time.Time, error) {
	if i.Before == "" {
		return time.Time{}, nil
	}
	loc, err := i.LoadLocation()
	if err != nil {
		return time.Time{}, err
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, i.Before, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("input.before: invalid date %q", i.Before)
}

// FileMode returns the model file permissions.
func (s StorageConfig) FileMode() os.FileMode {
	return os.FileMode(s.FilePermissions)
}

// DirMode returns the model directory permissions.
func (s StorageConfig) DirMode() os.FileMode {
	return os.FileMode(s.DirPermissions)
}
