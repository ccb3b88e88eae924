// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Provider   ProviderConfig   `mapstructure:"provider"`
	Predictor  PredictorConfig  `mapstructure:"predictor"`
	Sentiment  SentimentConfig  `mapstructure:"sentiment"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ProviderConfig holds market-data provider configuration.
type ProviderConfig struct {
	ScannerURL      string        `mapstructure:"scanner_url"`
	Exchange        string        `mapstructure:"exchange"`
	ScanLimit       int           `mapstructure:"scan_limit"`
	MaxClose        float64       `mapstructure:"max_close"`
	MinVolume       float64       `mapstructure:"min_volume"`
	MaxMarketCap    float64       `mapstructure:"max_market_cap"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelayBase  time.Duration `mapstructure:"retry_delay_base"`
	MaxInFlight     int           `mapstructure:"max_in_flight"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	BatchSize       int           `mapstructure:"batch_size"`
	BatchCooldown   time.Duration `mapstructure:"batch_cooldown"`
	BenchmarkSymbol string        `mapstructure:"benchmark_symbol"`
}

// PredictorConfig holds the external scoring model endpoint.
type PredictorConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SentimentConfig holds the optional news sentiment enricher.
type SentimentConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ClassifierConfig holds tiering thresholds.
type ClassifierConfig struct {
	StrongThreshold   float64 `mapstructure:"strong_threshold"`
	WatchThreshold    float64 `mapstructure:"watch_threshold"`
	BreakoutChangePct float64 `mapstructure:"breakout_change_pct"`
	VolumeMultiple    float64 `mapstructure:"volume_multiple"`
	VolumeBaseline    string  `mapstructure:"volume_baseline"` // "avg_volume" or "market_cap"
	MaxPerTier        int     `mapstructure:"max_per_tier"`
}

// EngineConfig holds classification cycle behavior.
type EngineConfig struct {
	MarketWeakPct float64 `mapstructure:"market_weak_pct"`
}

// NotifyConfig holds dispatcher behavior.
type NotifyConfig struct {
	MaxMessageLen int           `mapstructure:"max_message_len"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

// TelegramConfig holds the outbound notification channel.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	Enabled  bool   `mapstructure:"enabled"`
}

// ScheduleConfig holds cron specs for the periodic cycles.
type ScheduleConfig struct {
	ClassifySpec string `mapstructure:"classify_spec"`
	TrackSpec    string `mapstructure:"track_spec"`
	ReportSpec   string `mapstructure:"report_spec"`
	RunOnStart   bool   `mapstructure:"run_on_start"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("STOCKSCOUT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.scanner_url", "https://scanner.tradingview.com")
	v.SetDefault("provider.exchange", "NASDAQ")
	v.SetDefault("provider.scan_limit", 500)
	v.SetDefault("provider.max_close", 5.0)
	v.SetDefault("provider.min_volume", 1000000)
	v.SetDefault("provider.max_market_cap", 3200000000)
	v.SetDefault("provider.timeout", "10s")
	v.SetDefault("provider.max_retries", 3)
	v.SetDefault("provider.retry_delay_base", "1s")
	v.SetDefault("provider.max_in_flight", 8)
	v.SetDefault("provider.rate_per_second", 5.0)
	v.SetDefault("provider.batch_size", 50)
	v.SetDefault("provider.batch_cooldown", "3s")
	v.SetDefault("provider.benchmark_symbol", "SPY")

	v.SetDefault("predictor.timeout", "10s")

	v.SetDefault("sentiment.enabled", false)
	v.SetDefault("sentiment.base_url", "https://api.marketaux.com/v1")
	v.SetDefault("sentiment.timeout", "10s")

	v.SetDefault("classifier.strong_threshold", 90.0)
	v.SetDefault("classifier.watch_threshold", 80.0)
	v.SetDefault("classifier.breakout_change_pct", 25.0)
	v.SetDefault("classifier.volume_multiple", 2.0)
	v.SetDefault("classifier.volume_baseline", "avg_volume")
	v.SetDefault("classifier.max_per_tier", 3)

	v.SetDefault("engine.market_weak_pct", 1.0)

	v.SetDefault("notify.max_message_len", 4000)
	v.SetDefault("notify.max_retries", 3)
	v.SetDefault("notify.retry_delay", "5s")

	v.SetDefault("telegram.enabled", true)

	v.SetDefault("schedule.classify_spec", "@every 5m")
	v.SetDefault("schedule.track_spec", "@every 5m")
	v.SetDefault("schedule.report_spec", "30 23 * * *")
	v.SetDefault("schedule.run_on_start", false)

	v.SetDefault("storage.db_path", "./data/stockscout.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are usable.
func (c *Config) Validate() error {
	if c.Provider.ScannerURL == "" {
		return fmt.Errorf("provider.scanner_url is required")
	}
	if c.Provider.ScanLimit < 1 || c.Provider.ScanLimit > 2000 {
		return fmt.Errorf("provider.scan_limit must be between 1 and 2000")
	}
	if c.Provider.Timeout <= 0 {
		return fmt.Errorf("provider.timeout must be positive")
	}
	if c.Provider.MaxInFlight < 1 {
		return fmt.Errorf("provider.max_in_flight must be at least 1")
	}
	if c.Provider.BatchSize < 1 {
		return fmt.Errorf("provider.batch_size must be at least 1")
	}
	if c.Provider.RatePerSecond <= 0 {
		return fmt.Errorf("provider.rate_per_second must be positive")
	}

	if c.Classifier.StrongThreshold <= c.Classifier.WatchThreshold {
		return fmt.Errorf("classifier.strong_threshold must exceed watch_threshold")
	}
	if c.Classifier.WatchThreshold < 0 || c.Classifier.StrongThreshold > 100 {
		return fmt.Errorf("classifier thresholds must lie within [0,100]")
	}
	if c.Classifier.VolumeBaseline != "avg_volume" && c.Classifier.VolumeBaseline != "market_cap" {
		return fmt.Errorf("classifier.volume_baseline must be avg_volume or market_cap")
	}
	if c.Classifier.MaxPerTier < 1 {
		return fmt.Errorf("classifier.max_per_tier must be at least 1")
	}

	if c.Notify.MaxMessageLen < 1 {
		return fmt.Errorf("notify.max_message_len must be at least 1")
	}
	if c.Notify.MaxRetries < 1 {
		return fmt.Errorf("notify.max_retries must be at least 1")
	}

	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
	}

	if c.Sentiment.Enabled && c.Sentiment.APIKey == "" {
		return fmt.Errorf("sentiment.api_key is required when sentiment is enabled")
	}

	if c.Schedule.ClassifySpec == "" || c.Schedule.TrackSpec == "" {
		return fmt.Errorf("schedule.classify_spec and schedule.track_spec are required")
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	return nil
}
