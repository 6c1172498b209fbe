package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Retention RetentionConfig `yaml:"retention"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	History   HistoryConfig   `yaml:"history"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
}

// StorageConfig holds filesystem storage configuration.
type StorageConfig struct {
	DownloadsRoot string `yaml:"downloads_root" envconfig:"DOWNLOADS_ROOT"`
}

// RateLimitConfig holds the per-user sliding window.
type RateLimitConfig struct {
	Window time.Duration `yaml:"window" envconfig:"RATE_LIMIT_WINDOW"`
	Limit  int           `yaml:"limit" envconfig:"RATE_LIMIT"`
}

// RetentionConfig holds downloaded file cleanup configuration.
type RetentionConfig struct {
	Interval            time.Duration `yaml:"interval" envconfig:"RETENTION_INTERVAL"`
	MaxAge              time.Duration `yaml:"max_age" envconfig:"RETENTION_MAX_AGE"`
	DeleteAfterDelivery bool          `yaml:"delete_after_delivery" envconfig:"RETENTION_DELETE_AFTER_DELIVERY"`
}

// FetchConfig holds extractor configuration.
type FetchConfig struct {
	Binary        string        `yaml:"binary" envconfig:"FETCH_BINARY"`
	MaxConcurrent int           `yaml:"max_concurrent" envconfig:"FETCH_MAX_CONCURRENT"`
	SocketTimeout time.Duration `yaml:"socket_timeout" envconfig:"FETCH_SOCKET_TIMEOUT"`
	Retries       int           `yaml:"retries" envconfig:"FETCH_RETRIES"`
	Format        string        `yaml:"format" envconfig:"FETCH_FORMAT"`
	Deadline      time.Duration `yaml:"deadline" envconfig:"FETCH_DEADLINE"`
	CookiesFile   string        `yaml:"cookies_file" envconfig:"FETCH_COOKIES_FILE"`
}

// TelegramConfig holds bot transport configuration.
type TelegramConfig struct {
	Token       string `yaml:"token" envconfig:"TELEGRAM_BOT_TOKEN"`
	CacheChatID int64  `yaml:"cache_chat_id" envconfig:"TELEGRAM_CACHE_CHAT_ID"`
	Debug       bool   `yaml:"debug" envconfig:"TELEGRAM_DEBUG"`
	SendRetries int    `yaml:"send_retries" envconfig:"TELEGRAM_SEND_RETRIES"`
}

// HistoryConfig holds request history configuration. An empty path disables
// the history store.
type HistoryConfig struct {
	Path      string        `yaml:"path" envconfig:"HISTORY_PATH"`
	Retention time.Duration `yaml:"retention" envconfig:"HISTORY_RETENTION"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"` // json, text or auto
}

// Default returns the configuration used when neither file nor environment
// sets a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         9848,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
		Storage: StorageConfig{
			DownloadsRoot: "downloads",
		},
		RateLimit: RateLimitConfig{
			Window: time.Minute,
			Limit:  15,
		},
		Retention: RetentionConfig{
			Interval:            30 * time.Second,
			MaxAge:              30 * time.Second,
			DeleteAfterDelivery: true,
		},
		Fetch: FetchConfig{
			Binary:        "yt-dlp",
			MaxConcurrent: 30,
			SocketTimeout: 15 * time.Second,
			Retries:       3,
			Format:        "best",
			Deadline:      3 * time.Minute,
		},
		Telegram: TelegramConfig{
			SendRetries: 3,
		},
		History: HistoryConfig{
			Retention: 30 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads configuration from file and environment variables.
// Environment variables override file values, which override defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables. No default tags are used, so
	// values from the file survive unless the variable is set.
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Server.APIKey == "" && c.Telegram.Token == "" {
		return fmt.Errorf("API_KEY or TELEGRAM_BOT_TOKEN is required")
	}
	if c.Storage.DownloadsRoot == "" {
		return fmt.Errorf("DOWNLOADS_ROOT is required")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	if c.RateLimit.Limit <= 0 {
		return fmt.Errorf("RATE_LIMIT must be positive")
	}
	if c.Retention.Interval <= 0 {
		return fmt.Errorf("RETENTION_INTERVAL must be positive")
	}
	if c.Retention.MaxAge <= 0 {
		return fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Fetch.Binary == "" {
		return fmt.Errorf("FETCH_BINARY is required")
	}
	if c.Fetch.MaxConcurrent <= 0 {
		return fmt.Errorf("FETCH_MAX_CONCURRENT must be positive")
	}
	if c.Fetch.Retries < 0 {
		return fmt.Errorf("FETCH_RETRIES cannot be negative")
	}
	if c.Fetch.Deadline <= 0 {
		return fmt.Errorf("FETCH_DEADLINE must be positive")
	}
	if c.Telegram.SendRetries < 0 {
		return fmt.Errorf("TELEGRAM_SEND_RETRIES cannot be negative")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
