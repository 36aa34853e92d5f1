package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// TestModeEnv set to "1" makes the console binary exit before start-up.
const TestModeEnv = "CONSOLE_TEST_MODE"

// InTestMode reports whether runtime side effects should be skipped.
func InTestMode() bool {
	return os.Getenv(TestModeEnv) == "1"
}

// Config holds runtime configuration for the console.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"45s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"40s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	APIBaseURL string        `envconfig:"API_BASE_URL" required:"true"`
	APIToken   string        `envconfig:"API_TOKEN"`
	APITimeout time.Duration `envconfig:"API_TIMEOUT" default:"30s"`

	RedisAddr    string        `envconfig:"REDIS_ADDR"`
	ListCacheTTL time.Duration `envconfig:"LIST_CACHE_TTL" default:"30s"`

	ScreensFile    string        `envconfig:"SCREENS_FILE"`
	FilterDebounce time.Duration `envconfig:"FILTER_DEBOUNCE" default:"500ms"`
	TimeZone       string        `envconfig:"TIME_ZONE" default:"Local"`
	NotifyTTL      time.Duration `envconfig:"NOTIFY_TTL" default:"4s"`

	SessionIdleTTL       time.Duration `envconfig:"SESSION_IDLE_TTL" default:"15m"`
	SessionSweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"1m"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"600"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("api base url must be an absolute URL")
	}
	if c.FilterDebounce <= 0 {
		return errors.New("filter debounce must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return errors.New("rate limit must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Location resolves TIME_ZONE, which anchors date-range filters.
func (c *Config) Location() (*time.Location, error) {
	if c == nil || c.TimeZone == "" || c.TimeZone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.TimeZone)
}

// Level parses LOG_LEVEL.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if c == nil || c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

// CacheEnabled reports whether list responses are cached in Redis.
func (c *Config) CacheEnabled() bool {
	return c != nil && c.RedisAddr != ""
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
