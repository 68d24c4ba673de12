package config

import (
	"fmt"
	"strings"
	"time"

	"pricewatch/models"
)

// Config is the root configuration of the service.
type Config struct {
	LogLevel string `toml:"log_level"`
	// Currency is the label printed next to prices in alerts and logs.
	Currency string `toml:"currency"`

	Server      ServerConfig      `toml:"server"`
	Database    DatabaseConfig    `toml:"database"`
	Scheduler   SchedulerConfig   `toml:"scheduler"`
	Scraper     ScraperConfig     `toml:"scraper"`
	Marketplace MarketplaceConfig `toml:"marketplace"`
	GameMarket  GameMarketConfig  `toml:"game_market"`
	Notify      NotifyConfig      `toml:"notify"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`

	Items []models.ItemSpec `toml:"items"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Enabled        bool     `toml:"enabled"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
	// APIKey, when set, is required on every /api route.
	APIKey string `toml:"api_key"`
	// RateLimit is requests per second per client IP; zero disables it.
	RateLimit    float64  `toml:"rate_limit"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
	// AsyncWorkers bounds concurrently running API-triggered checks.
	AsyncWorkers int `toml:"async_workers"`
}

// Addr returns host:port for the listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL             string   `toml:"url"`
	MaxOpenConns    int      `toml:"max_open_conns"`
	MaxIdleConns    int      `toml:"max_idle_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
}

// SchedulerConfig controls the periodic check cycle.
type SchedulerConfig struct {
	Interval Duration `toml:"interval"`
	// Cron overrides Interval with a standard five-field cron expression.
	Cron        string   `toml:"cron"`
	Workers     int      `toml:"workers"`
	RunOnStart  bool     `toml:"run_on_start"`
	ItemTimeout Duration `toml:"item_timeout"`
	LockTTL     Duration `toml:"lock_ttl"`
}

// Spec returns the cron spec the scheduler should register.
func (s SchedulerConfig) Spec() string {
	if strings.TrimSpace(s.Cron) != "" {
		return s.Cron
	}
	return "@every " + s.Interval.String()
}

// ScraperConfig tunes the raw content sources.
type ScraperConfig struct {
	UserAgent      string   `toml:"user_agent"`
	RequestTimeout Duration `toml:"request_timeout"`
	HostInterval   Duration `toml:"host_interval"`
	HostBurst      int      `toml:"host_burst"`
	BrowserEnabled bool     `toml:"browser_enabled"`
	ChromiumPath   string   `toml:"chromium_path"`
	RenderTimeout  Duration `toml:"render_timeout"`
	RenderSettle   Duration `toml:"render_settle"`
}

// NotifyConfig holds alert channel credentials. Empty channels are skipped.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
}

// RedisConfig enables cross-instance item locks when Addr is set.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// S3Config enables cycle report archiving when Bucket is set.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// Enabled reports whether archiving is configured.
func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

// Duration wraps time.Duration so TOML can decode strings like "30m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Currency: "USD",
		Server: ServerConfig{
			Enabled:        true,
			Host:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: []string{"*"},
			RateLimit:      5,
			ReadTimeout:    Duration{15 * time.Second},
			WriteTimeout:   Duration{3 * time.Minute},
			AsyncWorkers:   3,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration{30 * time.Minute},
		},
		Scheduler: SchedulerConfig{
			Interval:    Duration{30 * time.Minute},
			Workers:     4,
			RunOnStart:  true,
			ItemTimeout: Duration{2 * time.Minute},
			LockTTL:     Duration{3 * time.Minute},
		},
		Scraper: ScraperConfig{
			RequestTimeout: Duration{30 * time.Second},
			HostInterval:   Duration{time.Second},
			HostBurst:      2,
			BrowserEnabled: true,
			RenderTimeout:  Duration{60 * time.Second},
			RenderSettle:   Duration{1500 * time.Millisecond},
		},
		Marketplace: DefaultMarketplaceConfig(),
		GameMarket: GameMarketConfig{
			Currency: 1,
		},
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate reports every impossible setting at once.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if c.Database.URL == "" {
		errs = append(errs, "database.url (or DATABASE_URL) is required")
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server.rate_limit must not be negative")
	}
	if c.Scheduler.Workers <= 0 {
		errs = append(errs, "scheduler.workers must be positive")
	}
	if strings.TrimSpace(c.Scheduler.Cron) == "" && c.Scheduler.Interval.Duration < time.Minute {
		errs = append(errs, "scheduler.interval must be at least 1m")
	}
	if c.Scheduler.ItemTimeout.Duration <= 0 {
		errs = append(errs, "scheduler.item_timeout must be positive")
	}
	if c.Scraper.RequestTimeout.Duration <= 0 {
		errs = append(errs, "scraper.request_timeout must be positive")
	}
	if c.GameMarket.Currency <= 0 {
		errs = append(errs, "game_market.currency must be a positive currency code")
	}
	if c.S3.Enabled() && c.S3.Region == "" {
		errs = append(errs, "s3.region is required when s3.bucket is set")
	}

	for i, it := range c.Items {
		hasURL := strings.TrimSpace(it.URL) != ""
		hasGame := it.SteamAppID != 0 || it.SteamMarketHashName != ""
		switch {
		case strings.TrimSpace(it.Name) == "":
			errs = append(errs, fmt.Sprintf("items[%d]: name is required", i))
		case !hasURL && !hasGame:
			errs = append(errs, fmt.Sprintf("items[%d] %q: url or steam_appid/steam_market_hash_name is required", i, it.Name))
		case hasGame && (it.SteamAppID <= 0 || it.SteamMarketHashName == ""):
			errs = append(errs, fmt.Sprintf("items[%d] %q: steam_appid and steam_market_hash_name go together", i, it.Name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
