package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path over Defaults, loads .env when present and
// applies environment overrides. A missing file is only an error when the
// caller named it explicitly (required). The result is not validated.
func Load(path string, required bool) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || required {
				return nil, fmt.Errorf("config: load %s: %w", path, err)
			}
		}
	}

	// .env is optional.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides lets deployments inject secrets and endpoints without
// touching the file. Only non-empty variables override.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.LogLevel, "LOG_LEVEL")
	setStr(&cfg.Currency, "CURRENCY")

	setStr(&cfg.Server.Host, "HOST")
	setInt(&cfg.Server.Port, "PORT")
	setStringSlice(&cfg.Server.AllowedOrigins, "ALLOWED_ORIGINS")
	setStr(&cfg.Server.APIKey, "API_KEY")

	setStr(&cfg.Database.URL, "DATABASE_URL")

	setDuration(&cfg.Scheduler.Interval, "CHECK_INTERVAL")
	setStr(&cfg.Scheduler.Cron, "CHECK_CRON")
	setInt(&cfg.Scheduler.Workers, "CHECK_WORKERS")

	setStr(&cfg.Scraper.ChromiumPath, "CHROMIUM_PATH")
	setBool(&cfg.Scraper.BrowserEnabled, "BROWSER_ENABLED")

	setStr(&cfg.Marketplace.AuthToken, "UZUM_AUTH_TOKEN")
	setStr(&cfg.Marketplace.InstallationID, "UZUM_X_IID")
	setStr(&cfg.Marketplace.Language, "UZUM_LANG")
	setStr(&cfg.Marketplace.Region, "UZUM_REGION")
	setInt(&cfg.GameMarket.Currency, "STEAM_CURRENCY")

	setStr(&cfg.Notify.TelegramToken, "TG_BOT_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TG_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DISCORD_WEBHOOK_URL")

	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")

	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
