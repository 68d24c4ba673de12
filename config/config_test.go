package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/models"
)

const sampleConfig = `
log_level = "debug"
currency = "UZS"

[database]
url = "postgres://tracker:hunter2@db:5432/prices?sslmode=disable"

[scheduler]
interval = "15m"
workers = 2

[marketplace]
language = "ru-RU"

[[items]]
name = "Kettle"
url = "https://uzum.uz/ru/product/chainik-1761000"
target_price = 250000
notify_on_any_drop = true

[[items]]
name = "Redline"
steam_appid = 730
steam_market_hash_name = "AK-47 | Redline (Field-Tested)"
target_price = 12.5
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig), true)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.Currency != "UZS" {
		t.Errorf("top-level values not decoded: %+v", cfg)
	}
	if cfg.Scheduler.Interval.Duration != 15*time.Minute || cfg.Scheduler.Workers != 2 {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if !cfg.Scheduler.RunOnStart || cfg.Server.Port != 8080 {
		t.Errorf("defaults lost: run_on_start=%v port=%d", cfg.Scheduler.RunOnStart, cfg.Server.Port)
	}
	if cfg.Marketplace.Language != "ru-RU" || cfg.Marketplace.APIBase == "" {
		t.Errorf("marketplace = %+v", cfg.Marketplace)
	}

	if len(cfg.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(cfg.Items))
	}
	if it := cfg.Items[0]; it.TargetPrice == nil || it.TargetPrice.String() != "250000" || !it.NotifyOnAnyDrop {
		t.Errorf("items[0] = %+v", it)
	}
	if it := cfg.Items[1]; it.SteamAppID != 730 || it.TargetPrice == nil || !it.TargetPrice.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("items[1] = %+v", it)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate error: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("PORT", "9090")
	t.Setenv("UZUM_AUTH_TOKEN", "tok")
	t.Setenv("UZUM_X_IID", "iid")
	t.Setenv("STEAM_CURRENCY", "5")
	t.Setenv("ALLOWED_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("CHECK_INTERVAL", "45m")

	cfg, err := Load(writeConfig(t, sampleConfig), true)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Database.URL != "postgres://env/db" || cfg.Server.Port != 9090 || cfg.GameMarket.Currency != 5 {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if !cfg.Marketplace.IsValid() {
		t.Error("marketplace credentials from env not applied")
	}
	if strings.Join(cfg.Server.AllowedOrigins, "|") != "https://a.test|https://b.test" {
		t.Errorf("allowed origins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Scheduler.Spec() != "@every 45m0s" {
		t.Errorf("Spec() = %q", cfg.Scheduler.Spec())
	}
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.toml")
	if _, err := Load(missing, true); err == nil {
		t.Error("missing required file accepted")
	}
	cfg, err := Load(missing, false)
	if err != nil {
		t.Fatalf("optional missing file: %v", err)
	}
	if cfg.Scheduler.Workers != Defaults().Scheduler.Workers {
		t.Error("defaults not returned for missing optional file")
	}
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	cfg.Scheduler.Workers = 0
	cfg.Scheduler.Interval = Duration{time.Second}
	cfg.S3.Bucket = "reports"
	cfg.Items = []models.ItemSpec{
		{URL: "https://a.test"},
		{Name: "no source"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	for _, want := range []string{"log_level", "database.url", "workers", "interval", "s3.region", "items[0]", "items[1]"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate error lacks %q:\n%v", want, err)
		}
	}

	cfg = Defaults()
	cfg.Database.URL = "postgres://x"
	cfg.Scheduler.Interval = Duration{}
	cfg.Scheduler.Cron = "*/5 * * * *"
	if err := cfg.Validate(); err != nil {
		t.Errorf("cron schedule rejected: %v", err)
	}
	if cfg.Scheduler.Spec() != "*/5 * * * *" {
		t.Errorf("Spec() = %q", cfg.Scheduler.Spec())
	}
}

func TestRedacted(t *testing.T) {
	cfg := Defaults()
	cfg.Database.URL = "postgres://tracker:hunter2@db:5432/prices"
	cfg.Marketplace.AuthToken = "secret-token"
	cfg.Notify.TelegramToken = "123:abc"
	cfg.Server.APIKey = "k"

	r := cfg.Redacted()
	if strings.Contains(r.Database.URL, "hunter2") || !strings.Contains(r.Database.URL, "db:5432") {
		t.Errorf("database url = %q", r.Database.URL)
	}
	if r.Marketplace.AuthToken != redacted || r.Notify.TelegramToken != redacted || r.Server.APIKey != redacted {
		t.Errorf("secrets leaked: %+v", r)
	}
	if r.Notify.DiscordWebhookURL != "" {
		t.Error("empty secret replaced with placeholder")
	}
	if cfg.Marketplace.AuthToken != "secret-token" {
		t.Error("Redacted modified the original")
	}
}

func TestExampleConfigIsValid(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pricewatch")

	cfg, err := Load(filepath.Join("..", "config.example.toml"), true)
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("example config does not validate: %v", err)
	}
	if len(cfg.Items) != 3 || cfg.Items[1].TargetPrice == nil || !cfg.Items[1].TargetPrice.Equal(decimal.RequireFromString("24.99")) {
		t.Errorf("items = %+v", cfg.Items)
	}
}
