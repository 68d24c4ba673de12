package config

import (
	"net/url"
)

const redacted = "***"

// Redacted returns a copy of c that is safe to log.
func (c *Config) Redacted() Config {
	out := *c
	redact(&out.Server.APIKey)
	out.Database.URL = redactURL(c.Database.URL)
	redact(&out.Marketplace.AuthToken)
	redact(&out.Marketplace.InstallationID)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	return out
}

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

// redactURL keeps the host of a DSN but drops its password.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return redacted
	}
	return u.Redacted()
}
