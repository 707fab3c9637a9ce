package config

import (
	"os"
	"testing"
	"time"
)

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestParseDefaults(t *testing.T) {
	unsetEnv(t, "ACTIVITY_QUEUE_BACKEND", "ACTIVITY_QUEUE_KEY", "TZ", "DIGEST_CACHE_TTL", "DIGEST_BUILD_TIMEOUT", "ALERT_DAYS")
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if cfg.Digest.CacheTTL != 5*time.Minute || cfg.Digest.BuildTimeout != 30*time.Second {
		t.Fatalf("неверные значения по умолчанию: %+v", cfg.Digest)
	}
	if cfg.Alerts.Days != 7 || cfg.Queues.Activity != "channel_activity" {
		t.Fatalf("неверные значения по умолчанию: %+v", cfg)
	}
	if loc, _ := cfg.Location(); loc != time.UTC {
		t.Fatalf("ожидали UTC")
	}
}

func TestParseOverrides(t *testing.T) {
	unsetEnv(t, "ALERT_DAYS", "DIGEST_BUILD_TIMEOUT")
	t.Setenv("DIGEST_CACHE_TTL", "90s")
	t.Setenv("ACTIVITY_QUEUE_BACKEND", "rabbitmq")
	t.Setenv("TZ", "Europe/Berlin")
	t.Setenv("TG_ALERT_CHAT_ID", "-100123")
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if cfg.Digest.CacheTTL != 90*time.Second || cfg.Queues.Backend != "rabbitmq" || cfg.Telegram.AlertChatID != -100123 {
		t.Fatalf("переменные окружения не применились: %+v", cfg)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Europe/Berlin" {
		t.Fatalf("ожидали Europe/Berlin, получили %v (%v)", loc, err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := map[string]map[string]string{
		"backend": {"ACTIVITY_QUEUE_BACKEND": "kafka"},
		"ttl":     {"DIGEST_CACHE_TTL": "0s"},
		"days":    {"ALERT_DAYS": "1"},
		"tz":      {"TZ": "Mars/Olympus"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			unsetEnv(t, "ACTIVITY_QUEUE_BACKEND", "TZ", "DIGEST_CACHE_TTL", "DIGEST_BUILD_TIMEOUT", "ALERT_DAYS")
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Parse(); err == nil {
				t.Fatalf("ожидали ошибку валидации")
			}
		})
	}
}
