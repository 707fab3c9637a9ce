package config

import (
	"fmt"
	"log"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"UTC"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitMQURL string `envconfig:"RABBITMQ_URL"`

	Digest struct {
		CacheTTL     time.Duration `envconfig:"DIGEST_CACHE_TTL" default:"5m"`
		BuildTimeout time.Duration `envconfig:"DIGEST_BUILD_TIMEOUT" default:"30s"`
	} `envconfig:""`

	Alerts struct {
		Days          int           `envconfig:"ALERT_DAYS" default:"7"`
		WatchInterval time.Duration `envconfig:"WATCH_INTERVAL" default:"15m"`
		DedupeTTL     time.Duration `envconfig:"ALERT_DEDUPE_TTL" default:"24h"`
	} `envconfig:""`

	Queues struct {
		Backend  string `envconfig:"ACTIVITY_QUEUE_BACKEND" default:"redis"`
		Activity string `envconfig:"ACTIVITY_QUEUE_KEY" default:"channel_activity"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"60s"`
	} `envconfig:""`

	Telegram struct {
		Token       string `envconfig:"TG_BOT_TOKEN"`
		AlertChatID int64  `envconfig:"TG_ALERT_CHAT_ID"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает и проверяет конфиг без завершения процесса.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность значений.
func (c AppConfig) Validate() error {
	switch c.Queues.Backend {
	case "redis", "rabbitmq":
	default:
		return fmt.Errorf("неизвестный бэкенд очереди %q", c.Queues.Backend)
	}
	if c.Digest.CacheTTL <= 0 {
		return fmt.Errorf("DIGEST_CACHE_TTL должен быть положительным")
	}
	if c.Digest.BuildTimeout <= 0 {
		return fmt.Errorf("DIGEST_BUILD_TIMEOUT должен быть положительным")
	}
	if c.Alerts.WatchInterval <= 0 {
		return fmt.Errorf("WATCH_INTERVAL должен быть положительным")
	}
	if c.Alerts.Days < 2 {
		return fmt.Errorf("ALERT_DAYS должен быть не меньше 2")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location возвращает часовой пояс для границ дней.
func (c AppConfig) Location() (*time.Location, error) {
	if c.TZ == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		return nil, fmt.Errorf("часовой пояс %q: %w", c.TZ, err)
	}
	return loc, nil
}
