package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"channel-insights/internal/adapters/repo"
	"channel-insights/internal/adapters/telegram"
	"channel-insights/internal/domain"
	"channel-insights/internal/infra/cache"
	"channel-insights/internal/infra/config"
	"channel-insights/internal/infra/db"
	logpkg "channel-insights/internal/infra/log"
	"channel-insights/internal/infra/metrics"
	"channel-insights/internal/usecase/intel"
	"channel-insights/internal/usecase/watch"
)

func main() {
	cfg := config.Load()
	logger := logpkg.Component(logpkg.NewLogger(cfg.AppEnv), "watcher")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	metrics.StartServer(ctx, logger, cfg.MetricsAddr)

	if cfg.Telegram.Token == "" || cfg.Telegram.AlertChatID == 0 {
		logger.Fatal().Msg("watcher: TG_BOT_TOKEN и TG_ALERT_CHAT_ID обязательны")
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("watcher: неверный часовой пояс")
	}
	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("watcher: нет подключения к БД")
	}
	defer pool.Close()

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("watcher: не удалось создать бота")
	}

	var once domain.OnceStore
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		once = cache.NewRedisOnce(client, "channel-insights:")
	} else {
		logger.Warn().Msg("watcher: REDIS_ADDR не задан, дедупликация алертов в памяти процесса")
	}

	store := repo.NewPostgres(pool)
	svc := intel.NewService(store,
		intel.WithLogger(logpkg.Component(logger, "intel")),
		intel.WithLocation(loc),
		intel.WithCacheTTL(cfg.Digest.CacheTTL),
		intel.WithAlertDays(cfg.Alerts.Days),
	)
	watcher := watch.NewService(store, svc, once, telegram.NewNotifier(botAPI, cfg.Telegram.AlertChatID), cfg.Alerts.DedupeTTL, logger)

	logger.Info().Dur("interval", cfg.Alerts.WatchInterval).Msg("watcher: запущен")
	if err := watcher.Run(ctx, cfg.Alerts.WatchInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("watcher: остановлен с ошибкой")
	}
	logger.Info().Msg("watcher: остановка")
}
