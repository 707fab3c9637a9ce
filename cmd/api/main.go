package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"channel-insights/internal/adapters/analyzer"
	"channel-insights/internal/adapters/repo"
	"channel-insights/internal/domain"
	"channel-insights/internal/infra/config"
	"channel-insights/internal/infra/db"
	httpinfra "channel-insights/internal/infra/http"
	logpkg "channel-insights/internal/infra/log"
	"channel-insights/internal/infra/metrics"
	openai "channel-insights/internal/infra/openai"
	"channel-insights/internal/infra/queue"
	"channel-insights/internal/usecase/intel"
)

func main() {
	cfg := config.Load()
	logger := logpkg.Component(logpkg.NewLogger(cfg.AppEnv), "api")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("api: неверный часовой пояс")
	}
	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	store := repo.NewPostgres(pool)
	opts := []intel.Option{
		intel.WithSenderDirectory(store),
		intel.WithLogger(logpkg.Component(logger, "intel")),
		intel.WithLocation(loc),
		intel.WithCacheTTL(cfg.Digest.CacheTTL),
		intel.WithBuildTimeout(cfg.Digest.BuildTimeout),
		intel.WithAlertDays(cfg.Alerts.Days),
	}
	if cfg.OpenAI.APIKey != "" {
		client := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
		opts = append(opts, intel.WithAnalyzer(analyzer.NewLLM(client, cfg.OpenAI.Model, cfg.OpenAI.Timeout, 0)))
		logger.Info().Str("model", cfg.OpenAI.Model).Msg("api: внешний анализ включён")
	}
	svc := intel.NewService(store, opts...)

	apiOpts := []httpinfra.APIOption{
		httpinfra.WithChannelDirectory(store),
		httpinfra.WithAPILogger(logger),
	}
	activity, closer, err := newActivityQueue(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось подключить очередь активности")
	}
	if activity != nil {
		defer closer.Close()
		apiOpts = append(apiOpts, httpinfra.WithActivityQueue(activity))
		go func() {
			if err := svc.ConsumeActivity(ctx, activity); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("api: потребитель активности остановлен")
			}
		}()
		logger.Info().Str("backend", cfg.Queues.Backend).Str("queue", cfg.Queues.Activity).Msg("api: очередь активности подключена")
	} else {
		logger.Warn().Msg("api: очередь активности не настроена, кэш сбрасывается напрямую")
	}

	server := httpinfra.NewServer(logger)
	httpinfra.NewAPI(svc, apiOpts...).Mount(server.Router)

	go func() {
		if err := server.Start(":" + strconv.Itoa(cfg.Port)); err != nil {
			logger.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()
	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: остановка сервера")
	}
}

type closeFunc func() error

func (f closeFunc) Close() error { return f() }

// newActivityQueue подключает выбранный бэкенд; без адреса брокера возвращает nil.
// Оба бэкенда рассылают событие всем репликам api.
func newActivityQueue(ctx context.Context, cfg config.AppConfig) (domain.ActivityQueue, io.Closer, error) {
	switch cfg.Queues.Backend {
	case "rabbitmq":
		if cfg.RabbitMQURL == "" {
			return nil, nil, nil
		}
		q, err := queue.NewRabbitActivityQueue(cfg.RabbitMQURL, cfg.Queues.Activity)
		if err != nil {
			return nil, nil, err
		}
		return q, q, nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, nil, nil
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		q := queue.NewRedisActivityQueue(client, cfg.Queues.Activity)
		q.Subscribe(ctx)
		return q, closeFunc(func() error { return errors.Join(q.Close(), client.Close()) }), nil
	default:
		return nil, nil, fmt.Errorf("неизвестный бэкенд %q", cfg.Queues.Backend)
	}
}

