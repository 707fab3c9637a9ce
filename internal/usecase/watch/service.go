package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"channel-insights/internal/domain"
	"channel-insights/internal/infra/metrics"
)

// DefaultDedupeTTL задаёт, сколько помнить доставленный алерт.
const DefaultDedupeTTL = 24 * time.Hour

// AlertSource собирает алерты по набору каналов.
type AlertSource interface {
	AlertsAcross(ctx context.Context, channels []domain.Channel) ([]domain.SentimentAlert, error)
}

// Report описывает результат одного прохода.
type Report struct {
	Channels  int
	Alerts    int
	Delivered int
}

// Service периодически ищет падения тональности и доставляет каждый алерт один раз.
type Service struct {
	channels  domain.ChannelDirectory
	alerts    AlertSource
	once      domain.OnceStore
	notifier  domain.AlertNotifier
	dedupeTTL time.Duration
	log       zerolog.Logger
}

// NewService создаёт сканер алертов. Без once используется память процесса.
func NewService(channels domain.ChannelDirectory, alerts AlertSource, once domain.OnceStore, notifier domain.AlertNotifier, dedupeTTL time.Duration, log zerolog.Logger) *Service {
	if dedupeTTL <= 0 {
		dedupeTTL = DefaultDedupeTTL
	}
	if once == nil {
		once = NewMemoryOnce(time.Now)
	}
	return &Service{channels: channels, alerts: alerts, once: once, notifier: notifier, dedupeTTL: dedupeTTL, log: log}
}

// Run выполняет Scan сразу и затем каждые interval до отмены ctx.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		report, err := s.Scan(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("watch: проход завершился с ошибками")
		}
		s.log.Info().
			Int("channels", report.Channels).
			Int("alerts", report.Alerts).
			Int("delivered", report.Delivered).
			Msg("watch: проход завершён")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Scan проверяет все каналы и отправляет новые алерты.
func (s *Service) Scan(ctx context.Context) (Report, error) {
	var report Report
	channels, err := s.channels.ListChannels(ctx)
	if err != nil {
		return report, fmt.Errorf("список каналов: %w", err)
	}
	report.Channels = len(channels)

	var errs []error
	alerts, err := s.alerts.AlertsAcross(ctx, channels)
	if err != nil {
		s.log.Warn().Err(err).Msg("watch: алерты собраны не по всем каналам")
		errs = append(errs, err)
	}
	report.Alerts = len(alerts)

	for _, alert := range alerts {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		err := s.once.Once(ctx, "alert:"+alert.ID, s.dedupeTTL, func() error {
			if err := s.notifier.NotifyAlert(ctx, alert); err != nil {
				return err
			}
			report.Delivered++
			metrics.IncAlert(string(alert.Severity))
			s.log.Info().
				Str("alert", alert.ID).
				Str("severity", string(alert.Severity)).
				Int("drop", alert.Drop).
				Msg("watch: алерт отправлен")
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("алерт %s: %w", alert.ID, err))
		}
	}
	return report, errors.Join(errs...)
}

// MemoryOnce хранит отметки OnceStore в памяти процесса.
type MemoryOnce struct {
	mu   sync.Mutex
	now  func() time.Time
	seen map[string]time.Time
}

// NewMemoryOnce создаёт хранилище отметок в памяти.
func NewMemoryOnce(now func() time.Time) *MemoryOnce {
	if now == nil {
		now = time.Now
	}
	return &MemoryOnce{now: now, seen: make(map[string]time.Time)}
}

// Once выполняет fn, если ключ не отмечен или отметка истекла. Ошибка fn снимает отметку.
func (m *MemoryOnce) Once(_ context.Context, key string, ttl time.Duration, fn func() error) error {
	m.mu.Lock()
	if expires, ok := m.seen[key]; ok && m.now().Before(expires) {
		m.mu.Unlock()
		return nil
	}
	m.seen[key] = m.now().Add(ttl)
	m.mu.Unlock()

	if err := fn(); err != nil {
		m.mu.Lock()
		delete(m.seen, key)
		m.mu.Unlock()
		return err
	}
	return nil
}
