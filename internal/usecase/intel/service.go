package intel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"channel-insights/internal/domain"
	"channel-insights/internal/infra/metrics"
)

var (
	// ErrEmptyChannel возвращается, если не указан идентификатор канала.
	ErrEmptyChannel = errors.New("не указан канал")
	// ErrMessageSource оборачивает любые ошибки выгрузки сообщений.
	ErrMessageSource = errors.New("ошибка источника сообщений")
	// ErrInvalidDays возвращается для некорректной длины ряда тональности.
	ErrInvalidDays = errors.New("некорректное число дней")
)

const (
	DefaultCacheTTL     = 5 * time.Minute
	DefaultBuildTimeout = 30 * time.Second
	DefaultAlertDays    = 7
	maxTrendDays        = 366
)

// Service строит аналитику каналов и кэширует результат.
type Service struct {
	source       domain.MessageSource
	senders      domain.SenderDirectory
	analyzer     domain.DigestAnalyzer
	log          zerolog.Logger
	now          func() time.Time
	loc          *time.Location
	ttl          time.Duration
	buildTimeout time.Duration
	alertDays    int

	digests *TTLCache[domain.Digest]
	trends  *TTLCache[domain.SentimentTrend]
	flights singleflight.Group
}

// Option настраивает Service.
type Option func(*Service)

// WithSenderDirectory включает подстановку имён отправителей.
func WithSenderDirectory(senders domain.SenderDirectory) Option {
	return func(s *Service) { s.senders = senders }
}

// WithAnalyzer включает анализ внешней моделью с откатом на локальные эвристики.
func WithAnalyzer(analyzer domain.DigestAnalyzer) Option {
	return func(s *Service) { s.analyzer = analyzer }
}

// WithLogger задаёт логгер.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithClock подменяет часы.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation задаёт часовой пояс для границ дней.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

// WithCacheTTL задаёт время жизни кэша.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// WithBuildTimeout ограничивает время одной сборки дайджеста.
func WithBuildTimeout(timeout time.Duration) Option {
	return func(s *Service) { s.buildTimeout = timeout }
}

// WithAlertDays задаёт длину ряда для поиска алертов.
func WithAlertDays(days int) Option {
	return func(s *Service) { s.alertDays = days }
}

// NewService создаёт сервис аналитики.
func NewService(source domain.MessageSource, opts ...Option) *Service {
	s := &Service{
		source:       source,
		log:          zerolog.Nop(),
		now:          time.Now,
		loc:          time.UTC,
		ttl:          DefaultCacheTTL,
		buildTimeout: DefaultBuildTimeout,
		alertDays:    DefaultAlertDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.alertDays <= 0 {
		s.alertDays = DefaultAlertDays
	}
	s.digests = NewTTLCache[domain.Digest](s.ttl, s.now)
	s.trends = NewTTLCache[domain.SentimentTrend](s.ttl, s.now)
	return s
}

// GenerateDigest возвращает дайджест канала за окно rangeKey.
// Свежий результат берётся из кэша без обращения к источнику. Одновременные запросы
// с одним ключом ждут одну сборку; отмена ctx прекращает ожидание вызывающего.
func (s *Service) GenerateDigest(ctx context.Context, channelID, rangeKey string) (domain.Digest, error) {
	if channelID == "" {
		return domain.Digest{}, ErrEmptyChannel
	}
	if rangeKey == "" {
		rangeKey = RangeLast4h
	}
	key := flightKey(channelID, rangeKey)
	if cached, ok := s.digests.Get(channelID, rangeKey); ok {
		metrics.ObserveCache(true)
		s.log.Debug().Str("channel", channelID).Str("range", rangeKey).Msg("intel: дайджест из кэша")
		return cached, nil
	}
	metrics.ObserveCache(false)

	ch := s.flights.DoChan(key, func() (any, error) {
		if cached, ok := s.digests.Get(channelID, rangeKey); ok {
			return cached, nil
		}
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.buildTimeout)
		defer cancel()
		digest, err := s.buildDigest(buildCtx, channelID, rangeKey)
		if err != nil {
			return domain.Digest{}, err
		}
		s.digests.Set(channelID, rangeKey, digest)
		return digest, nil
	})

	select {
	case <-ctx.Done():
		return domain.Digest{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Digest{}, res.Err
		}
		return res.Val.(domain.Digest), nil
	}
}

// ChannelSentiment считает тональность за сегодня без кэша.
func (s *Service) ChannelSentiment(ctx context.Context, channelID string) (domain.SentimentSummary, error) {
	messages, err := s.fetchRange(ctx, channelID, RangeToday)
	if err != nil {
		return domain.SentimentSummary{}, err
	}
	return ChannelSentiment(messages), nil
}

// Topics возвращает темы сообщений за сегодня без кэша.
func (s *Service) Topics(ctx context.Context, channelID string) ([]domain.TopicCount, error) {
	messages, err := s.fetchRange(ctx, channelID, RangeToday)
	if err != nil {
		return nil, err
	}
	return ExtractTopics(messages), nil
}

// ActionItems возвращает действия из сообщений за сегодня без кэша.
func (s *Service) ActionItems(ctx context.Context, channelID string) ([]domain.ActionItem, error) {
	messages, err := s.fetchRange(ctx, channelID, RangeToday)
	if err != nil {
		return nil, err
	}
	return DetectActionItems(messages), nil
}

// SentimentTrend строит дневной ряд тональности за days дней.
// Ряд кэшируется по ключу (канал, дни, число сообщений на момент вызова).
func (s *Service) SentimentTrend(ctx context.Context, channelID string, days int) (domain.SentimentTrend, error) {
	if days <= 0 || days > maxTrendDays {
		return domain.SentimentTrend{}, fmt.Errorf("%w: %d", ErrInvalidDays, days)
	}
	messages, err := s.fetchRange(ctx, channelID, DayRangeKey(days))
	if err != nil {
		return domain.SentimentTrend{}, err
	}
	key := fmt.Sprintf("%dd-%d", days, len(messages))
	if cached, ok := s.trends.Get(channelID, key); ok {
		return cached, nil
	}
	trend := Trend(messages, days, s.now(), s.loc)
	s.trends.Set(channelID, key, trend)
	return trend, nil
}

// SentimentAlerts ищет падения тональности канала за последние дни.
func (s *Service) SentimentAlerts(ctx context.Context, channelID, channelName string) ([]domain.SentimentAlert, error) {
	trend, err := s.SentimentTrend(ctx, channelID, s.alertDays)
	if err != nil {
		return nil, err
	}
	return AlertsFor(channelID, channelName, trend.Data), nil
}

// AlertsAcross собирает алерты нескольких каналов и сортирует по убыванию падения.
// Ошибка одного канала не прерывает обход остальных.
func (s *Service) AlertsAcross(ctx context.Context, channels []domain.Channel) ([]domain.SentimentAlert, error) {
	all := make([]domain.SentimentAlert, 0)
	var errs []error
	for _, ch := range channels {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		alerts, err := s.SentimentAlerts(ctx, ch.ID, ch.Name)
		if err != nil {
			errs = append(errs, fmt.Errorf("канал %s: %w", ch.ID, err))
			continue
		}
		all = append(all, alerts...)
	}
	SortAlertsByDrop(all)
	return all, errors.Join(errs...)
}

// ClearCache сбрасывает кэш канала или весь кэш, если channelID пуст.
func (s *Service) ClearCache(channelID string) {
	if channelID == "" {
		s.digests.Clear()
		s.trends.Clear()
		s.log.Debug().Msg("intel: кэш очищен полностью")
		return
	}
	removed := s.digests.DeleteChannel(channelID) + s.trends.DeleteChannel(channelID)
	s.log.Debug().Str("channel", channelID).Int("removed", removed).Msg("intel: кэш канала очищен")
}

func (s *Service) buildDigest(ctx context.Context, channelID, rangeKey string) (domain.Digest, error) {
	start := time.Now()
	defer func() { metrics.DigestBuildSeconds.Observe(time.Since(start).Seconds()) }()
	metrics.IncDigestForChannel(channelID)

	window := ResolveRange(rangeKey, s.now(), s.loc)
	messages, err := s.fetch(ctx, channelID, window)
	if err != nil {
		return domain.Digest{}, err
	}
	if len(messages) == 0 {
		return emptyDigest(channelID, window, s.now()), nil
	}

	if s.analyzer != nil {
		result, err := s.analyzer.Analyze(ctx, messages)
		if err == nil {
			return s.assembleAnalyzed(channelID, window, messages, result), nil
		}
		metrics.AnalyzerFallbacks.Inc()
		s.log.Warn().Err(err).Str("channel", channelID).Msg("intel: внешний анализ недоступен, используем локальный")
	}
	return s.assembleLocal(channelID, window, messages), nil
}

func (s *Service) fetchRange(ctx context.Context, channelID, rangeKey string) ([]domain.Message, error) {
	if channelID == "" {
		return nil, ErrEmptyChannel
	}
	return s.fetch(ctx, channelID, ResolveRange(rangeKey, s.now(), s.loc))
}

func (s *Service) fetch(ctx context.Context, channelID string, window domain.TimeWindow) ([]domain.Message, error) {
	raw, err := s.source.FetchMessages(ctx, channelID, window.Start, window.End)
	if err != nil {
		s.log.Error().Err(err).Str("channel", channelID).Str("range", window.Key).Msg("intel: не удалось получить сообщения")
		return nil, fmt.Errorf("%w: %w", ErrMessageSource, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	messages := make([]domain.Message, len(raw))
	copy(messages, raw)
	s.resolveSenders(ctx, messages)
	return messages, nil
}

func (s *Service) resolveSenders(ctx context.Context, messages []domain.Message) {
	if s.senders == nil {
		return
	}
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, m := range messages {
		if m.SenderID == "" {
			continue
		}
		if _, ok := seen[m.SenderID]; ok {
			continue
		}
		seen[m.SenderID] = struct{}{}
		ids = append(ids, m.SenderID)
	}
	if len(ids) == 0 {
		return
	}
	infos, err := s.senders.FetchSenders(ctx, ids)
	if err != nil {
		s.log.Warn().Err(err).Int("senders", len(ids)).Msg("intel: не удалось получить имена отправителей")
		return
	}
	for i := range messages {
		info, ok := infos[messages[i].SenderID]
		if !ok {
			continue
		}
		messages[i].SenderName = info.Name
		messages[i].SenderAvatar = info.AvatarURL
	}
}

func (s *Service) assembleLocal(channelID string, window domain.TimeWindow, messages []domain.Message) domain.Digest {
	return domain.Digest{
		ChannelID:         channelID,
		TimeRange:         window.Key,
		TimeRangeLabel:    window.Label,
		MessageCount:      len(messages),
		ParticipantCount:  CountParticipants(messages),
		Decisions:         safeExtract(s.log, "decisions", func() []domain.Insight { return DetectDecisions(messages) }),
		ActionItems:       safeExtract(s.log, "action_items", func() []domain.ActionItem { return DetectActionItems(messages) }),
		ImportantMessages: safeExtract(s.log, "important", func() []domain.Insight { return FindImportantMessages(messages) }),
		Questions:         safeExtract(s.log, "questions", func() []domain.Question { return FindQuestions(messages) }),
		Sentiment:         s.windowSentiment(window, messages),
		Topics:            safeExtract(s.log, "topics", func() []domain.TopicCount { return ExtractTopics(messages) }),
		Keywords:          safeExtract(s.log, "keywords", func() []domain.TopicCount { return ExtractKeywords(messages) }),
		Mentions:          safeExtract(s.log, "mentions", func() []domain.MentionCount { return ExtractMentions(messages) }),
		GeneratedAt:       s.now(),
	}
}

func (s *Service) windowSentiment(window domain.TimeWindow, messages []domain.Message) domain.SentimentSummary {
	summary := ChannelSentiment(messages)
	summary.Trend = Trend(messages, windowDays(window), window.End.Add(-time.Nanosecond), s.loc).Trend
	return summary
}

func emptyDigest(channelID string, window domain.TimeWindow, now time.Time) domain.Digest {
	return domain.Digest{
		ChannelID:         channelID,
		TimeRange:         window.Key,
		TimeRangeLabel:    window.Label,
		Decisions:         []domain.Insight{},
		ActionItems:       []domain.ActionItem{},
		ImportantMessages: []domain.Insight{},
		Questions:         []domain.Question{},
		Sentiment:         domain.SentimentSummary{Score: neutralScore, Label: domain.LabelNoActivity, Trend: domain.TrendStable},
		Topics:            []domain.TopicCount{},
		Keywords:          []domain.TopicCount{},
		Mentions:          []domain.MentionCount{},
		GeneratedAt:       now,
	}
}

// safeExtract превращает панику экстрактора в пустой результат.
func safeExtract[T any](log zerolog.Logger, name string, fn func() []T) (out []T) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ExtractorPanics.WithLabelValues(name).Inc()
			log.Error().Interface("panic", r).Str("extractor", name).Msg("intel: экстрактор упал, результат пуст")
			out = []T{}
		}
	}()
	return fn()
}

// flightKey однозначно кодирует пару (канал, окно) для singleflight.
func flightKey(channelID, rangeKey string) string {
	return strconv.Itoa(len(channelID)) + ":" + channelID + "/" + rangeKey
}
