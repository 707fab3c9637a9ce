package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"channel-insights/internal/domain"
	"channel-insights/internal/usecase/intel"
)

const defaultTrendDays = 7

// Insights перечисляет операции аналитики, доступные через HTTP.
type Insights interface {
	GenerateDigest(ctx context.Context, channelID, rangeKey string) (domain.Digest, error)
	ChannelSentiment(ctx context.Context, channelID string) (domain.SentimentSummary, error)
	Topics(ctx context.Context, channelID string) ([]domain.TopicCount, error)
	ActionItems(ctx context.Context, channelID string) ([]domain.ActionItem, error)
	SentimentTrend(ctx context.Context, channelID string, days int) (domain.SentimentTrend, error)
	SentimentAlerts(ctx context.Context, channelID, channelName string) ([]domain.SentimentAlert, error)
	AlertsAcross(ctx context.Context, channels []domain.Channel) ([]domain.SentimentAlert, error)
	ClearCache(channelID string)
}

// API обслуживает Digest API поверх Insights.
type API struct {
	insights Insights
	channels domain.ChannelDirectory
	activity domain.ActivityQueue
	now      func() time.Time
	log      zerolog.Logger
}

// APIOption настраивает API.
type APIOption func(*API)

// WithChannelDirectory включает сводку алертов по всем каналам.
func WithChannelDirectory(channels domain.ChannelDirectory) APIOption {
	return func(a *API) { a.channels = channels }
}

// WithActivityQueue направляет события активности в очередь вместо прямой очистки кэша.
func WithActivityQueue(queue domain.ActivityQueue) APIOption {
	return func(a *API) { a.activity = queue }
}

// WithAPILogger задаёт логгер.
func WithAPILogger(log zerolog.Logger) APIOption {
	return func(a *API) { a.log = log }
}

// WithAPIClock подменяет часы.
func WithAPIClock(now func() time.Time) APIOption {
	return func(a *API) { a.now = now }
}

// NewAPI создаёт обработчики Digest API.
func NewAPI(insights Insights, opts ...APIOption) *API {
	a := &API{insights: insights, now: time.Now, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Mount регистрирует маршруты в r.
func (a *API) Mount(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Delete("/cache", a.handleClearAll)
		if a.channels != nil {
			r.Get("/alerts", a.handleAllAlerts)
		}
		r.Route("/channels/{id}", func(r chi.Router) {
			r.Get("/digest", a.handleDigest)
			r.Get("/sentiment", a.handleSentiment)
			r.Get("/topics", a.handleTopics)
			r.Get("/action-items", a.handleActionItems)
			r.Get("/trend", a.handleTrend)
			r.Get("/alerts", a.handleChannelAlerts)
			r.Delete("/cache", a.handleClearChannel)
			r.Post("/activity", a.handleActivity)
		})
	})
}

func (a *API) handleDigest(w http.ResponseWriter, r *http.Request) {
	digest, err := a.insights.GenerateDigest(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("range"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, digest)
}

func (a *API) handleSentiment(w http.ResponseWriter, r *http.Request) {
	summary, err := a.insights.ChannelSentiment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := a.insights.Topics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

func (a *API) handleActionItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.insights.ActionItems(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actionItems": items})
}

func (a *API) handleTrend(w http.ResponseWriter, r *http.Request) {
	days := defaultTrendDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "days must be an integer")
			return
		}
		days = parsed
	}
	trend, err := a.insights.SentimentTrend(r.Context(), chi.URLParam(r, "id"), days)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

func (a *API) handleChannelAlerts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	name := r.URL.Query().Get("name")
	if name == "" {
		name = id
	}
	alerts, err := a.insights.SentimentAlerts(r.Context(), id, name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

// handleAllAlerts отдаёт алерты по доступным каналам; ошибка отдельных каналов только логируется,
// пока хотя бы один канал дал результат.
func (a *API) handleAllAlerts(w http.ResponseWriter, r *http.Request) {
	channels, err := a.channels.ListChannels(r.Context())
	if err != nil {
		a.log.Error().Err(err).Msg("http: не удалось получить список каналов")
		writeError(w, http.StatusBadGateway, "channel directory unavailable")
		return
	}
	alerts, err := a.insights.AlertsAcross(r.Context(), channels)
	if err != nil {
		if len(alerts) == 0 && errors.Is(err, intel.ErrMessageSource) && len(channels) > 0 {
			a.fail(w, r, err)
			return
		}
		a.log.Warn().Err(err).Int("channels", len(channels)).Msg("http: алерты собраны не по всем каналам")
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (a *API) handleClearAll(w http.ResponseWriter, r *http.Request) {
	a.insights.ClearCache("")
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleClearChannel(w http.ResponseWriter, r *http.Request) {
	a.insights.ClearCache(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleActivity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	event := domain.NewActivityEvent(id, domain.ActivityManual, a.now())
	if a.activity == nil {
		a.insights.ClearCache(id)
		writeJSON(w, http.StatusAccepted, map[string]string{"eventId": event.ID})
		return
	}
	if err := a.activity.Publish(r.Context(), event); err != nil {
		a.log.Error().Err(err).Str("channel", id).Msg("http: не удалось опубликовать событие активности")
		writeError(w, http.StatusBadGateway, "activity queue unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"eventId": event.ID})
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	event := a.log.Warn()
	if status >= http.StatusInternalServerError {
		event = a.log.Error()
	}
	event.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("http: запрос завершился ошибкой")
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, intel.ErrEmptyChannel), errors.Is(err, intel.ErrInvalidDays):
		return http.StatusBadRequest
	case errors.Is(err, intel.ErrMessageSource):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
