package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"channel-insights/internal/domain"
	"channel-insights/internal/usecase/intel"
)

type stubInsights struct {
	err       error
	cleared   []string
	lastRange string
	lastDays  int
	across    []domain.SentimentAlert
	acrossErr error
}

func (s *stubInsights) GenerateDigest(_ context.Context, channelID, rangeKey string) (domain.Digest, error) {
	s.lastRange = rangeKey
	if s.err != nil {
		return domain.Digest{}, s.err
	}
	return domain.Digest{ChannelID: channelID, TimeRange: rangeKey, MessageCount: 5}, nil
}

func (s *stubInsights) ChannelSentiment(context.Context, string) (domain.SentimentSummary, error) {
	return domain.SentimentSummary{Score: 47, Label: domain.LabelNeutral, Trend: domain.TrendStable, MessageCount: 5}, s.err
}

func (s *stubInsights) Topics(context.Context, string) ([]domain.TopicCount, error) {
	return []domain.TopicCount{{Topic: "Bugs & Issues", Count: 1}}, s.err
}

func (s *stubInsights) ActionItems(context.Context, string) ([]domain.ActionItem, error) {
	return []domain.ActionItem{{Insight: domain.Insight{ID: "2", Text: "I'll fix the login bug"}, Type: domain.ActionCommitment}}, s.err
}

func (s *stubInsights) SentimentTrend(_ context.Context, _ string, days int) (domain.SentimentTrend, error) {
	s.lastDays = days
	if days <= 0 {
		return domain.SentimentTrend{}, fmt.Errorf("%w: %d", intel.ErrInvalidDays, days)
	}
	return domain.SentimentTrend{Data: make([]domain.TrendPoint, days), Trend: domain.TrendStable}, s.err
}

func (s *stubInsights) SentimentAlerts(_ context.Context, channelID, name string) ([]domain.SentimentAlert, error) {
	return []domain.SentimentAlert{{ID: channelID + "-2026-03-09", ChannelName: name, Drop: 30}}, s.err
}

func (s *stubInsights) AlertsAcross(context.Context, []domain.Channel) ([]domain.SentimentAlert, error) {
	return s.across, s.acrossErr
}

func (s *stubInsights) ClearCache(channelID string) { s.cleared = append(s.cleared, channelID) }

type stubChannels struct{ err error }

func (s stubChannels) ListChannels(context.Context) ([]domain.Channel, error) {
	return []domain.Channel{{ID: "c1", Name: "General"}}, s.err
}

type stubQueue struct {
	events []domain.ActivityEvent
	err    error
}

func (q *stubQueue) Publish(_ context.Context, e domain.ActivityEvent) error {
	q.events = append(q.events, e)
	return q.err
}

func (q *stubQueue) Receive(context.Context) (domain.ActivityEvent, domain.ActivityAckFunc, error) {
	return domain.ActivityEvent{}, nil, errors.New("not implemented")
}

func newTestRouter(insights Insights, opts ...APIOption) http.Handler {
	srv := NewServer(zerolog.Nop())
	NewAPI(insights, opts...).Mount(srv.Router)
	return srv.Router
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("ответ не JSON: %v (%s)", err, rec.Body.String())
	}
}

func TestDigestEndpoint(t *testing.T) {
	insights := &stubInsights{}
	h := newTestRouter(insights)

	rec := do(t, h, http.MethodGet, "/api/v1/channels/general/digest?range=today")
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	var body map[string]any
	decode(t, rec, &body)
	if body["channelId"] != "general" || body["timeRange"] != "today" || body["messageCount"] != float64(5) {
		t.Fatalf("неверный дайджест: %v", body)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("ожидали application/json")
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{err: intel.ErrEmptyChannel, status: http.StatusBadRequest},
		{err: fmt.Errorf("%w: timeout", intel.ErrMessageSource), status: http.StatusBadGateway},
		{err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := newTestRouter(&stubInsights{err: tt.err})
			rec := do(t, h, http.MethodGet, "/api/v1/channels/general/digest")
			if rec.Code != tt.status {
				t.Fatalf("ожидали %d, получили %d", tt.status, rec.Code)
			}
			var body map[string]string
			decode(t, rec, &body)
			if body["error"] == "" {
				t.Fatalf("ожидали поле error")
			}
		})
	}
}

func TestTrendEndpoint(t *testing.T) {
	insights := &stubInsights{}
	h := newTestRouter(insights)

	if rec := do(t, h, http.MethodGet, "/api/v1/channels/c1/trend"); rec.Code != http.StatusOK || insights.lastDays != 7 {
		t.Fatalf("по умолчанию ожидали 7 дней, получили %d (%d)", insights.lastDays, rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/channels/c1/trend?days=abc"); rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидали 400 для нечислового days, получили %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/channels/c1/trend?days=0"); rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидали 400 для days=0, получили %d", rec.Code)
	}
}

func TestLightweightEndpoints(t *testing.T) {
	h := newTestRouter(&stubInsights{})
	cases := map[string]string{
		"/api/v1/channels/c1/sentiment":    "score",
		"/api/v1/channels/c1/topics":       "topics",
		"/api/v1/channels/c1/action-items": "actionItems",
		"/api/v1/channels/c1/alerts":       "alerts",
	}
	for path, field := range cases {
		rec := do(t, h, http.MethodGet, path)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: ожидали 200, получили %d", path, rec.Code)
		}
		var body map[string]any
		decode(t, rec, &body)
		if _, ok := body[field]; !ok {
			t.Fatalf("%s: ожидали поле %s, получили %v", path, field, body)
		}
	}
}

func TestChannelAlertsDefaultName(t *testing.T) {
	h := newTestRouter(&stubInsights{})
	rec := do(t, h, http.MethodGet, "/api/v1/channels/c1/alerts")
	var body struct {
		Alerts []domain.SentimentAlert `json:"alerts"`
	}
	decode(t, rec, &body)
	if len(body.Alerts) != 1 || body.Alerts[0].ChannelName != "c1" {
		t.Fatalf("без name используется id канала: %+v", body.Alerts)
	}
}

func TestAllAlertsEndpoint(t *testing.T) {
	insights := &stubInsights{across: []domain.SentimentAlert{{ID: "c1-2026-03-09", Drop: 40}}}
	if rec := do(t, newTestRouter(insights), http.MethodGet, "/api/v1/alerts"); rec.Code != http.StatusNotFound {
		t.Fatalf("без справочника каналов маршрут не регистрируется, получили %d", rec.Code)
	}

	h := newTestRouter(insights, WithChannelDirectory(stubChannels{}))
	if rec := do(t, h, http.MethodGet, "/api/v1/alerts"); rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}

	insights.across = []domain.SentimentAlert{}
	insights.acrossErr = fmt.Errorf("канал c1: %w", intel.ErrMessageSource)
	if rec := do(t, h, http.MethodGet, "/api/v1/alerts"); rec.Code != http.StatusBadGateway {
		t.Fatalf("ожидали 502 без результатов, получили %d", rec.Code)
	}

	h = newTestRouter(insights, WithChannelDirectory(stubChannels{err: errors.New("db down")}))
	if rec := do(t, h, http.MethodGet, "/api/v1/alerts"); rec.Code != http.StatusBadGateway {
		t.Fatalf("ожидали 502 при ошибке справочника, получили %d", rec.Code)
	}
}

func TestCacheEndpoints(t *testing.T) {
	insights := &stubInsights{}
	h := newTestRouter(insights)
	if rec := do(t, h, http.MethodDelete, "/api/v1/channels/c1/cache"); rec.Code != http.StatusNoContent {
		t.Fatalf("ожидали 204, получили %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/v1/cache"); rec.Code != http.StatusNoContent {
		t.Fatalf("ожидали 204, получили %d", rec.Code)
	}
	if len(insights.cleared) != 2 || insights.cleared[0] != "c1" || insights.cleared[1] != "" {
		t.Fatalf("неверные очистки: %v", insights.cleared)
	}
}

func TestActivityEndpoint(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	queue := &stubQueue{}
	insights := &stubInsights{}
	h := newTestRouter(insights, WithActivityQueue(queue), WithAPIClock(func() time.Time { return now }))

	rec := do(t, h, http.MethodPost, "/api/v1/channels/c1/activity")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("ожидали 202, получили %d", rec.Code)
	}
	if len(queue.events) != 1 || queue.events[0].ChannelID != "c1" || !queue.events[0].OccurredAt.Equal(now) {
		t.Fatalf("неверное событие: %+v", queue.events)
	}
	if len(insights.cleared) != 0 {
		t.Fatalf("с очередью кэш очищает потребитель событий")
	}

	queue.err = errors.New("broker down")
	if rec := do(t, h, http.MethodPost, "/api/v1/channels/c1/activity"); rec.Code != http.StatusBadGateway {
		t.Fatalf("ожидали 502, получили %d", rec.Code)
	}

	direct := &stubInsights{}
	if rec := do(t, newTestRouter(direct), http.MethodPost, "/api/v1/channels/c1/activity"); rec.Code != http.StatusAccepted {
		t.Fatalf("ожидали 202, получили %d", rec.Code)
	}
	if len(direct.cleared) != 1 {
		t.Fatalf("без очереди кэш очищается сразу")
	}
}

func TestHealthz(t *testing.T) {
	rec := do(t, newTestRouter(&stubInsights{}), http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
}

type sliceSource []domain.Message

func (s sliceSource) FetchMessages(_ context.Context, channelID string, start, end time.Time) ([]domain.Message, error) {
	var out []domain.Message
	for _, m := range s {
		if m.ChannelID == channelID && !m.CreatedAt.Before(start) && m.CreatedAt.Before(end) {
			out = append(out, m)
		}
	}
	return out, nil
}

func TestDigestEndpointWithService(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	source := sliceSource{
		{ID: "1", ChannelID: "general", Content: "I'll fix the login bug", SenderID: "u1", CreatedAt: now.Add(-time.Hour)},
		{ID: "2", ChannelID: "general", Content: "urgent: server is down", SenderID: "u2", CreatedAt: now.Add(-30 * time.Minute)},
	}
	svc := intel.NewService(source, intel.WithClock(func() time.Time { return now }))
	h := newTestRouter(svc)

	rec := do(t, h, http.MethodGet, "/api/v1/channels/general/digest")
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d: %s", rec.Code, rec.Body.String())
	}
	var digest domain.Digest
	decode(t, rec, &digest)
	if digest.TimeRange != intel.RangeLast4h || digest.MessageCount != 2 || digest.ParticipantCount != 2 {
		t.Fatalf("неверный дайджест: %+v", digest)
	}
	if len(digest.ActionItems) != 1 || len(digest.ImportantMessages) != 1 {
		t.Fatalf("ожидали действие и важное сообщение: %+v", digest)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/channels/quiet/digest?range=yesterday")
	var empty domain.Digest
	decode(t, rec, &empty)
	if empty.Sentiment.Label != domain.LabelNoActivity || empty.Decisions == nil || empty.TimeRangeLabel != "Yesterday" {
		t.Fatalf("ожидали пустой дайджест: %+v", empty)
	}
}
