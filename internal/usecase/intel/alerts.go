package intel

import (
	"sort"

	"channel-insights/internal/domain"
)

const (
	alertMinDrop      = 20
	alertMaxScore     = 40
	alertCriticalDrop = 35
)

// AlertsFor ищет резкие падения тональности между соседними непустыми днями.
// Алерт создаётся, только если падение не меньше 20 пунктов и новая оценка не выше 40.
func AlertsFor(channelID, channelName string, series []domain.TrendPoint) []domain.SentimentAlert {
	var active []domain.TrendPoint
	for _, p := range series {
		if p.MessageCount > 0 {
			active = append(active, p)
		}
	}
	alerts := make([]domain.SentimentAlert, 0)
	if len(active) < 2 {
		return alerts
	}
	for i := 1; i < len(active); i++ {
		prev, cur := active[i-1], active[i]
		drop := prev.Score - cur.Score
		if drop < alertMinDrop || cur.Score > alertMaxScore {
			continue
		}
		severity := domain.SeverityWarning
		if drop >= alertCriticalDrop {
			severity = domain.SeverityCritical
		}
		alerts = append(alerts, domain.SentimentAlert{
			ID:            channelID + "-" + cur.Date.Format("2006-01-02"),
			ChannelID:     channelID,
			ChannelName:   channelName,
			Date:          cur.Date,
			PreviousScore: prev.Score,
			CurrentScore:  cur.Score,
			Drop:          drop,
			Severity:      severity,
		})
	}
	return alerts
}

// SortAlertsByDrop упорядочивает алерты нескольких каналов по убыванию падения.
func SortAlertsByDrop(alerts []domain.SentimentAlert) {
	sort.SliceStable(alerts, func(i, j int) bool { return alerts[i].Drop > alerts[j].Drop })
}
