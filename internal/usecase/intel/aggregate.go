package intel

import (
	"math"
	"time"

	"channel-insights/internal/domain"
)

const (
	neutralScore      = 50
	recentBucketCount = 3
	trendThreshold    = 5.0
)

// Normalize переводит оценку [-1, 1] в шкалу 0..100.
func Normalize(raw float64) int {
	score := int(math.Round(neutralScore + raw*neutralScore))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Classify возвращает метку для оценки 0..100.
func Classify(score int) domain.SentimentLabel {
	switch {
	case score >= 65:
		return domain.LabelPositive
	case score >= 55:
		return domain.LabelMostlyPositive
	case score <= 35:
		return domain.LabelNegative
	case score <= 45:
		return domain.LabelMostlyNegative
	default:
		return domain.LabelNeutral
	}
}

// ChannelSentiment усредняет сырые оценки сообщений и нормализует результат один раз.
func ChannelSentiment(messages []domain.Message) domain.SentimentSummary {
	if len(messages) == 0 {
		return domain.SentimentSummary{Score: neutralScore, Label: domain.LabelNeutral, Trend: domain.TrendStable}
	}
	var sum float64
	for _, m := range messages {
		sum += ScoreMessage(m.Content)
	}
	score := Normalize(sum / float64(len(messages)))
	return domain.SentimentSummary{
		Score:        score,
		Label:        Classify(score),
		Trend:        domain.TrendStable,
		MessageCount: len(messages),
	}
}

// Trend раскладывает сообщения по days календарным дням, заканчивая текущим днём в loc.
// Сообщения без CreatedAt или вне окна в ряд не попадают.
func Trend(messages []domain.Message, days int, now time.Time, loc *time.Location) domain.SentimentTrend {
	if days <= 0 {
		return domain.SentimentTrend{Data: []domain.TrendPoint{}, Trend: domain.TrendStable}
	}
	if loc == nil {
		loc = time.UTC
	}
	today := startOfDay(now.In(loc))
	first := today.AddDate(0, 0, -(days - 1))

	sums := make([]float64, days)
	counts := make([]int, days)
	for _, m := range messages {
		if m.CreatedAt.IsZero() {
			continue
		}
		day := startOfDay(m.CreatedAt.In(loc))
		idx := dayIndex(first, day)
		if idx < 0 || idx >= days {
			continue
		}
		sums[idx] += ScoreMessage(m.Content)
		counts[idx]++
	}

	points := make([]domain.TrendPoint, days)
	for i := range points {
		point := domain.TrendPoint{Date: first.AddDate(0, 0, i), Score: neutralScore, MessageCount: counts[i]}
		if counts[i] > 0 {
			point.Score = Normalize(sums[i] / float64(counts[i]))
		}
		points[i] = point
	}
	return domain.SentimentTrend{Data: points, Trend: TrendDirection(points)}
}

// TrendDirection сравнивает последние три непустых дня с более ранними непустыми днями.
func TrendDirection(points []domain.TrendPoint) domain.TrendDirection {
	var active []domain.TrendPoint
	for _, p := range points {
		if p.MessageCount > 0 {
			active = append(active, p)
		}
	}
	split := len(active) - recentBucketCount
	if split <= 0 {
		return domain.TrendStable
	}
	diff := meanScore(active[split:]) - meanScore(active[:split])
	switch {
	case diff > trendThreshold:
		return domain.TrendUp
	case diff < -trendThreshold:
		return domain.TrendDown
	default:
		return domain.TrendStable
	}
}

func meanScore(points []domain.TrendPoint) float64 {
	var sum float64
	for _, p := range points {
		sum += float64(p.Score)
	}
	return sum / float64(len(points))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// dayIndex возвращает разницу в календарных днях.
func dayIndex(first, day time.Time) int {
	fy, fm, fd := first.Date()
	dy, dm, dd := day.Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
