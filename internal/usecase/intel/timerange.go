package intel

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"channel-insights/internal/domain"
)

const (
	RangeLast4h    = "last-4h"
	RangeToday     = "today"
	RangeYesterday = "yesterday"
	RangeThisWeek  = "this-week"
)

var dayRangePattern = regexp.MustCompile(`^(?:last-)?(\d{1,3})d$`)

// DayRangeKey возвращает ключ окна на days дней.
func DayRangeKey(days int) string {
	return fmt.Sprintf("last-%dd", days)
}

// ResolveRange превращает символьный ключ в окно [Start, End) в часовом поясе loc.
// Неизвестный ключ даёт окно последних четырёх часов с подписью, равной ключу.
func ResolveRange(key string, now time.Time, loc *time.Location) domain.TimeWindow {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	midnight := startOfDay(now)

	switch key {
	case RangeLast4h:
		return domain.TimeWindow{Key: key, Label: "Last 4 hours", Start: now.Add(-4 * time.Hour), End: now}
	case RangeToday:
		return domain.TimeWindow{Key: key, Label: "Today", Start: midnight, End: now}
	case RangeYesterday:
		return domain.TimeWindow{Key: key, Label: "Yesterday", Start: midnight.AddDate(0, 0, -1), End: midnight}
	case RangeThisWeek:
		return domain.TimeWindow{Key: key, Label: "This Week", Start: now.Add(-7 * 24 * time.Hour), End: now}
	}

	if m := dayRangePattern.FindStringSubmatch(key); m != nil {
		if days, err := strconv.Atoi(m[1]); err == nil && days > 0 {
			return domain.TimeWindow{
				Key:   key,
				Label: fmt.Sprintf("Last %d days", days),
				Start: now.Add(-time.Duration(days) * 24 * time.Hour),
				End:   now,
			}
		}
	}

	label := key
	if label == "" {
		label = "Last 4 hours"
	}
	return domain.TimeWindow{Key: key, Label: label, Start: now.Add(-4 * time.Hour), End: now}
}

// windowDays возвращает число календарных дней, которых касается окно.
func windowDays(w domain.TimeWindow) int {
	if !w.End.After(w.Start) {
		return 1
	}
	last := w.End.Add(-time.Nanosecond)
	return dayIndex(startOfDay(w.Start), startOfDay(last)) + 1
}
