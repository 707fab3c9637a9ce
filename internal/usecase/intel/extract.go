package intel

import (
	"sort"
	"strings"

	"channel-insights/internal/domain"
)

const (
	maxTopics            = 6
	maxKeywords          = 10
	maxQuestions         = 8
	maxActionItems       = 10
	maxDecisions         = 8
	maxImportantMessages = 6
	minKeywordLength     = 4
	dedupPrefixLength    = 40
	highlyReactedMin     = 3
)

const (
	reasonPinned    = "Pinned"
	reasonReacted   = "Highly reacted"
	reasonImportant = "Flagged as important"
)

// ExtractTopics считает темы по шаблонам: каждое сообщение увеличивает счётчик темы не более одного раза.
func ExtractTopics(messages []domain.Message) []domain.TopicCount {
	counter := newCounter()
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		for _, p := range topicPatterns {
			if p.re.MatchString(m.Content) {
				counter.add(p.label)
			}
		}
	}
	return counter.top(maxTopics)
}

// ExtractKeywords возвращает самые частые слова длиннее трёх символов без стоп-слов.
func ExtractKeywords(messages []domain.Message) []domain.TopicCount {
	counter := newCounter()
	for _, m := range messages {
		for _, token := range strings.Fields(strings.ToLower(m.Content)) {
			cleaned := nonAlnumPattern.ReplaceAllString(token, "")
			if len(cleaned) < minKeywordLength {
				continue
			}
			if _, stop := stopWords[cleaned]; stop {
				continue
			}
			counter.add(cleaned)
		}
	}
	return counter.top(maxKeywords)
}

// ExtractMentions считает упоминания @name без ограничения размера списка.
func ExtractMentions(messages []domain.Message) []domain.MentionCount {
	counter := newCounter()
	for _, m := range messages {
		for _, match := range mentionPattern.FindAllStringSubmatch(m.Content, -1) {
			counter.add(match[1])
		}
	}
	ranked := counter.top(0)
	out := make([]domain.MentionCount, 0, len(ranked))
	for _, tc := range ranked {
		out = append(out, domain.MentionCount{Name: tc.Topic, Count: tc.Count})
	}
	return out
}

// FindQuestions отбирает вопросы в исходном порядке.
func FindQuestions(messages []domain.Message) []domain.Question {
	out := make([]domain.Question, 0)
	for _, m := range messages {
		if len(out) >= maxQuestions {
			break
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if strings.HasSuffix(content, "?") || questionPattern.MatchString(content) {
			out = append(out, domain.Question{Insight: insightFor(m, m.Content)})
		}
	}
	return out
}

// DetectActionItems ищет действия: для сообщения побеждает первый совпавший шаблон.
// Элементы с одинаковым нормализованным префиксом текста не повторяются.
func DetectActionItems(messages []domain.Message) []domain.ActionItem {
	out := make([]domain.ActionItem, 0)
	seen := make(map[string]struct{})
	for _, m := range messages {
		if len(out) >= maxActionItems {
			break
		}
		if m.Content == "" {
			continue
		}
		for _, p := range actionPatterns {
			match := p.re.FindString(m.Content)
			if match == "" {
				continue
			}
			text := strings.TrimSpace(match)
			key := dedupKey(text)
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				out = append(out, domain.ActionItem{Insight: insightFor(m, text), Type: p.typ})
			}
			break
		}
	}
	return out
}

// DetectDecisions ищет решения по тем же правилам, что и DetectActionItems.
func DetectDecisions(messages []domain.Message) []domain.Insight {
	out := make([]domain.Insight, 0)
	seen := make(map[string]struct{})
	for _, m := range messages {
		if len(out) >= maxDecisions {
			break
		}
		if m.Content == "" {
			continue
		}
		for _, re := range decisionPatterns {
			match := re.FindString(m.Content)
			if match == "" {
				continue
			}
			text := strings.TrimSpace(match)
			key := dedupKey(text)
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				out = append(out, insightFor(m, text))
			}
			break
		}
	}
	return out
}

// FindImportantMessages отбирает срочные, закреплённые и популярные сообщения.
func FindImportantMessages(messages []domain.Message) []domain.Insight {
	out := make([]domain.Insight, 0)
	for _, m := range messages {
		if len(out) >= maxImportantMessages {
			break
		}
		reacted := m.ReactionCount >= highlyReactedMin
		urgent := importancePattern.MatchString(m.Content)
		if !urgent && !reacted && !m.IsPinned {
			continue
		}
		insight := insightFor(m, m.Content)
		switch {
		case m.IsPinned:
			insight.Reason = reasonPinned
		case reacted:
			insight.Reason = reasonReacted
		default:
			insight.Reason = reasonImportant
		}
		out = append(out, insight)
	}
	return out
}

// CountParticipants считает уникальных отправителей с непустым идентификатором.
func CountParticipants(messages []domain.Message) int {
	senders := make(map[string]struct{})
	for _, m := range messages {
		if m.SenderID != "" {
			senders[m.SenderID] = struct{}{}
		}
	}
	return len(senders)
}

func insightFor(m domain.Message, text string) domain.Insight {
	return domain.Insight{
		ID:          m.ID,
		Text:        text,
		FullMessage: m.Content,
		Author:      m.Author(),
		Avatar:      m.SenderAvatar,
		Timestamp:   m.CreatedAt,
	}
}

func dedupKey(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	runes := []rune(normalized)
	if len(runes) > dedupPrefixLength {
		runes = runes[:dedupPrefixLength]
	}
	return string(runes)
}

// counter сохраняет порядок первого появления, чтобы равные счётчики сортировались стабильно.
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

func (c *counter) top(limit int) []domain.TopicCount {
	out := make([]domain.TopicCount, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, domain.TopicCount{Topic: key, Count: c.counts[key]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
