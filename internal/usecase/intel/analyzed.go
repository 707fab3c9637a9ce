package intel

import (
	"math"
	"strings"

	"channel-insights/internal/domain"
)

// assembleAnalyzed собирает дайджест из ответа внешнего анализатора.
// Элементы связываются с сообщениями по идентификатору; упоминания и ключевые слова считаются локально.
func (s *Service) assembleAnalyzed(channelID string, window domain.TimeWindow, messages []domain.Message, result domain.AnalysisResult) domain.Digest {
	byID := make(map[string]domain.Message, len(messages))
	for _, m := range messages {
		byID[m.ID] = m
	}

	// Пределы те же, что у локальных экстракторов.
	decisionsIn := capped(result.Decisions, maxDecisions)
	actionsIn := capped(result.ActionItems, maxActionItems)
	importantIn := capped(result.ImportantMessages, maxImportantMessages)
	questionsIn := capped(result.Questions, maxQuestions)

	decisions := make([]domain.Insight, 0, len(decisionsIn))
	for _, d := range decisionsIn {
		decisions = append(decisions, joinInsight(d, byID, d.Text))
	}

	actions := make([]domain.ActionItem, 0, len(actionsIn))
	for _, a := range actionsIn {
		actions = append(actions, domain.ActionItem{
			Insight:  joinInsight(a, byID, a.Text),
			Type:     domain.ActionTask,
			Assignee: a.Assignee,
		})
	}

	important := make([]domain.Insight, 0, len(importantIn))
	for _, im := range importantIn {
		insight := joinInsight(im, byID, im.Text)
		insight.Reason = im.Reason
		if insight.Reason == "" {
			insight.Reason = "AI flagged"
		}
		important = append(important, insight)
	}

	questions := make([]domain.Question, 0, len(questionsIn))
	for _, q := range questionsIn {
		questions = append(questions, domain.Question{Insight: joinInsight(q, byID, q.Text), Answered: q.Answered})
	}

	sentiment := s.windowSentiment(window, messages)
	if result.Sentiment != nil {
		sentiment = analyzedSentiment(*result.Sentiment, len(messages))
	}

	topics := capped(result.Topics, maxTopics)
	if topics == nil {
		topics = []domain.TopicCount{}
	}

	return domain.Digest{
		ChannelID:         channelID,
		TimeRange:         window.Key,
		TimeRangeLabel:    window.Label,
		MessageCount:      len(messages),
		ParticipantCount:  CountParticipants(messages),
		Summary:           strings.TrimSpace(result.Summary),
		Decisions:         decisions,
		ActionItems:       actions,
		ImportantMessages: important,
		Questions:         questions,
		Sentiment:         sentiment,
		Topics:            topics,
		Keywords:          safeExtract(s.log, "keywords", func() []domain.TopicCount { return ExtractKeywords(messages) }),
		Mentions:          safeExtract(s.log, "mentions", func() []domain.MentionCount { return ExtractMentions(messages) }),
		GeneratedAt:       s.now(),
		AIPowered:         true,
	}
}

func capped[T any](items []T, limit int) []T {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

func joinInsight(item domain.AnalyzedInsight, byID map[string]domain.Message, text string) domain.Insight {
	msg, ok := byID[item.MessageID]
	insight := domain.Insight{
		ID:          item.MessageID,
		Text:        text,
		FullMessage: text,
		Author:      item.Author,
		Timestamp:   item.Timestamp,
	}
	if ok {
		if msg.Content != "" {
			insight.FullMessage = msg.Content
		}
		if insight.Text == "" {
			insight.Text = msg.Content
		}
		if insight.Author == "" {
			insight.Author = msg.Author()
		}
		insight.Avatar = msg.SenderAvatar
		if insight.Timestamp.IsZero() {
			insight.Timestamp = msg.CreatedAt
		}
	}
	if insight.Author == "" {
		insight.Author = "Unknown"
	}
	return insight
}

func analyzedSentiment(a domain.AnalyzedSentiment, count int) domain.SentimentSummary {
	score := int(math.Round(clamp(a.Score, 0, 1) * 100))
	return domain.SentimentSummary{
		Score:        score,
		Label:        parseLabel(a.Label, score),
		Trend:        parseTrend(a.Trend),
		MessageCount: count,
		Reasoning:    strings.TrimSpace(a.Reasoning),
	}
}

func parseLabel(raw string, score int) domain.SentimentLabel {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), " ", "_")
	switch label := domain.SentimentLabel(normalized); label {
	case domain.LabelPositive, domain.LabelMostlyPositive, domain.LabelNeutral, domain.LabelMostlyNegative, domain.LabelNegative:
		return label
	}
	return Classify(score)
}

func parseTrend(raw string) domain.TrendDirection {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "up", "improving", "rising":
		return domain.TrendUp
	case "down", "declining", "falling":
		return domain.TrendDown
	default:
		return domain.TrendStable
	}
}
