package domain

import (
	"context"
	"time"
)

// MessageSource выгружает сообщения канала за интервал, по возрастанию CreatedAt.
type MessageSource interface {
	FetchMessages(ctx context.Context, channelID string, start, end time.Time) ([]Message, error)
}

// SenderDirectory возвращает имена и аватары отправителей.
type SenderDirectory interface {
	FetchSenders(ctx context.Context, senderIDs []string) (map[string]SenderInfo, error)
}

// ChannelDirectory перечисляет каналы для сканирования алертов.
type ChannelDirectory interface {
	ListChannels(ctx context.Context) ([]Channel, error)
}

// AnalysisResult содержит ответ внешнего анализатора. Ссылки на сообщения идут по MessageID.
type AnalysisResult struct {
	Summary           string
	Decisions         []AnalyzedInsight
	ActionItems       []AnalyzedInsight
	ImportantMessages []AnalyzedInsight
	Questions         []AnalyzedInsight
	Sentiment         *AnalyzedSentiment
	Topics            []TopicCount
}

// AnalyzedInsight описывает элемент ответа анализатора.
type AnalyzedInsight struct {
	MessageID string
	Text      string
	Author    string
	Assignee  string
	Reason    string
	Answered  bool
	Timestamp time.Time
}

// AnalyzedSentiment хранит тональность по версии анализатора, Score в диапазоне 0..1.
type AnalyzedSentiment struct {
	Score     float64
	Label     string
	Trend     string
	Reasoning string
}

// DigestAnalyzer строит аналитику внешней моделью.
type DigestAnalyzer interface {
	Analyze(ctx context.Context, messages []Message) (AnalysisResult, error)
}

// OnceStore выполняет действие не чаще одного раза за ttl для ключа.
type OnceStore interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// AlertNotifier доставляет алерты получателю.
type AlertNotifier interface {
	NotifyAlert(ctx context.Context, alert SentimentAlert) error
}
