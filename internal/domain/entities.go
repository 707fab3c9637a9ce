package domain

import "time"

// Message описывает сообщение канала в том виде, в каком его отдаёт хранилище.
// Движок только читает сообщения и никогда их не изменяет. Из реакций хранится только их количество.
type Message struct {
	ID            string
	ChannelID     string
	Content       string
	SenderID      string
	SenderName    string
	SenderAvatar  string
	CreatedAt     time.Time
	ReactionCount int
	IsPinned      bool
}

// Author возвращает отображаемое имя автора.
func (m Message) Author() string {
	if m.SenderName != "" {
		return m.SenderName
	}
	if m.SenderID != "" {
		return m.SenderID
	}
	return "Unknown"
}

// SenderInfo содержит отображаемые данные отправителя.
type SenderInfo struct {
	Name      string
	AvatarURL string
}

// Channel описывает канал, за которым следит наблюдатель алертов.
type Channel struct {
	ID   string
	Name string
}

// SentimentLabel задаёт словесную оценку тональности.
type SentimentLabel string

const (
	LabelPositive       SentimentLabel = "positive"
	LabelMostlyPositive SentimentLabel = "mostly_positive"
	LabelNeutral        SentimentLabel = "neutral"
	LabelMostlyNegative SentimentLabel = "mostly_negative"
	LabelNegative       SentimentLabel = "negative"
	// LabelNoActivity используется для пустого окна.
	LabelNoActivity SentimentLabel = "No activity"
)

// TrendDirection задаёт направление изменения тональности.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// SentimentSummary описывает тональность канала по шкале 0..100.
type SentimentSummary struct {
	Score        int            `json:"score"`
	Label        SentimentLabel `json:"label"`
	Trend        TrendDirection `json:"trend"`
	MessageCount int            `json:"messageCount"`
	Reasoning    string         `json:"reasoning,omitempty"`
}

// TrendPoint хранит тональность за один календарный день.
type TrendPoint struct {
	Date         time.Time `json:"date"`
	Score        int       `json:"score"`
	MessageCount int       `json:"messageCount"`
}

// SentimentTrend содержит ряд точек и общее направление.
type SentimentTrend struct {
	Data  []TrendPoint   `json:"data"`
	Trend TrendDirection `json:"trend"`
}

// TopicCount хранит тему или ключевое слово с частотой.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// MentionCount хранит количество упоминаний пользователя.
type MentionCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ActionType задаёт тип найденного действия.
type ActionType string

const (
	ActionCommitment ActionType = "commitment"
	ActionRequest    ActionType = "request"
	ActionTask       ActionType = "task"
	ActionProposal   ActionType = "proposal"
	ActionFollowUp   ActionType = "follow-up"
	ActionReminder   ActionType = "reminder"
	ActionDeadline   ActionType = "deadline"
)

// Insight описывает сообщение, выделенное одним из экстракторов.
type Insight struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	FullMessage string    `json:"fullMessage,omitempty"`
	Author      string    `json:"author"`
	Avatar      string    `json:"avatar,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Reason      string    `json:"reason,omitempty"`
}

// ActionItem описывает действие, найденное в переписке.
type ActionItem struct {
	Insight
	Type     ActionType `json:"type"`
	Assignee string     `json:"assignee,omitempty"`
}

// Question описывает вопрос из переписки.
type Question struct {
	Insight
	Answered bool `json:"answered"`
}

// AlertSeverity задаёт серьёзность падения тональности.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// SentimentAlert сообщает о резком падении тональности между днями.
type SentimentAlert struct {
	ID            string        `json:"id"`
	ChannelID     string        `json:"channelId"`
	ChannelName   string        `json:"channelName"`
	Date          time.Time     `json:"date"`
	PreviousScore int           `json:"previousScore"`
	CurrentScore  int           `json:"currentScore"`
	Drop          int           `json:"drop"`
	Severity      AlertSeverity `json:"severity"`
}

// Digest содержит итоговую аналитику канала за окно времени. После возврата не изменяется.
type Digest struct {
	ChannelID         string           `json:"channelId"`
	TimeRange         string           `json:"timeRange"`
	TimeRangeLabel    string           `json:"timeRangeLabel"`
	MessageCount      int              `json:"messageCount"`
	ParticipantCount  int              `json:"participantCount"`
	Summary           string           `json:"summary"`
	Decisions         []Insight        `json:"decisions"`
	ActionItems       []ActionItem     `json:"actionItems"`
	ImportantMessages []Insight        `json:"importantMessages"`
	Questions         []Question       `json:"questions"`
	Sentiment         SentimentSummary `json:"sentiment"`
	Topics            []TopicCount     `json:"topics"`
	Keywords          []TopicCount     `json:"keywords"`
	Mentions          []MentionCount   `json:"mentions"`
	GeneratedAt       time.Time        `json:"generatedAt"`
	AIPowered         bool             `json:"aiPowered"`
}

// TimeWindow описывает полуинтервал [Start, End) с подписью.
type TimeWindow struct {
	Key   string
	Label string
	Start time.Time
	End   time.Time
}
