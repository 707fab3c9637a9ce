package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"channel-insights/internal/domain"
	openai "channel-insights/internal/infra/openai"
)

const (
	defaultModel      = "gpt-4o-mini"
	defaultTimeout    = 60 * time.Second
	defaultMaxInput   = 300
	maxMessageRunes   = 1000
	completionTokens  = 4000
	systemInstruction = "You analyse team chat channels. Only report facts present in the messages, never invent message ids."
)

type chatCompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLM строит аналитику канала через OpenAI Chat Completions.
type LLM struct {
	client   chatCompletionClient
	model    string
	timeout  time.Duration
	maxInput int
}

var _ domain.DigestAnalyzer = (*LLM)(nil)

// NewLLM создаёт анализатор. maxInput ограничивает число последних сообщений в запросе.
func NewLLM(client chatCompletionClient, model string, timeout time.Duration, maxInput int) *LLM {
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxInput <= 0 {
		maxInput = defaultMaxInput
	}
	return &LLM{client: client, model: model, timeout: timeout, maxInput: maxInput}
}

type llmMessage struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Sender    string `json:"sender_name"`
	SenderID  string `json:"sender_id,omitempty"`
	CreatedAt string `json:"created_at"`
	Reactions int    `json:"reactions,omitempty"`
	IsPinned  bool   `json:"is_pinned,omitempty"`
}

type llmItem struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
	Content   string `json:"content"`
	Author    string `json:"author"`
	Assignee  string `json:"assignee"`
	Reason    string `json:"reason"`
	Answered  bool   `json:"answered"`
	Timestamp string `json:"timestamp"`
}

type llmSentiment struct {
	Score     *float64 `json:"score"`
	Label     string   `json:"label"`
	Trend     string   `json:"trend"`
	Reasoning string   `json:"reasoning"`
}

type llmResponse struct {
	Summary           string        `json:"summary"`
	Decisions         []llmItem     `json:"decisions"`
	ActionItems       []llmItem     `json:"actionItems"`
	ImportantMessages []llmItem     `json:"importantMessages"`
	Questions         []llmItem     `json:"questions"`
	Sentiment         *llmSentiment `json:"sentiment"`
	Topics            []llmTopic    `json:"topics"`
}

// llmTopic принимает тему строкой или объектом {"topic": "...", "count": N}.
type llmTopic struct {
	Topic string
	Count int
}

func (t *llmTopic) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		t.Topic, t.Count = name, 1
		return nil
	}
	var obj struct {
		Topic string `json:"topic"`
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	t.Topic = obj.Topic
	if t.Topic == "" {
		t.Topic = obj.Name
	}
	t.Count = obj.Count
	if t.Count <= 0 {
		t.Count = 1
	}
	return nil
}

// Analyze отправляет сообщения модели и разбирает JSON-ответ.
func (l *LLM) Analyze(ctx context.Context, messages []domain.Message) (domain.AnalysisResult, error) {
	if len(messages) == 0 {
		return domain.AnalysisResult{}, nil
	}
	if len(messages) > l.maxInput {
		messages = messages[len(messages)-l.maxInput:]
	}
	payload := make([]llmMessage, 0, len(messages))
	for _, m := range messages {
		payload = append(payload, llmMessage{
			ID:        m.ID,
			Content:   clipRunes(m.Content, maxMessageRunes),
			Sender:    m.Author(),
			SenderID:  m.SenderID,
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
			Reactions: m.ReactionCount,
			IsPinned:  m.IsPinned,
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("marshal messages: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       l.model,
		Temperature: 0.2,
		MaxTokens:   completionTokens,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: systemInstruction},
			{Role: openai.RoleUser, Content: buildPrompt(string(body))},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ResponseFormatTypeJSONObject},
	}
	resp, err := l.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("openai completion: %w", err)
	}
	content, err := resp.Content()
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	return parseResponse(content)
}

func buildPrompt(messagesJSON string) string {
	return `Analyse the channel messages below and answer with a single JSON object:
{"summary": "2-3 sentences",
 "decisions": [{"messageId": "...", "text": "...", "author": "..."}],
 "actionItems": [{"messageId": "...", "text": "...", "assignee": "..."}],
 "importantMessages": [{"messageId": "...", "reason": "..."}],
 "questions": [{"messageId": "...", "content": "...", "answered": false}],
 "sentiment": {"score": 0.0-1.0, "label": "positive|mostly_positive|neutral|mostly_negative|negative", "trend": "improving|stable|declining", "reasoning": "..."},
 "topics": [{"topic": "...", "count": 1}]}
Use the "id" field of the input as "messageId". Keep lists short and ordered by importance.

Messages:
` + messagesJSON
}

func parseResponse(content string) (domain.AnalysisResult, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var parsed llmResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("распаковка ответа LLM: %w", err)
	}

	result := domain.AnalysisResult{
		Summary:           strings.TrimSpace(parsed.Summary),
		Decisions:         convertItems(parsed.Decisions),
		ActionItems:       convertItems(parsed.ActionItems),
		ImportantMessages: convertItems(parsed.ImportantMessages),
		Questions:         convertItems(parsed.Questions),
	}
	if s := parsed.Sentiment; s != nil && s.Score != nil {
		result.Sentiment = &domain.AnalyzedSentiment{
			Score:     *s.Score,
			Label:     s.Label,
			Trend:     s.Trend,
			Reasoning: s.Reasoning,
		}
	}
	for _, t := range parsed.Topics {
		if strings.TrimSpace(t.Topic) == "" {
			continue
		}
		result.Topics = append(result.Topics, domain.TopicCount{Topic: strings.TrimSpace(t.Topic), Count: t.Count})
	}
	return result, nil
}

func convertItems(items []llmItem) []domain.AnalyzedInsight {
	out := make([]domain.AnalyzedInsight, 0, len(items))
	for _, it := range items {
		text := strings.TrimSpace(it.Text)
		if text == "" {
			text = strings.TrimSpace(it.Content)
		}
		insight := domain.AnalyzedInsight{
			MessageID: it.MessageID,
			Text:      text,
			Author:    strings.TrimSpace(it.Author),
			Assignee:  strings.TrimSpace(it.Assignee),
			Reason:    strings.TrimSpace(it.Reason),
			Answered:  it.Answered,
		}
		if ts, err := time.Parse(time.RFC3339, it.Timestamp); err == nil {
			insight.Timestamp = ts
		}
		out = append(out, insight)
	}
	return out
}

func clipRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "…"
}
