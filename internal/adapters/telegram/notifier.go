package telegram

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"channel-insights/internal/domain"
	"channel-insights/internal/infra/metrics"
)

const messageLimit = 4096

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier доставляет алерты тональности в чат Telegram.
type Notifier struct {
	bot    sender
	chatID int64
}

var _ domain.AlertNotifier = (*Notifier)(nil)

// NewNotifier создаёт отправителя алертов в chatID.
func NewNotifier(bot *tgbotapi.BotAPI, chatID int64) *Notifier {
	return &Notifier{bot: bot, chatID: chatID}
}

// NotifyAlert отправляет алерт одним или несколькими сообщениями.
func (n *Notifier) NotifyAlert(ctx context.Context, alert domain.SentimentAlert) error {
	target := strconv.FormatInt(n.chatID, 10)
	for _, part := range SplitMessage(FormatAlert(alert), messageLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(n.chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		start := time.Now()
		_, err := n.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", target, start, err)
		if err != nil {
			return fmt.Errorf("отправка алерта %s: %w", alert.ID, err)
		}
	}
	return nil
}

// FormatAlert готовит HTML-текст алерта.
func FormatAlert(alert domain.SentimentAlert) string {
	icon, title := "🟠", "Падение тональности"
	if alert.Severity == domain.SeverityCritical {
		icon, title = "🔴", "Резкое падение тональности"
	}
	name := alert.ChannelName
	if name == "" {
		name = alert.ChannelID
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b>\n", icon, title)
	fmt.Fprintf(&b, "Канал: <b>%s</b>\n", html.EscapeString(name))
	fmt.Fprintf(&b, "Дата: %s\n", alert.Date.Format("02.01.2006"))
	fmt.Fprintf(&b, "Оценка: %d → %d (−%d)", alert.PreviousScore, alert.CurrentScore, alert.Drop)
	return b.String()
}

// SplitMessage режет текст на части не длиннее limit рун, по возможности по переводам строк.
func SplitMessage(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 {
		limit = messageLimit
	}
	runes := []rune(text)
	var parts []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			parts = appendPart(parts, runes)
			break
		}
		cut := limit
		for i := limit; i > 0; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = appendPart(parts, runes[:cut])
		runes = runes[cut:]
	}
	return parts
}

func appendPart(parts []string, chunk []rune) []string {
	if s := strings.Trim(string(chunk), "\n"); s != "" {
		return append(parts, s)
	}
	return parts
}
