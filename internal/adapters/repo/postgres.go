package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"channel-insights/internal/domain"
	"channel-insights/internal/infra/metrics"
)

const (
	queryTimeout     = 5 * time.Second
	maxReactionCount = 1 << 20
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres реализует источники сообщений, отправителей и каналов на основе pgxpool.
type Postgres struct {
	pool querier
}

var (
	_ domain.MessageSource    = (*Postgres)(nil)
	_ domain.SenderDirectory  = (*Postgres)(nil)
	_ domain.ChannelDirectory = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, queryTimeout)
}

// FetchMessages возвращает сообщения канала из [start, end) по возрастанию времени.
func (p *Postgres) FetchMessages(ctx context.Context, channelID string, start, end time.Time) ([]domain.Message, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	began := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id::text, channel_id::text, COALESCE(content, ''), COALESCE(sender_id::text, ''),
       created_at, COALESCE(reactions, '[]'::jsonb), COALESCE(is_pinned, false)
FROM messages
WHERE channel_id::text = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at ASC, id ASC
`, channelID, start.UTC(), end.UTC())
	metrics.ObserveNetworkRequest("postgres", "messages_fetch", "messages", began, err)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var (
			m         domain.Message
			reactions []byte
		)
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.Content, &m.SenderID, &m.CreatedAt, &reactions, &m.IsPinned); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ReactionCount = countReactions(reactions)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// FetchSenders возвращает имена и аватары пользователей по идентификаторам.
func (p *Postgres) FetchSenders(ctx context.Context, senderIDs []string) (map[string]domain.SenderInfo, error) {
	out := make(map[string]domain.SenderInfo, len(senderIDs))
	if len(senderIDs) == 0 {
		return out, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	began := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id::text, COALESCE(full_name, ''), COALESCE(avatar_url, '')
FROM users WHERE id::text = ANY($1)
`, senderIDs)
	metrics.ObserveNetworkRequest("postgres", "users_fetch", "users", began, err)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   string
			info domain.SenderInfo
		)
		if err := rows.Scan(&id, &info.Name, &info.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		info.Name = strings.TrimSpace(info.Name)
		out[id] = info
	}
	return out, rows.Err()
}

// ListChannels возвращает каналы для сканирования алертов.
func (p *Postgres) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	began := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT id::text, COALESCE(name, '') FROM channels ORDER BY name, id`)
	metrics.ObserveNetworkRequest("postgres", "channels_list", "channels", began, err)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()
	var channels []domain.Channel
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(&ch.ID, &ch.Name); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// countReactions считает реакции в jsonb-колонке. Поддерживаются массив строк
// и массив объектов {"emoji": "...", "count": N}; нераспознанное значение даёт ноль.
// Счётчики складываются без разворачивания и ограничены maxReactionCount.
func countReactions(raw []byte) int {
	if len(raw) == 0 {
		return 0
	}
	var plain []json.RawMessage
	if err := json.Unmarshal(raw, &plain); err != nil {
		return 0
	}
	total := 0
	for _, item := range plain {
		var grouped struct {
			Count int64 `json:"count"`
		}
		n := int64(1)
		if json.Unmarshal(item, &grouped) == nil && grouped.Count > 0 {
			n = grouped.Count
		}
		if n >= int64(maxReactionCount-total) {
			return maxReactionCount
		}
		total += int(n)
	}
	return total
}
