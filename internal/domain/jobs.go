package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActivityCause описывает источник события активности.
type ActivityCause string

const (
	// ActivityNewMessages: в канал пришли новые сообщения.
	ActivityNewMessages ActivityCause = "new_messages"
	// ActivityManual: кэш сбрасывается вручную.
	ActivityManual ActivityCause = "manual"
)

// ActivityEvent сообщает, что аналитика канала устарела.
type ActivityEvent struct {
	ID         string        `json:"event_id"`
	ChannelID  string        `json:"channel_id,omitempty"`
	Cause      ActivityCause `json:"cause"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// NewActivityEvent создаёт событие с новым идентификатором.
// Пустой channelID означает все каналы.
func NewActivityEvent(channelID string, cause ActivityCause, at time.Time) ActivityEvent {
	return ActivityEvent{
		ID:         uuid.NewString(),
		ChannelID:  channelID,
		Cause:      cause,
		OccurredAt: at.UTC(),
	}
}

// ActivityAckFunc подтверждает обработку или просит повторить доставку события.
type ActivityAckFunc func(success bool) error

// ActivityQueue доставляет события активности каналов.
type ActivityQueue interface {
	Publish(ctx context.Context, event ActivityEvent) error
	Receive(ctx context.Context) (ActivityEvent, ActivityAckFunc, error)
}
