package intel

import (
	"context"
	"errors"
	"time"

	"channel-insights/internal/domain"
)

const activityRetryDelay = time.Second

// ConsumeActivity сбрасывает кэш каналов по событиям из очереди до отмены ctx.
// Пустой ChannelID в событии сбрасывает весь кэш.
func (s *Service) ConsumeActivity(ctx context.Context, queue domain.ActivityQueue) error {
	for {
		event, ack, err := queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error().Err(err).Msg("intel: ошибка чтения очереди активности")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(activityRetryDelay):
			}
			continue
		}
		s.ClearCache(event.ChannelID)
		s.log.Debug().
			Str("event", event.ID).
			Str("channel", event.ChannelID).
			Str("cause", string(event.Cause)).
			Msg("intel: кэш сброшен по событию активности")
		if err := ack(true); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn().Err(err).Str("event", event.ID).Msg("intel: не удалось подтвердить событие")
		}
	}
}
