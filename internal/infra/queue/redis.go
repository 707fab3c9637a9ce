package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"channel-insights/internal/domain"
	"channel-insights/internal/infra/metrics"
)

// ErrSubscriptionClosed возвращается, если подписка закрыта; следующий Receive подписывается заново.
var ErrSubscriptionClosed = errors.New("redis: подписка закрыта")

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// messageStream отдаёт сообщения подписки; *redis.PubSub сам переподключается.
type messageStream interface {
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// RedisActivityQueue рассылает события активности через Redis Pub/Sub.
// Каждый подписчик получает каждое событие; сообщения без подписчиков теряются.
type RedisActivityQueue struct {
	client    publisher
	subscribe func(ctx context.Context) messageStream
	channel   string

	mu       sync.Mutex
	stream   messageStream
	messages <-chan *redis.Message
}

// NewRedisActivityQueue создаёт очередь на указанном канале Pub/Sub.
func NewRedisActivityQueue(client *redis.Client, channel string) *RedisActivityQueue {
	return &RedisActivityQueue{
		client:  client,
		channel: channel,
		subscribe: func(ctx context.Context) messageStream {
			return client.Subscribe(ctx, channel)
		},
	}
}

// Subscribe оформляет подписку заранее, чтобы не пропустить события до первого Receive.
func (q *RedisActivityQueue) Subscribe(ctx context.Context) {
	q.messagesFor(ctx)
}

// Publish отправляет событие всем подписчикам.
func (q *RedisActivityQueue) Publish(ctx context.Context, event domain.ActivityEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return q.publish(ctx, payload)
}

// Receive блокирующе читает событие. Nack публикует его повторно.
func (q *RedisActivityQueue) Receive(ctx context.Context) (domain.ActivityEvent, domain.ActivityAckFunc, error) {
	if err := ctx.Err(); err != nil {
		return domain.ActivityEvent{}, nil, err
	}
	messages := q.messagesFor(ctx)
	var msg *redis.Message
	select {
	case <-ctx.Done():
		return domain.ActivityEvent{}, nil, ctx.Err()
	case m, ok := <-messages:
		if !ok {
			q.forget(messages)
			return domain.ActivityEvent{}, nil, ErrSubscriptionClosed
		}
		msg = m
	}
	var event domain.ActivityEvent
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		return domain.ActivityEvent{}, nil, fmt.Errorf("decode event: %w", err)
	}
	raw := msg.Payload
	ack := func(success bool) error {
		if success {
			return nil
		}
		return q.publish(context.WithoutCancel(ctx), raw)
	}
	return event, ack, nil
}

// Close отменяет подписку. Клиент Redis закрывает владелец.
func (q *RedisActivityQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stream == nil {
		return nil
	}
	err := q.stream.Close()
	q.stream, q.messages = nil, nil
	return err
}

func (q *RedisActivityQueue) publish(ctx context.Context, payload any) error {
	start := time.Now()
	err := q.client.Publish(ctx, q.channel, payload).Err()
	metrics.ObserveNetworkRequest("redis", "publish", q.channel, start, err)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (q *RedisActivityQueue) messagesFor(ctx context.Context) <-chan *redis.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stream == nil {
		q.stream = q.subscribe(context.WithoutCancel(ctx))
		q.messages = q.stream.Channel()
	}
	return q.messages
}

// forget сбрасывает подписку, если её поток всё ещё текущий.
func (q *RedisActivityQueue) forget(messages <-chan *redis.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.messages != messages {
		return
	}
	_ = q.stream.Close()
	q.stream, q.messages = nil, nil
}
