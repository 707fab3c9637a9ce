package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"channel-insights/internal/domain"
	"channel-insights/internal/infra/metrics"
)

// ErrConsumerClosed возвращается, когда брокер закрыл поток доставок.
// Следующий вызов Receive открывает канал заново.
var ErrConsumerClosed = errors.New("rabbitmq: поток доставок закрыт")

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// channelOpener открывает новый AMQP-канал.
type channelOpener func() (amqpChannel, error)

// RabbitActivityQueue рассылает события активности через fanout-exchange.
// Каждый процесс читает свою эксклюзивную очередь, поэтому событие получают все реплики.
type RabbitActivityQueue struct {
	exchange string
	open     channelOpener
	shutdown func() error

	mu         sync.Mutex
	ch         amqpChannel
	queue      string
	deliveries <-chan amqp.Delivery
}

// NewRabbitActivityQueue подключается к брокеру и объявляет exchange.
// Упавшее соединение переподключается при следующем открытии канала.
func NewRabbitActivityQueue(amqpURL, exchange string) (*RabbitActivityQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	var connMu sync.Mutex
	open := func() (amqpChannel, error) {
		connMu.Lock()
		defer connMu.Unlock()
		if conn.IsClosed() {
			fresh, err := amqp.Dial(amqpURL)
			if err != nil {
				return nil, fmt.Errorf("redial rabbitmq: %w", err)
			}
			conn = fresh
		}
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
	q, err := newRabbitQueue(open, exchange)
	if err != nil {
		conn.Close()
		return nil, err
	}
	q.shutdown = func() error {
		connMu.Lock()
		defer connMu.Unlock()
		return conn.Close()
	}
	return q, nil
}

func newRabbitQueue(open channelOpener, exchange string) (*RabbitActivityQueue, error) {
	if exchange == "" {
		return nil, errors.New("exchange name is empty")
	}
	q := &RabbitActivityQueue{exchange: exchange, open: open}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, err := q.channelLocked(); err != nil {
		return nil, err
	}
	return q, nil
}

// Publish отправляет событие в exchange.
func (q *RabbitActivityQueue) Publish(ctx context.Context, event domain.ActivityEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	q.mu.Lock()
	ch, err := q.channelLocked()
	q.mu.Unlock()
	if err != nil {
		return err
	}
	start := time.Now()
	err = ch.PublishWithContext(ctx, q.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.OccurredAt,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.exchange, start, err)
	if err != nil {
		if errors.Is(err, amqp.ErrClosed) {
			q.reset(ch)
		}
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Receive ждёт следующую доставку. Ack подтверждает её, nack возвращает в очередь.
func (q *RabbitActivityQueue) Receive(ctx context.Context) (domain.ActivityEvent, domain.ActivityAckFunc, error) {
	ch, deliveries, err := q.consume()
	if err != nil {
		return domain.ActivityEvent{}, nil, err
	}
	select {
	case <-ctx.Done():
		return domain.ActivityEvent{}, nil, ctx.Err()
	case d, ok := <-deliveries:
		if !ok {
			q.reset(ch)
			return domain.ActivityEvent{}, nil, ErrConsumerClosed
		}
		var event domain.ActivityEvent
		if err := json.Unmarshal(d.Body, &event); err != nil {
			// Битое сообщение не вернётся в очередь.
			_ = d.Nack(false, false)
			return domain.ActivityEvent{}, nil, fmt.Errorf("decode event: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return d.Ack(false)
			}
			return d.Nack(false, true)
		}
		return event, ack, nil
	}
}

// Close закрывает канал и соединение.
func (q *RabbitActivityQueue) Close() error {
	q.mu.Lock()
	var err error
	if q.ch != nil {
		err = q.ch.Close()
		q.ch, q.deliveries = nil, nil
	}
	q.mu.Unlock()
	if q.shutdown != nil {
		err = errors.Join(err, q.shutdown())
	}
	return err
}

func (q *RabbitActivityQueue) consume() (amqpChannel, <-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, err := q.channelLocked()
	if err != nil {
		return nil, nil, err
	}
	if q.deliveries != nil {
		return ch, q.deliveries, nil
	}
	deliveries, err := ch.Consume(q.queue, "", false, true, false, false, nil)
	if err != nil {
		q.dropLocked()
		return nil, nil, fmt.Errorf("consume %s: %w", q.queue, err)
	}
	q.deliveries = deliveries
	return ch, deliveries, nil
}

// channelLocked возвращает открытый канал, при необходимости открывая новый
// и заново объявляя exchange и очередь процесса.
func (q *RabbitActivityQueue) channelLocked() (amqpChannel, error) {
	if q.ch != nil {
		return q.ch, nil
	}
	ch, err := q.open()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	name, err := declareTopology(ch, q.exchange)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	q.ch, q.queue, q.deliveries = ch, name, nil
	return ch, nil
}

func declareTopology(ch amqpChannel, exchange string) (string, error) {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return "", fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	declared, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return "", fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(declared.Name, "", exchange, false, nil); err != nil {
		return "", fmt.Errorf("bind queue %s: %w", declared.Name, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return "", fmt.Errorf("set qos: %w", err)
	}
	return declared.Name, nil
}

// reset забывает канал ch, если он всё ещё текущий.
func (q *RabbitActivityQueue) reset(ch amqpChannel) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch == ch {
		q.dropLocked()
	}
}

func (q *RabbitActivityQueue) dropLocked() {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	q.ch, q.deliveries = nil, nil
}
