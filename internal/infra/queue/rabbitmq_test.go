package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"channel-insights/internal/domain"
)

// fakeBroker раздаёт каналы и рассылает публикации во все открытые привязанные каналы.
type fakeBroker struct {
	mu        sync.Mutex
	channels  []*fakeAMQP
	published []amqp.Publishing
	openErr   error
}

func (b *fakeBroker) open() (amqpChannel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	ch := &fakeAMQP{
		broker: b,
		name:   fmt.Sprintf("amq.gen-%d", len(b.channels)+1),
		out:    make(chan amqp.Delivery, 4),
		nacks:  make(map[uint64]bool),
	}
	b.channels = append(b.channels, ch)
	return ch, nil
}

func (b *fakeBroker) channel(i int) *fakeAMQP {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels[i]
}

func (b *fakeBroker) opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels)
}

type fakeAMQP struct {
	broker *fakeBroker
	name   string
	out    chan amqp.Delivery

	exchangeKind string
	exclusive    bool
	bound        string
	consumes     int
	closed       bool
	tag          uint64
	acks         []uint64
	nacks        map[uint64]bool
}

func (f *fakeAMQP) ExchangeDeclare(_, kind string, _, _, _, _ bool, _ amqp.Table) error {
	f.broker.mu.Lock()
	defer f.broker.mu.Unlock()
	f.exchangeKind = kind
	return nil
}

func (f *fakeAMQP) QueueDeclare(_ string, _, _, exclusive, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.broker.mu.Lock()
	defer f.broker.mu.Unlock()
	f.exclusive = exclusive
	return amqp.Queue{Name: f.name}, nil
}

func (f *fakeAMQP) QueueBind(_, _, exchange string, _ bool, _ amqp.Table) error {
	f.broker.mu.Lock()
	defer f.broker.mu.Unlock()
	f.bound = exchange
	return nil
}

func (f *fakeAMQP) Qos(int, int, bool) error { return nil }

func (f *fakeAMQP) PublishWithContext(_ context.Context, exchange, _ string, _, _ bool, msg amqp.Publishing) error {
	b := f.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if f.closed {
		return amqp.ErrClosed
	}
	b.published = append(b.published, msg)
	for _, ch := range b.channels {
		if ch.closed || ch.bound != exchange {
			continue
		}
		ch.tag++
		ch.out <- amqp.Delivery{Acknowledger: ch, DeliveryTag: ch.tag, Body: msg.Body}
	}
	return nil
}

func (f *fakeAMQP) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	f.broker.mu.Lock()
	defer f.broker.mu.Unlock()
	f.consumes++
	return f.out, nil
}

func (f *fakeAMQP) Close() error {
	f.broker.mu.Lock()
	defer f.broker.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeAMQP) Ack(tag uint64, _ bool) error {
	f.broker.mu.Lock()
	defer f.broker.mu.Unlock()
	f.acks = append(f.acks, tag)
	return nil
}

func (f *fakeAMQP) Nack(tag uint64, _ bool, requeue bool) error {
	f.broker.mu.Lock()
	defer f.broker.mu.Unlock()
	f.nacks[tag] = requeue
	return nil
}

func (f *fakeAMQP) Reject(tag uint64, requeue bool) error { return f.Nack(tag, false, requeue) }

func TestRabbitActivityQueueRoundTrip(t *testing.T) {
	broker := &fakeBroker{}
	q, err := newRabbitQueue(broker.open, "channel_activity")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	ch := broker.channel(0)
	if ch.exchangeKind != amqp.ExchangeFanout || ch.bound != "channel_activity" || !ch.exclusive {
		t.Fatalf("ожидали эксклюзивную очередь на fanout-exchange: %+v", ch)
	}
	ctx := context.Background()
	event := domain.NewActivityEvent("c1", domain.ActivityNewMessages, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	if err := q.Publish(ctx, event); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if broker.published[0].DeliveryMode != amqp.Persistent || broker.published[0].MessageId != event.ID {
		t.Fatalf("неверные свойства публикации: %+v", broker.published[0])
	}

	got, ack, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got.ID != event.ID || got.ChannelID != "c1" {
		t.Fatalf("ожидали %+v, получили %+v", event, got)
	}
	if err := ack(true); err != nil || len(ch.acks) != 1 {
		t.Fatalf("ожидали ack доставки, err=%v", err)
	}

	if err := q.Publish(ctx, event); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	_, nack, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := nack(false); err != nil || !ch.nacks[2] {
		t.Fatalf("ожидали nack с возвратом в очередь")
	}
	if ch.consumes != 1 {
		t.Fatalf("подписка должна создаваться один раз, получили %d", ch.consumes)
	}
}

func TestRabbitActivityQueueFanoutToEveryReplica(t *testing.T) {
	broker := &fakeBroker{}
	first, err := newRabbitQueue(broker.open, "channel_activity")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	second, err := newRabbitQueue(broker.open, "channel_activity")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	event := domain.NewActivityEvent("c1", domain.ActivityManual, time.Now())
	if err := first.Publish(context.Background(), event); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	for i, q := range []*RabbitActivityQueue{first, second} {
		got, _, err := q.Receive(context.Background())
		if err != nil || got.ID != event.ID {
			t.Fatalf("реплика %d должна получить событие, получили %+v, err=%v", i, got, err)
		}
	}
}

func TestRabbitActivityQueueReopensAfterClosedStream(t *testing.T) {
	broker := &fakeBroker{}
	q, _ := newRabbitQueue(broker.open, "k")
	first := broker.channel(0)
	close(first.out)

	if _, _, err := q.Receive(context.Background()); !errors.Is(err, ErrConsumerClosed) {
		t.Fatalf("ожидали ErrConsumerClosed, получили %v", err)
	}
	if !first.closed {
		t.Fatalf("закрытый канал должен освобождаться")
	}

	event := domain.NewActivityEvent("c2", domain.ActivityNewMessages, time.Now())
	if err := q.Publish(context.Background(), event); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	got, _, err := q.Receive(context.Background())
	if err != nil {
		t.Fatalf("после закрытия потока чтение должно восстановиться, получили %v", err)
	}
	if got.ID != event.ID {
		t.Fatalf("ожидали %s, получили %s", event.ID, got.ID)
	}
	if broker.opened() != 2 || broker.channel(1).consumes != 1 {
		t.Fatalf("ожидали новый канал и новую подписку, каналов %d", broker.opened())
	}
}

func TestRabbitActivityQueuePublishReopensClosedChannel(t *testing.T) {
	broker := &fakeBroker{}
	q, _ := newRabbitQueue(broker.open, "k")
	_ = broker.channel(0).Close()

	event := domain.NewActivityEvent("c1", domain.ActivityManual, time.Now())
	if err := q.Publish(context.Background(), event); !errors.Is(err, amqp.ErrClosed) {
		t.Fatalf("ожидали amqp.ErrClosed, получили %v", err)
	}
	if err := q.Publish(context.Background(), event); err != nil {
		t.Fatalf("повторная публикация должна открыть новый канал: %v", err)
	}
	if broker.opened() != 2 {
		t.Fatalf("ожидали 2 открытых канала, получили %d", broker.opened())
	}
}

func TestRabbitActivityQueueReportsOpenError(t *testing.T) {
	broker := &fakeBroker{}
	q, _ := newRabbitQueue(broker.open, "k")
	close(broker.channel(0).out)
	if _, _, err := q.Receive(context.Background()); !errors.Is(err, ErrConsumerClosed) {
		t.Fatalf("ожидали ErrConsumerClosed, получили %v", err)
	}

	broker.mu.Lock()
	broker.openErr = errors.New("connection refused")
	broker.mu.Unlock()
	if _, _, err := q.Receive(context.Background()); err == nil {
		t.Fatalf("ожидали ошибку открытия канала")
	}

	broker.mu.Lock()
	broker.openErr = nil
	broker.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, _, err := q.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("после восстановления брокера ожидали ожидание доставки, получили %v", err)
	}
}

func TestRabbitActivityQueueDropsBadPayload(t *testing.T) {
	broker := &fakeBroker{}
	q, _ := newRabbitQueue(broker.open, "k")
	ch := broker.channel(0)
	ch.out <- amqp.Delivery{Acknowledger: ch, DeliveryTag: 7, Body: []byte("oops")}
	if _, _, err := q.Receive(context.Background()); err == nil {
		t.Fatalf("ожидали ошибку декодирования")
	}
	if requeue, ok := ch.nacks[7]; !ok || requeue {
		t.Fatalf("битое сообщение отклоняется без возврата")
	}
}

func TestRabbitActivityQueueEmptyName(t *testing.T) {
	broker := &fakeBroker{}
	if _, err := newRabbitQueue(broker.open, ""); err == nil {
		t.Fatalf("ожидали ошибку для пустого имени exchange")
	}
}
