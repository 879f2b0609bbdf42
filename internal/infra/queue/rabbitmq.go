package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"dating-trust-engine/internal/domain"
	"dating-trust-engine/internal/infra/metrics"
)

// RabbitEventQueue реализует очередь поведенческих событий через AMQP.
// Очередь объявляется durable, публикация идёт в default exchange.
type RabbitEventQueue struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	queue      string
	deliveries <-chan amqp.Delivery
}

// NewRabbitEventQueue подключается к брокеру и объявляет очередь.
func NewRabbitEventQueue(amqpURL, queue string) (*RabbitEventQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitEventQueue{conn: conn, channel: channel, queue: queue}, nil
}

// Enqueue публикует событие в очередь.
func (q *RabbitEventQueue) Enqueue(ctx context.Context, event domain.BehaviorEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	err = q.channel.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	metrics.ObserveStoreRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Pop блокирующе читает событие из очереди. Сообщение подтверждается
// после успешного декодирования; битое сообщение отбрасывается без
// повторной доставки.
func (q *RabbitEventQueue) Pop(ctx context.Context) (domain.BehaviorEvent, error) {
	if q.deliveries == nil {
		deliveries, err := q.channel.Consume(q.queue, "", false, false, false, false, nil)
		if err != nil {
			return domain.BehaviorEvent{}, fmt.Errorf("consume queue: %w", err)
		}
		q.deliveries = deliveries
	}

	for {
		select {
		case <-ctx.Done():
			return domain.BehaviorEvent{}, ctx.Err()
		case delivery, ok := <-q.deliveries:
			if !ok {
				return domain.BehaviorEvent{}, errors.New("amqp queue: delivery channel closed")
			}
			var event domain.BehaviorEvent
			if err := json.Unmarshal(delivery.Body, &event); err != nil {
				_ = delivery.Nack(false, false)
				return domain.BehaviorEvent{}, fmt.Errorf("decode event: %w", err)
			}
			if err := delivery.Ack(false); err != nil {
				return domain.BehaviorEvent{}, fmt.Errorf("ack event: %w", err)
			}
			return event, nil
		}
	}
}

// Close закрывает канал и соединение.
func (q *RabbitEventQueue) Close() error {
	if err := q.channel.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
