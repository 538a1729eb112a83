package task

import (
	"context"
	"encoding/json"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	apperrors "ChainAgent/internal/errors"
)

const defaultRabbitQueue = "chainagent.tasks"

// RabbitQueue moves tasks through a RabbitMQ queue with manual acks, so a
// worker crash requeues the task instead of losing it.
type RabbitQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	consumeOnce sync.Once
	deliveries  <-chan amqp.Delivery
	consumeErr  error
}

// RabbitConfig holds broker connection parameters.
type RabbitConfig struct {
	URL      string
	Queue    string
	Prefetch int
	Durable  bool
}

// NewRabbitQueue connects to the broker and declares the queue.
func NewRabbitQueue(cfg RabbitConfig) (*RabbitQueue, error) {
	if cfg.Queue == "" {
		cfg.Queue = defaultRabbitQueue
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeQueueFailure, err, "connect rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, apperrors.Wrap(apperrors.CodeQueueFailure, err, "open channel")
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			_ = conn.Close()
			return nil, apperrors.Wrap(apperrors.CodeQueueFailure, err, "set prefetch")
		}
	}
	if _, err := ch.QueueDeclare(cfg.Queue, cfg.Durable, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, apperrors.Wrap(apperrors.CodeQueueFailure, err, "declare queue")
	}
	return &RabbitQueue{conn: conn, ch: ch, queue: cfg.Queue}, nil
}

func (q *RabbitQueue) Enqueue(ctx context.Context, t *Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeQueueFailure, err, "encode task")
	}
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    t.ID,
		Body:         data,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeQueueFailure, err, "publish task")
	}
	return nil
}

func (q *RabbitQueue) Dequeue(ctx context.Context) (*Task, error) {
	q.consumeOnce.Do(func() {
		q.deliveries, q.consumeErr = q.ch.Consume(q.queue, "", false, false, false, false, nil)
	})
	if q.consumeErr != nil {
		return nil, apperrors.Wrap(apperrors.CodeQueueFailure, q.consumeErr, "start consumer")
	}
	select {
	case delivery, ok := <-q.deliveries:
		if !ok {
			return nil, apperrors.New(apperrors.CodeQueueFailure, "consumer channel closed")
		}
		var t Task
		if err := json.Unmarshal(delivery.Body, &t); err != nil {
			_ = delivery.Nack(false, false)
			return nil, apperrors.Wrap(apperrors.CodeQueueFailure, err, "decode task")
		}
		if err := delivery.Ack(false); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeQueueFailure, err, "ack task")
		}
		return &t, nil
	case <-ctx.Done():
		return nil, apperrors.Wrap(apperrors.CodeQueueFailure, ctx.Err(), "dequeue cancelled")
	}
}

func (q *RabbitQueue) Close() error {
	_ = q.ch.Close()
	return q.conn.Close()
}
