package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/unclebandit/campusconnect-mailer/internal/logger"
)

const retryHeader = "x-retry-count"

// AMQPQueue publishes to and consumes from durable RabbitMQ queues named after
// the topic. Messages are acked manually and republished with an incremented
// retry header until MaxRetries is reached.
type AMQPQueue struct {
	conn *amqp.Connection

	// pubMu serialises publishing: an amqp.Channel is not safe for concurrent use.
	pubMu sync.Mutex
	pubCh *amqp.Channel

	MaxRetries int
}

func DialAMQP(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &AMQPQueue{conn: conn, pubCh: ch, MaxRetries: 3}, nil
}

func declare(ch *amqp.Channel, topic string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
}

func (q *AMQPQueue) Publish(ctx context.Context, topic string, body []byte) error {
	return q.publish(ctx, topic, body, 0)
}

func (q *AMQPQueue) publish(ctx context.Context, topic string, body []byte, retries int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	if _, err := declare(q.pubCh, topic); err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	return q.pubCh.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{retryHeader: int32(retries)},
		Body:         body,
	})
}

// Subscribe starts a consumer goroutine on its own channel.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	qd, err := declare(ch, topic)
	if err != nil {
		ch.Close()
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	msgs, err := ch.Consume(
		qd.Name,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("register consumer: %w", err)
	}

	go func() {
		defer ch.Close()
		log := logger.Named("queue").With(logger.Topic(topic))
		for d := range msgs {
			q.deliver(log, topic, d, handler)
		}
		log.Info("consumer stopped")
	}()
	return nil
}

func (q *AMQPQueue) deliver(log *zap.Logger, topic string, d amqp.Delivery, handler Handler) {
	err := handler(d.Body)
	if err == nil {
		d.Ack(false)
		return
	}

	retries := retryCount(d.Headers)
	if retries < q.MaxRetries {
		log.Warn("job failed, requeueing", zap.Int("attempt", retries+1), logger.Err(err))
		if perr := q.publish(context.Background(), topic, d.Body, retries+1); perr != nil {
			log.Error("requeue failed", logger.Err(perr))
			d.Nack(false, true)
			return
		}
	} else {
		log.Error("job permanently failed", zap.Int("attempts", retries+1), logger.Err(err))
	}
	d.Ack(false)
}

// retryCount reads the retry header whatever integer width the broker returned.
func retryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	}
	return 0
}

func (q *AMQPQueue) Close() error {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	if q.pubCh != nil {
		q.pubCh.Close()
	}
	return q.conn.Close()
}

var _ Queue = (*AMQPQueue)(nil)
