// internal/queue/queue.go
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/campusconnect-mailer/internal/logger"
)

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, body []byte) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

// Handler processes one message body. A non-nil error asks for a redelivery.
type Handler func(body []byte) error

// InMemoryQueue is an in-process queue with retry
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	wg       sync.WaitGroup

	// MaxRetries is the number of redeliveries after the first attempt.
	MaxRetries int
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
	}
}

// job wraps a message body with retry info
type job struct {
	topic      string
	body       []byte
	retryCount int
	maxRetries int
}

// Publish hands a copy of body to every subscriber of topic.
func (q *InMemoryQueue) Publish(_ context.Context, topic string, body []byte) error {
	q.mu.Lock()
	handlers := append([]Handler(nil), q.handlers[topic]...)
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		j := job{
			topic:      topic,
			body:       append([]byte(nil), body...),
			maxRetries: q.MaxRetries,
		}
		q.wg.Add(1)
		go q.processJob(handler, j)
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler Handler, j job) {
	defer q.wg.Done()
	log := logger.Named("queue").With(logger.Topic(j.topic))

	for j.retryCount <= j.maxRetries {
		err := handler(j.body)
		if err == nil {
			log.Debug("job processed")
			return // ACK
		}

		j.retryCount++
		log.Warn("job failed", zap.Int("attempt", j.retryCount), zap.Int("max_retries", j.maxRetries), logger.Err(err))

		if j.retryCount > j.maxRetries {
			log.Error("job permanently failed", zap.Int("attempts", j.retryCount))
			return // no requeue
		}

		time.Sleep(time.Duration(j.retryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close waits for in-flight jobs, retries included.
func (q *InMemoryQueue) Close() error {
	q.wg.Wait()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
