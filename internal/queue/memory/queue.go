// Package memory provides an in-memory implementation of the queue interfaces.
// This is useful for testing and single-host deployments without a broker.
package memory

import (
	"context"
	"sync"

	"namedq/internal/queue"
)

// Queue is an in-memory topic implementing both Producer and Consumer.
// Messages are stored in a channel and each one is handed to exactly one consumer.
// This implementation is safe for concurrent use.
type Queue struct {
	topic     string
	messages  chan *queue.Message
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// OnError, when set, is called for messages the handler failed on.
	OnError func(msg *queue.Message, err error)
}

// NewQueue creates a new in-memory queue with the specified buffer size.
// The buffer size determines how many messages can be queued before
// Publish blocks (or fails if the context is canceled).
func NewQueue(bufferSize int) *Queue {
	return &Queue{
		messages: make(chan *queue.Message, bufferSize),
		done:     make(chan struct{}),
	}
}

// Topic returns the topic this queue was created for, if any.
func (q *Queue) Topic() string {
	return q.topic
}

// Publish sends a message to the in-memory queue.
// This method blocks if the queue is full until space is available,
// the queue is closed, or the context is canceled.
func (q *Queue) Publish(ctx context.Context, msg *queue.Message) error {
	select {
	case <-q.done:
		return ErrTopicClosed
	default:
	}

	select {
	case q.messages <- msg:
		return nil
	case <-q.done:
		return ErrTopicClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start begins consuming messages and calls the handler for each one.
// This blocks until the context is canceled or the queue is closed.
func (q *Queue) Start(ctx context.Context, handler queue.MessageHandler) error {
	q.wg.Add(1)
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return nil
		case msg := <-q.messages:
			if err := handler(ctx, msg); err != nil && q.OnError != nil {
				q.OnError(msg, err)
			}
		}
	}
}

// Close shuts down the queue, stopping all consumers and failing blocked publishers.
// Messages still buffered are discarded.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		close(q.done)
	})
	q.wg.Wait()
	return nil
}

// Len returns the current number of messages in the queue.
// Useful for testing to verify queue state.
func (q *Queue) Len() int {
	return len(q.messages)
}
