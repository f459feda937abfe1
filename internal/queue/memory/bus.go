package memory

import (
	"sync"

	"namedq/internal/queue"
)

// Bus is an in-memory queue.Transport with one Queue per topic.
// Producers and consumers of the same topic share that Queue.
type Bus struct {
	bufferSize int

	// OnError, when set before a topic is first used, is installed on that topic.
	OnError func(msg *queue.Message, err error)

	mu     sync.Mutex
	topics map[string]*Queue
}

// NewBus creates a bus whose topics buffer up to bufferSize messages each.
func NewBus(bufferSize int) *Bus {
	return &Bus{
		bufferSize: bufferSize,
		topics:     make(map[string]*Queue),
	}
}

// Topic returns the queue for a topic, creating it on first use.
func (b *Bus) Topic(name string) *Queue {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.topics[name]
	if !ok {
		q = NewQueue(b.bufferSize)
		q.topic = name
		q.OnError = b.OnError
		b.topics[name] = q
	}
	return q
}

// Producer returns the topic's queue as a producer.
func (b *Bus) Producer(topic string) queue.Producer {
	return nopCloser{b.Topic(topic)}
}

// Consumer returns the topic's queue as a consumer.
func (b *Bus) Consumer(topic string) queue.Consumer {
	return nopCloser{b.Topic(topic)}
}

// Close closes every topic.
func (b *Bus) Close() error {
	b.mu.Lock()
	topics := make([]*Queue, 0, len(b.topics))
	for _, q := range b.topics {
		topics = append(topics, q)
	}
	b.mu.Unlock()

	for _, q := range topics {
		_ = q.Close()
	}
	return nil
}

// nopCloser keeps a route's Close from closing a topic other routes still use.
// The bus closes topics itself.
type nopCloser struct {
	*Queue
}

func (nopCloser) Close() error { return nil }
