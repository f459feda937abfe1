// Package queue defines interfaces for the message bus that relay routes
// publish to and consume from. This abstraction allows swapping
// implementations (Kafka, in-memory) without changing relay logic.
package queue

import (
	"context"
)

// Message is one relayed payload on the bus.
type Message struct {
	// Key orders messages within a topic. Outbound routes use the queue name.
	Key []byte

	// Value is the named-queue payload, unchanged.
	Value []byte

	// Headers carry the relay metadata: id, queue and priority.
	Headers map[string]string
}

// Producer defines the interface for publishing messages to a topic.
// Implementations must be safe for concurrent use.
type Producer interface {
	// Publish sends a message to the topic.
	// Messages with the same key are delivered in order.
	Publish(ctx context.Context, msg *Message) error

	// Close releases any resources held by the producer.
	Close() error
}

// MessageHandler processes one consumed message. A returned error means
// the message was not accepted and may be delivered again.
type MessageHandler func(ctx context.Context, msg *Message) error

// Consumer defines the interface for consuming messages from a topic.
type Consumer interface {
	// Start begins consuming messages and calls the handler for each one.
	// This is a blocking call that runs until the context is canceled
	// or an unrecoverable error occurs.
	Start(ctx context.Context, handler MessageHandler) error

	// Close stops consuming and releases any resources.
	Close() error
}

// Transport hands out producers and consumers bound to a topic, so relay
// routes can be wired to Kafka or the in-memory bus alike.
type Transport interface {
	Producer(topic string) Producer
	Consumer(topic string) Consumer
}
