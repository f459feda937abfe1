package kafka

import (
	"log/slog"

	"namedq/internal/config"
	"namedq/internal/queue"
)

// Transport implements queue.Transport on top of a Kafka cluster.
type Transport struct {
	cfg    *config.KafkaConfig
	logger *slog.Logger
}

// NewTransport creates a transport that opens one writer or reader per topic.
func NewTransport(cfg *config.KafkaConfig, logger *slog.Logger) *Transport {
	return &Transport{cfg: cfg, logger: logger}
}

// Producer returns a new producer for topic.
func (t *Transport) Producer(topic string) queue.Producer {
	return NewProducer(t.cfg, topic)
}

// Consumer returns a new consumer for topic in the configured consumer group.
func (t *Transport) Consumer(topic string) queue.Consumer {
	return NewConsumer(t.cfg, topic, t.logger)
}
