package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"namedq/internal/config"
	"namedq/internal/queue"
)

const (
	// redeliveryBackoff is the pause before a message the handler failed on is handed over again.
	redeliveryBackoff = time.Second

	// fetchBackoff is the pause after a failed fetch.
	fetchBackoff = time.Second
)

// Consumer feeds one Kafka topic to a handler as a member of the relay's consumer group.
//
// The handler only fails on errors after which the message can still be
// delivered, e.g. a named queue that is being re-created. Such a message is
// redelivered until it is accepted, and its offset is committed only then.
type Consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

// NewConsumer creates a consumer for topic.
func NewConsumer(cfg *config.KafkaConfig, topic string, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    topic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	return &Consumer{
		reader: reader,
		logger: logger.With("topic", topic, "group", cfg.ConsumerGroup),
	}
}

// Start fetches messages until the context is canceled, the reader is closed
// or a commit fails.
func (c *Consumer) Start(ctx context.Context, handler queue.MessageHandler) error {
	c.logger.Info("starting kafka consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("kafka consumer stopping")
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("kafka reader closed: %w", err)
			}
			c.logger.Error("failed to fetch message", "error", err)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(fetchBackoff):
			}
			continue
		}

		if err := c.deliver(ctx, handler, msg); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to commit message",
				"error", err,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			return fmt.Errorf("failed to commit message: %w", err)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, handler queue.MessageHandler, msg kafka.Message) error {
	for attempt := 1; ; attempt++ {
		err := handler(ctx, fromKafka(msg))
		if err == nil {
			return nil
		}

		c.logger.Warn("handler failed, redelivering",
			"error", err,
			"attempt", attempt,
			"partition", msg.Partition,
			"offset", msg.Offset,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(redeliveryBackoff):
		}
	}
}

// Close leaves the consumer group and closes the reader.
func (c *Consumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
