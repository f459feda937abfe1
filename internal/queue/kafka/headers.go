package kafka

import (
	"github.com/segmentio/kafka-go"

	"namedq/internal/queue"
)

func toKafka(msg *queue.Message) kafka.Message {
	out := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
	}
	if len(msg.Headers) > 0 {
		out.Headers = make([]kafka.Header, 0, len(msg.Headers))
		for k, v := range msg.Headers {
			out.Headers = append(out.Headers, kafka.Header{Key: k, Value: []byte(v)})
		}
	}
	return out
}

// fromKafka converts a fetched message. Repeated header keys keep the last value.
func fromKafka(msg kafka.Message) *queue.Message {
	out := &queue.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: make(map[string]string, len(msg.Headers)),
	}
	for _, h := range msg.Headers {
		out.Headers[h.Key] = string(h.Value)
	}
	return out
}
