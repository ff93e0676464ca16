// Package events connects the shopping state to Kafka: it clears carts after
// checkout and carries failed merges to a retry consumer.
package events

import (
	"context"

	"github.com/segmentio/kafka-go"
)

const maxMessageBytes = 10e6 // 10MB

// MessageReader is the part of *kafka.Reader the consumers use.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func newReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: maxMessageBytes,
	})
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
