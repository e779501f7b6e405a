// Package transport delivers export notifications between the orchestrator
// and the renderer with at-least-once semantics.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/ambrosia/pkg/schema"
)

// Topics carrying export notifications.
const (
	TopicRequest = "export.request"
	TopicResult  = "export.result"
	TopicError   = "export.error"
	TopicRetry   = "export.retry"
)

const deadLetterSuffix = ".dlq"

// DeadLetterTopic names the topic that receives undeliverable messages of topic.
func DeadLetterTopic(topic string) string {
	return topic + deadLetterSuffix
}

// IsDeadLetterTopic reports whether topic is a dead-letter topic.
func IsDeadLetterTopic(topic string) bool {
	return len(topic) > len(deadLetterSuffix) && topic[len(topic)-len(deadLetterSuffix):] == deadLetterSuffix
}

// Message is one delivery of a payload.
type Message struct {
	ID          string    `json:"id"`
	Topic       string    `json:"topic"`
	Payload     []byte    `json:"payload"`
	Attempt     int       `json:"attempt"`
	PublishedAt time.Time `json:"published_at"`
}

// DeadLetter is the payload published to a dead-letter topic.
type DeadLetter struct {
	MessageID string    `json:"message_id"`
	Topic     string    `json:"topic"`
	Payload   []byte    `json:"payload"`
	Error     string    `json:"error"`
	Attempts  int       `json:"attempts"`
	FailedAt  time.Time `json:"failed_at"`
}

// Handler processes one message. A returned error triggers redelivery or
// dead-lettering.
type Handler func(ctx context.Context, msg Message) error

// Transport publishes payloads to topics and routes them to one handler per topic.
type Transport interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(topic string, h Handler) (unsubscribe func(), err error)
}

// PublishJSON encodes v and publishes it.
func PublishJSON(ctx context.Context, t Transport, topic string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeTransport, "encode %s payload", topic).WithCause(err)
	}
	return t.Publish(ctx, topic, b)
}

// Decode unmarshals a message payload, mapping failures to INVALID_ARGUMENT
// so malformed messages are dead-lettered without redelivery.
func Decode(msg Message, v any) error {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return schema.InvalidArgument("decode %s message %s: %v", msg.Topic, msg.ID, err)
	}
	return nil
}

// DecodeDeadLetter unpacks a dead-letter envelope.
func DecodeDeadLetter(msg Message) (*DeadLetter, error) {
	var dl DeadLetter
	if err := Decode(msg, &dl); err != nil {
		return nil, err
	}
	if len(dl.Payload) == 0 {
		return nil, schema.InvalidArgument("dead letter %s has no payload", msg.ID)
	}
	return &dl, nil
}

func errClosed(topic string) error {
	return schema.NewErrorf(schema.ErrCodeTransport, "publish to %s: transport closed", topic)
}

func describe(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprint(err)
}
