package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// EventRecord is the durable form of a message lifecycle event, keyed by
// conversation so one conversation's history stays in partition order.
type EventRecord struct {
	Event          string      `json:"event"` // "message.new" | "message.deleted" | "chat.cleared"
	ConversationID string      `json:"conversation_id"`
	ActorID        string      `json:"actor_id"`
	Payload        interface{} `json:"payload,omitempty"`
	At             time.Time   `json:"at"`
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &Producer{writer: w}
}

func (p *Producer) Publish(ctx context.Context, rec EventRecord) error {
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.ConversationID),
		Value: value,
		Time:  rec.At,
	})
}

func (p *Producer) Close() error { return p.writer.Close() }
