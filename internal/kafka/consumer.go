package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Consumer struct {
	reader *kafka.Reader
	log    *zap.SugaredLogger
}

func NewConsumer(brokers []string, topic, groupID string, log *zap.SugaredLogger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	return &Consumer{reader: r, log: log}
}

// Run delivers decoded records to handle until ctx is cancelled. Read errors
// back off and retry; a record that fails to decode is skipped, not retried.
func (c *Consumer) Run(ctx context.Context, handle func(EventRecord)) error {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warnw("kafka read", "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		var rec EventRecord
		if err := json.Unmarshal(m.Value, &rec); err != nil {
			c.log.Warnw("skipping undecodable record", "offset", m.Offset, "err", err)
			continue
		}
		handle(rec)
	}
}

func (c *Consumer) Close() error { return c.reader.Close() }
