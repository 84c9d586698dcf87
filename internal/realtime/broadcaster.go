package realtime

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Broadcaster fans events out through redis pub/sub so every server instance
// can deliver them to its local websocket clients. There is no transaction
// between persisting a mutation and announcing it here; a failed publish
// leaves stored state unannounced until the next snapshot fetch.
type Broadcaster struct {
	rdb    *redis.Client
	prefix string
	log    *zap.SugaredLogger
}

func NewBroadcaster(rdb *redis.Client, prefix string, log *zap.SugaredLogger) *Broadcaster {
	return &Broadcaster{rdb: rdb, prefix: prefix, log: log}
}

// ToUsers publishes the event on each recipient's user channel.
func (b *Broadcaster) ToUsers(ctx context.Context, userIDs []string, ev Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	var firstErr error
	for _, id := range userIDs {
		if err := b.rdb.Publish(ctx, UserChannel(b.prefix, id), payload).Err(); err != nil {
			b.log.Warnw("publish failed", "channel", UserChannel(b.prefix, id), "event", ev.EventName(), "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ToConversation publishes the event on the conversation channel used for
// in-room message fan-out.
func (b *Broadcaster) ToConversation(ctx context.Context, conversationID string, ev Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, ConversationChannel(b.prefix, conversationID), payload).Err(); err != nil {
		b.log.Warnw("publish failed", "channel", ConversationChannel(b.prefix, conversationID), "event", ev.EventName(), "err", err)
		return err
	}
	return nil
}
