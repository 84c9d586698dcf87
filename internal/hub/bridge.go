package hub

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Bridge subscribes the local hub to the redis pub/sub channels the
// broadcaster publishes on, so deliveries reach clients connected to any
// instance. Channels follow the <prefix>:user:<id> / <prefix>:conv:<id>
// naming.
type Bridge struct {
	rdb    *redis.Client
	hub    *Hub
	prefix string
	log    *zap.SugaredLogger
}

func NewBridge(rdb *redis.Client, h *Hub, prefix string, log *zap.SugaredLogger) *Bridge {
	return &Bridge{rdb: rdb, hub: h, prefix: prefix, log: log}
}

// Run consumes pub/sub deliveries until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.rdb.PSubscribe(ctx, b.prefix+":user:*", b.prefix+":conv:*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			b.route(m.Channel, []byte(m.Payload))
		}
	}
}

func (b *Bridge) route(channel string, payload []byte) {
	rest, ok := strings.CutPrefix(channel, b.prefix+":")
	if !ok {
		return
	}
	switch {
	case strings.HasPrefix(rest, "user:"):
		b.hub.SendToUser(strings.TrimPrefix(rest, "user:"), payload)
	case strings.HasPrefix(rest, "conv:"):
		b.hub.SendToConversation(strings.TrimPrefix(rest, "conv:"), payload)
	default:
		b.log.Debugw("unroutable channel", "channel", channel)
	}
}
