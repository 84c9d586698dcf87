package client

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/yourorg/messenger/internal/realtime"
	"github.com/yourorg/messenger/internal/reconcile"
)

// Feed is one live websocket subscription. The same socket carries both
// user-channel and conversation-channel traffic; a conversation feed sends a
// join frame after connecting so the server adds it to the room.
type Feed struct {
	conn   *websocket.Conn
	events chan realtime.Event
	cancel context.CancelFunc
	once   sync.Once
	log    *zap.SugaredLogger
}

type joinFrame struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversation_id"`
}

// SubscribeUser opens the user-scoped feed. The server routes on the
// authenticated identity, so no extra frame is needed.
func (c *Client) SubscribeUser(ctx context.Context, userID string) (*Feed, error) {
	return c.dialFeed(ctx, "")
}

// SubscribeConversation opens a feed joined to one conversation's room.
func (c *Client) SubscribeConversation(ctx context.Context, conversationID string) (*Feed, error) {
	return c.dialFeed(ctx, conversationID)
}

// FeedSource adapts the client's concrete feeds to the controller's
// subscriber interface.
func (c *Client) FeedSource() reconcile.Subscriber { return feedSource{c} }

type feedSource struct{ c *Client }

func (s feedSource) SubscribeUser(ctx context.Context, userID string) (reconcile.Feed, error) {
	return s.c.SubscribeUser(ctx, userID)
}

func (s feedSource) SubscribeConversation(ctx context.Context, conversationID string) (reconcile.Feed, error) {
	return s.c.SubscribeConversation(ctx, conversationID)
}

func (c *Client) dialFeed(ctx context.Context, conversationID string) (*Feed, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/ws?token=" + url.QueryEscape(c.token)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)

	if conversationID != "" {
		frame, _ := json.Marshal(joinFrame{Action: "join", ConversationID: conversationID})
		if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
			conn.Close(websocket.StatusInternalError, "join failed")
			return nil, err
		}
	}

	readCtx, cancel := context.WithCancel(context.Background())
	f := &Feed{
		conn:   conn,
		events: make(chan realtime.Event, 64),
		cancel: cancel,
		log:    c.log,
	}
	go f.readLoop(readCtx)
	return f, nil
}

// Events delivers decoded feed events in arrival order. The channel closes
// after Close; events buffered but undelivered at that point are dropped.
func (f *Feed) Events() <-chan realtime.Event { return f.events }

// Close cancels the read loop and closes the socket. Safe to call twice.
func (f *Feed) Close() error {
	f.once.Do(f.cancel)
	return f.conn.Close(websocket.StatusNormalClosure, "client closed")
}

func (f *Feed) readLoop(ctx context.Context) {
	defer close(f.events)
	for {
		_, data, err := f.conn.Read(ctx)
		if err != nil {
			return
		}
		ev, err := realtime.Decode(data)
		if err != nil {
			f.log.Debugw("undecodable feed frame", "err", err)
			continue
		}
		select {
		case f.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}
