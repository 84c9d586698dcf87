package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/yourorg/messenger/internal/logger"
	"github.com/yourorg/messenger/internal/models"
	"github.com/yourorg/messenger/internal/realtime"
)

func feedServer(t *testing.T, serve func(ctx context.Context, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ws", r.URL.Path)
		require.NotEmpty(t, r.URL.Query().Get("token"))
		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		serve(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUserFeedDeliversEvents(t *testing.T) {
	payload, err := realtime.Encode(realtime.MessageNew{
		Message: models.Message{ID: "m1", ConversationID: "c1", Type: models.TypeText, Body: "hi"},
	})
	require.NoError(t, err)

	srv := feedServer(t, func(ctx context.Context, conn *websocket.Conn) {
		require.NoError(t, conn.Write(ctx, websocket.MessageText, payload))
		// hold the socket open until the client hangs up
		conn.Read(ctx)
	})

	c := New(srv.URL, logger.Nop())
	c.SetToken("tok")
	feed, err := c.SubscribeUser(context.Background(), "u1")
	require.NoError(t, err)
	defer feed.Close()

	select {
	case ev := <-feed.Events():
		msg, ok := ev.(realtime.MessageNew)
		require.True(t, ok)
		assert.Equal(t, "m1", msg.Message.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestConversationFeedSendsJoinFrame(t *testing.T) {
	joined := make(chan string, 1)
	srv := feedServer(t, func(ctx context.Context, conn *websocket.Conn) {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var frame struct {
			Action         string `json:"action"`
			ConversationID string `json:"conversation_id"`
		}
		if json.Unmarshal(data, &frame) == nil {
			joined <- frame.ConversationID
		}
		conn.Read(ctx)
	})

	c := New(srv.URL, logger.Nop())
	c.SetToken("tok")
	feed, err := c.SubscribeConversation(context.Background(), "c9")
	require.NoError(t, err)
	defer feed.Close()

	select {
	case id := <-joined:
		assert.Equal(t, "c9", id)
	case <-time.After(2 * time.Second):
		t.Fatal("join frame never arrived")
	}
}

func TestFeedCloseEndsEvents(t *testing.T) {
	srv := feedServer(t, func(ctx context.Context, conn *websocket.Conn) {
		conn.Read(ctx)
	})

	c := New(srv.URL, logger.Nop())
	c.SetToken("tok")
	feed, err := c.SubscribeUser(context.Background(), "u1")
	require.NoError(t, err)
	feed.Close()

	select {
	case _, ok := <-feed.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel did not close")
	}
}
