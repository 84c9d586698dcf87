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

	"github.com/yourorg/messenger/internal/apperr"
	"github.com/yourorg/messenger/internal/logger"
	"github.com/yourorg/messenger/internal/models"
)

func TestLoginStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/login", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice@example.com", body["email"])
		json.NewEncoder(w).Encode(map[string]any{
			"token": "tok-123",
			"user":  models.User{ID: "u1", Email: "alice@example.com"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, logger.Nop())
	u, err := c.Login(context.Background(), "alice@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "tok-123", c.Token())
}

func TestSnapshotDecodes(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]models.Conversation{
			{ID: "c1", UserIDs: []string{"u1", "u2"}, LastMessageAt: &at},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, logger.Nop())
	c.SetToken("tok")
	convs, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "c1", convs[0].ID)
	require.NotNil(t, convs[0].LastMessageAt)
	assert.True(t, at.Equal(*convs[0].LastMessageAt))
}

func TestSnapshotUnauthorizedIsEmptyList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, logger.Nop())
	convs, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestSendMessageReturnsCreated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/messages", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.Message{ID: "m1", ConversationID: "c1", Body: "hi"})
	}))
	defer srv.Close()

	c := New(srv.URL, logger.Nop())
	msg, err := c.SendMessage(context.Background(), "c1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
}

func TestStatusErrorsMapToSentinels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
	}))
	defer srv.Close()

	c := New(srv.URL, logger.Nop())
	err := c.DeleteMessage(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestBreakerOpensOnServerFaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, logger.Nop())
	for i := 0; i < 5; i++ {
		require.Error(t, c.DeleteMessage(context.Background(), "m1"))
	}
	err := c.DeleteMessage(context.Background(), "m1")
	require.Error(t, err)
	// the breaker rejects without touching the wire once open
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "bad request"})
	}))
	defer srv.Close()

	c := New(srv.URL, logger.Nop())
	for i := 0; i < 10; i++ {
		err := c.DeleteMessage(context.Background(), "m1")
		require.ErrorIs(t, err, apperr.ErrBadRequest)
	}
}
