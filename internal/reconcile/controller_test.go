package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/messenger/internal/logger"
	"github.com/yourorg/messenger/internal/models"
	"github.com/yourorg/messenger/internal/realtime"
)

type fakeAPI struct {
	mu        sync.Mutex
	snapshot  []models.Conversation
	snapErr   error
	sendFn    func(conversationID, body string) (models.Message, error)
	deleteErr error
	clearErr  error
}

func (f *fakeAPI) Snapshot(context.Context) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, f.snapErr
}

func (f *fakeAPI) SendMessage(_ context.Context, conversationID, body string) (models.Message, error) {
	f.mu.Lock()
	fn := f.sendFn
	f.mu.Unlock()
	if fn != nil {
		return fn(conversationID, body)
	}
	return models.Message{ID: "srv-1", ConversationID: conversationID, Body: body, Type: models.TypeText, CreatedAt: time.Now().UTC()}, nil
}

func (f *fakeAPI) DeleteMessage(context.Context, string) error { return f.deleteErr }
func (f *fakeAPI) ClearChat(context.Context, string) error     { return f.clearErr }

type fakeFeed struct {
	ch   chan realtime.Event
	once sync.Once
}

func newFakeFeed() *fakeFeed { return &fakeFeed{ch: make(chan realtime.Event, 16)} }

func (f *fakeFeed) Events() <-chan realtime.Event { return f.ch }

func (f *fakeFeed) Close() error {
	f.once.Do(func() { close(f.ch) })
	return nil
}

type fakeSubscriber struct {
	mu        sync.Mutex
	userFeeds map[string]*fakeFeed
	convFeeds map[string]*fakeFeed
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{userFeeds: map[string]*fakeFeed{}, convFeeds: map[string]*fakeFeed{}}
}

func (s *fakeSubscriber) SubscribeUser(_ context.Context, userID string) (Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := newFakeFeed()
	s.userFeeds[userID] = f
	return f, nil
}

func (s *fakeSubscriber) SubscribeConversation(_ context.Context, conversationID string) (Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := newFakeFeed()
	s.convFeeds[conversationID] = f
	return f, nil
}

func (s *fakeSubscriber) user(id string) *fakeFeed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userFeeds[id]
}

func (s *fakeSubscriber) conv(id string) *fakeFeed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convFeeds[id]
}

func snapshotConv(id string, msgs ...models.Message) models.Conversation {
	c := models.Conversation{ID: id, UserIDs: []string{"me", "them"}, CreatedAt: time.Unix(1, 0).UTC(), Messages: msgs}
	if len(msgs) > 0 {
		at := msgs[len(msgs)-1].CreatedAt
		c.LastMessageAt = &at
	}
	return c
}

func hydrated(t *testing.T, api *fakeAPI) (*Controller, *fakeSubscriber) {
	t.Helper()
	sub := newFakeSubscriber()
	c := NewController(api, sub, logger.Nop())
	require.NoError(t, c.Hydrate(context.Background(), "me"))
	require.Equal(t, Hydrated, c.State())
	return c, sub
}

func TestHydrateSeedsListFromSnapshot(t *testing.T) {
	api := &fakeAPI{snapshot: []models.Conversation{snapshotConv("c1"), snapshotConv("c2")}}
	c, _ := hydrated(t, api)
	defer c.Detach()

	assert.Len(t, c.Conversations(), 2)
}

func TestHydrateToleratesEmptySnapshot(t *testing.T) {
	api := &fakeAPI{}
	c, _ := hydrated(t, api)
	defer c.Detach()

	assert.Empty(t, c.Conversations())
}

func TestHydrateFailureLeavesUninitialized(t *testing.T) {
	api := &fakeAPI{snapErr: errors.New("boom")}
	sub := newFakeSubscriber()
	c := NewController(api, sub, logger.Nop())

	require.Error(t, c.Hydrate(context.Background(), "me"))
	assert.Equal(t, Uninitialized, c.State())
	assert.Empty(t, c.Conversations())
}

func TestConversationNewEventUpserts(t *testing.T) {
	api := &fakeAPI{snapshot: []models.Conversation{snapshotConv("c1")}}
	c, sub := hydrated(t, api)
	defer c.Detach()

	feed := sub.user("me")
	feed.ch <- realtime.ConversationNew{Conversation: snapshotConv("c2")}
	feed.ch <- realtime.ConversationNew{Conversation: snapshotConv("c2")} // duplicate delivery

	require.Eventually(t, func() bool { return len(c.Conversations()) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond) // give the duplicate a chance to misapply
	assert.Len(t, c.Conversations(), 2)
}

func TestConversationUpdateUsesLastMessageOfPayload(t *testing.T) {
	api := &fakeAPI{snapshot: []models.Conversation{snapshotConv("c1")}}
	c, sub := hydrated(t, api)
	defer c.Detach()

	payload := snapshotConv("c1",
		models.Message{ID: "m1", ConversationID: "c1", CreatedAt: time.Unix(10, 0).UTC()},
		models.Message{ID: "m2", ConversationID: "c1", CreatedAt: time.Unix(20, 0).UTC()},
	)
	sub.user("me").ch <- realtime.ConversationUpdate{Conversation: payload}

	require.Eventually(t, func() bool {
		cs := c.Conversations()
		return len(cs) == 1 && len(cs[0].Messages) == 1
	}, time.Second, 5*time.Millisecond)
	cs := c.Conversations()
	assert.Equal(t, "m2", cs[0].Messages[0].ID, "only the last element of the event's sequence is consumed")
}

func TestConversationRemoveEvent(t *testing.T) {
	api := &fakeAPI{snapshot: []models.Conversation{snapshotConv("c1"), snapshotConv("c2")}}
	c, sub := hydrated(t, api)
	defer c.Detach()

	sub.user("me").ch <- realtime.ConversationRemove{ConversationID: "c1"}

	require.Eventually(t, func() bool { return len(c.Conversations()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "c2", c.Conversations()[0].ID)
}

func TestSetActiveSeedsTimeline(t *testing.T) {
	m1 := models.Message{ID: "m1", ConversationID: "c1", CreatedAt: time.Unix(10, 0).UTC()}
	api := &fakeAPI{snapshot: []models.Conversation{snapshotConv("c1", m1)}}
	c, _ := hydrated(t, api)
	defer c.Detach()

	require.NoError(t, c.SetActive(context.Background(), "c1"))
	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
}

func TestMessageDeleteEventRemovesFromTimeline(t *testing.T) {
	m1 := models.Message{ID: "m1", ConversationID: "c1", CreatedAt: time.Unix(10, 0).UTC()}
	api := &fakeAPI{snapshot: []models.Conversation{snapshotConv("c1", m1)}}
	c, sub := hydrated(t, api)
	defer c.Detach()
	require.NoError(t, c.SetActive(context.Background(), "c1"))

	sub.user("me").ch <- realtime.MessageDelete{MessageID: "m1"}

	require.Eventually(t, func() bool { return len(c.Messages()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestChatClearEventScopedToActiveConversation(t *testing.T) {
	m1 := models.Message{ID: "m1", ConversationID: "c1", CreatedAt: time.Unix(10, 0).UTC()}
	api := &fakeAPI{snapshot: []models.Conversation{snapshotConv("c1", m1), snapshotConv("c2")}}
	c, sub := hydrated(t, api)
	defer c.Detach()
	require.NoError(t, c.SetActive(context.Background(), "c1"))

	// clear for some other conversation must not touch the open timeline
	sub.user("me").ch <- realtime.ChatClear{ConversationID: "c2", ClearedAt: time.Now().UTC(), ClearedBy: "them"}
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, c.Messages(), 1)

	sub.user("me").ch <- realtime.ChatClear{ConversationID: "c1", ClearedAt: time.Now().UTC(), ClearedBy: "them"}
	require.Eventually(t, func() bool { return len(c.Messages()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestSendMessageOptimisticThenConfirmed(t *testing.T) {
	api := &fakeAPI{snapshot: []models.Conversation{snapshotConv("c1")}}
	api.sendFn = func(conversationID, body string) (models.Message, error) {
		return models.Message{ID: "srv-1", ConversationID: conversationID, SenderID: "me", Body: body, CreatedAt: time.Now().UTC()}, nil
	}
	c, _ := hydrated(t, api)
	defer c.Detach()
	require.NoError(t, c.SetActive(context.Background(), "c1"))

	require.NoError(t, c.SendMessage(context.Background(), "c1", "hello"))

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "srv-1", msgs[0].ID)
	assert.False(t, IsPlaceholder(msgs[0].ID))
}

func TestSendMessageFailureRollsBackAndRestoresDraft(t *testing.T) {
	api := &fakeAPI{snapshot: []models.Conversation{snapshotConv("c1")}}
	api.sendFn = func(string, string) (models.Message, error) {
		return models.Message{}, errors.New("network down")
	}
	c, _ := hydrated(t, api)
	defer c.Detach()
	require.NoError(t, c.SetActive(context.Background(), "c1"))
	before := c.Messages()

	c.SetDraft("hello")
	err := c.SendMessage(context.Background(), "c1", "hello")

	require.Error(t, err)
	assert.Equal(t, before, c.Messages(), "placeholder must be gone")
	assert.Equal(t, "hello", c.Draft(), "typed text restored for manual retry")
}

func TestSendMessageRealtimeCopyArrivesFirst(t *testing.T) {
	// the feed can deliver the authoritative copy of a self-sent message
	// before the HTTP response confirms it; the placeholder must be
	// reconciled, not duplicated
	api := &fakeAPI{snapshot: []models.Conversation{snapshotConv("c1")}}
	c, sub := hydrated(t, api)
	defer c.Detach()
	require.NoError(t, c.SetActive(context.Background(), "c1"))

	authoritative := models.Message{ID: "srv-1", ConversationID: "c1", SenderID: "me", Body: "hello", CreatedAt: time.Now().UTC()}
	api.sendFn = func(conversationID, body string) (models.Message, error) {
		// deliver via realtime before returning, as a racing fan-out would
		sub.conv("c1").ch <- realtime.MessageNew{Message: authoritative}
		require.Eventually(t, func() bool {
			for _, m := range c.Messages() {
				if m.ID == "srv-1" {
					return true
				}
			}
			return false
		}, time.Second, 5*time.Millisecond)
		return authoritative, nil
	}

	require.NoError(t, c.SendMessage(context.Background(), "c1", "hello"))

	msgs := c.Messages()
	require.Len(t, msgs, 1, "heuristic match must collapse placeholder and realtime copy")
	assert.Equal(t, "srv-1", msgs[0].ID)
}

func TestMessageNewDuplicateDeliveryIsIdempotent(t *testing.T) {
	api := &fakeAPI{snapshot: []models.Conversation{snapshotConv("c1")}}
	c, sub := hydrated(t, api)
	defer c.Detach()
	require.NoError(t, c.SetActive(context.Background(), "c1"))

	m := models.Message{ID: "srv-1", ConversationID: "c1", SenderID: "them", Body: "yo", CreatedAt: time.Now().UTC()}
	sub.conv("c1").ch <- realtime.MessageNew{Message: m}
	sub.conv("c1").ch <- realtime.MessageNew{Message: m}

	require.Eventually(t, func() bool { return len(c.Messages()) >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, c.Messages(), 1)
}

func TestDeleteMessageFailureReinsertsChronologically(t *testing.T) {
	m1 := models.Message{ID: "m1", ConversationID: "c1", CreatedAt: time.Unix(10, 0).UTC()}
	m2 := models.Message{ID: "m2", ConversationID: "c1", CreatedAt: time.Unix(20, 0).UTC()}
	m3 := models.Message{ID: "m3", ConversationID: "c1", CreatedAt: time.Unix(30, 0).UTC()}
	api := &fakeAPI{snapshot: []models.Conversation{snapshotConv("c1", m1, m2, m3)}, deleteErr: errors.New("boom")}
	c, _ := hydrated(t, api)
	defer c.Detach()
	require.NoError(t, c.SetActive(context.Background(), "c1"))

	require.Error(t, c.DeleteMessage(context.Background(), "m2"))

	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID},
		"rollback re-inserts at chronological position, not the end")
}

func TestClearChatFailureRestoresSequence(t *testing.T) {
	m1 := models.Message{ID: "m1", ConversationID: "c1", CreatedAt: time.Unix(10, 0).UTC()}
	m2 := models.Message{ID: "m2", ConversationID: "c1", CreatedAt: time.Unix(20, 0).UTC()}
	api := &fakeAPI{snapshot: []models.Conversation{snapshotConv("c1", m1, m2)}, clearErr: errors.New("boom")}
	c, _ := hydrated(t, api)
	defer c.Detach()
	require.NoError(t, c.SetActive(context.Background(), "c1"))
	before := c.Messages()

	require.Error(t, c.ClearChat(context.Background()))

	assert.Equal(t, before, c.Messages())
}

func TestDetachedEventsAreDropped(t *testing.T) {
	api := &fakeAPI{snapshot: []models.Conversation{snapshotConv("c1")}}
	c, sub := hydrated(t, api)
	feed := sub.user("me")

	c.Detach()
	require.Equal(t, Detached, c.State())

	// the feed channel is closed by Detach; a fresh feed simulates a
	// handler firing against a store the UI no longer owns
	_ = feed
	c.apply(realtime.ConversationNew{Conversation: snapshotConv("c2")})
	assert.Len(t, c.Conversations(), 1, "no mutations accepted while detached")
}

func TestDetachThenRehydrate(t *testing.T) {
	api := &fakeAPI{snapshot: []models.Conversation{snapshotConv("c1")}}
	c, _ := hydrated(t, api)
	c.Detach()

	api.mu.Lock()
	api.snapshot = []models.Conversation{snapshotConv("c1"), snapshotConv("c2")}
	api.mu.Unlock()

	require.NoError(t, c.Hydrate(context.Background(), "me"))
	assert.Equal(t, Hydrated, c.State())
	assert.Len(t, c.Conversations(), 2, "missed events are corrected only by the fresh snapshot")
	c.Detach()
}

func TestMutationsRejectedBeforeHydration(t *testing.T) {
	c := NewController(&fakeAPI{}, newFakeSubscriber(), logger.Nop())
	assert.ErrorIs(t, c.SendMessage(context.Background(), "c1", "hi"), ErrNotHydrated)
	assert.ErrorIs(t, c.DeleteMessage(context.Background(), "m1"), ErrNotHydrated)
	assert.ErrorIs(t, c.ClearChat(context.Background()), ErrNotHydrated)
}

func TestStoredButNeverAnnounced(t *testing.T) {
	// Persistence and fan-out are independent calls with no transaction
	// between them: a message can be durably stored yet never announced.
	// The sender's own view then disagrees with other participants' until
	// the next snapshot. This test documents that accepted limitation.
	api := &fakeAPI{snapshot: []models.Conversation{snapshotConv("c1")}}
	api.sendFn = func(conversationID, body string) (models.Message, error) {
		// stored fine; the realtime trigger silently failed, so no feed
		// event is ever emitted
		return models.Message{ID: "srv-1", ConversationID: conversationID, SenderID: "me", Body: body, CreatedAt: time.Now().UTC()}, nil
	}
	sender, _ := hydrated(t, api)
	defer sender.Detach()
	require.NoError(t, sender.SetActive(context.Background(), "c1"))
	require.NoError(t, sender.SendMessage(context.Background(), "c1", "hello"))

	otherAPI := &fakeAPI{snapshot: []models.Conversation{snapshotConv("c1")}}
	other := NewController(otherAPI, newFakeSubscriber(), logger.Nop())
	require.NoError(t, other.Hydrate(context.Background(), "them"))
	defer other.Detach()
	require.NoError(t, other.SetActive(context.Background(), "c1"))

	assert.Len(t, sender.Messages(), 1)
	assert.Empty(t, other.Messages(), "views diverge until the other side refetches")
}

func TestConversationUpdateOnBothFeedsAppliesOnce(t *testing.T) {
	// With a conversation open the controller pumps two sockets, and the
	// server fans conversation:update out to every socket a user holds, so
	// the same event arrives twice.
	api := &fakeAPI{snapshot: []models.Conversation{snapshotConv("c1")}}
	c, sub := hydrated(t, api)
	defer c.Detach()
	require.NoError(t, c.SetActive(context.Background(), "c1"))

	payload := snapshotConv("c1",
		models.Message{ID: "m1", ConversationID: "c1", SenderID: "them", CreatedAt: time.Unix(10, 0).UTC()},
	)
	sub.user("me").ch <- realtime.ConversationUpdate{Conversation: payload}
	sub.conv("c1").ch <- realtime.ConversationUpdate{Conversation: payload}

	require.Eventually(t, func() bool {
		cs := c.Conversations()
		return len(cs) == 1 && len(cs[0].Messages) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond) // give the second copy a chance to misapply
	cs := c.Conversations()
	require.Len(t, cs[0].Messages, 1)
	assert.Equal(t, []string{"m1"}, cs[0].MessageIDs)
}

func TestHydrateWhileHydratedRejected(t *testing.T) {
	api := &fakeAPI{snapshot: []models.Conversation{snapshotConv("c1")}}
	c, sub := hydrated(t, api)
	defer c.Detach()

	require.ErrorIs(t, c.Hydrate(context.Background(), "me"), ErrAlreadyHydrated)

	// the original feed is still the live one
	sub.user("me").ch <- realtime.ConversationNew{Conversation: snapshotConv("c2")}
	require.Eventually(t, func() bool { return len(c.Conversations()) == 2 }, time.Second, 5*time.Millisecond)
}
