package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourorg/messenger/internal/models"
	"github.com/yourorg/messenger/internal/realtime"
)

// API is the server surface the controller mutates through. Failures leave
// the server state unknown; the controller compensates locally and never
// retries on its own.
type API interface {
	Snapshot(ctx context.Context) ([]models.Conversation, error)
	SendMessage(ctx context.Context, conversationID, body string) (models.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	ClearChat(ctx context.Context, conversationID string) error
}

// Feed is a cancellable realtime subscription. Events() closes after Close;
// anything still buffered at that point is discarded, not delivered.
type Feed interface {
	Events() <-chan realtime.Event
	Close() error
}

// Subscriber opens realtime feeds: one per user for conversation-list events,
// one per conversation for in-room message fan-out.
type Subscriber interface {
	SubscribeUser(ctx context.Context, userID string) (Feed, error)
	SubscribeConversation(ctx context.Context, conversationID string) (Feed, error)
}

type State int

const (
	Uninitialized State = iota
	Hydrated
	Detached
)

var (
	ErrNotHydrated     = errors.New("controller not hydrated")
	ErrAlreadyHydrated = errors.New("controller already hydrated")
	ErrNoActiveChat    = errors.New("no active conversation")
)

const placeholderPrefix = "temp-"

// IsPlaceholder reports whether the id was generated locally for an
// optimistic send rather than assigned by the server.
func IsPlaceholder(id string) bool { return strings.HasPrefix(id, placeholderPrefix) }

// Controller is the single authority translating snapshots, realtime events
// and local user actions into store mutations. The mutex serializes every
// mutation, so feed delivery and user actions can never race; within one feed,
// events apply in arrival order.
//
// Arrival order across sources is not guaranteed to match issue order: the
// realtime copy of a self-sent message can land before or after the HTTP
// response confirming it. Both paths therefore dedupe by id, and a
// locally-sent placeholder is matched to its authoritative copy by a
// conversation+sender+body heuristic; there is no correlation id on the
// wire, so exact reconciliation cannot be guaranteed.
type Controller struct {
	api API
	sub Subscriber
	log *zap.SugaredLogger

	mu       sync.Mutex
	state    State
	userID   string
	activeID string
	draft    string

	list     *ConversationList
	timeline *Timeline
	pending  map[string]models.Message // placeholder id -> placeholder

	userFeed Feed
	convFeed Feed
	wg       sync.WaitGroup
}

func NewController(api API, sub Subscriber, log *zap.SugaredLogger) *Controller {
	return &Controller{
		api:      api,
		sub:      sub,
		log:      log,
		list:     NewConversationList(),
		timeline: NewTimeline(),
		pending:  make(map[string]models.Message),
	}
}

// Hydrate fetches a snapshot, seeds the conversation list in one bulk replace
// and opens the user's realtime feed. Events missed while Detached are gone
// for good; only this refetch corrects for them. A hydrated controller must
// Detach before hydrating again, otherwise the previous feed's pump would stay
// bound to the live stores.
func (c *Controller) Hydrate(ctx context.Context, userID string) error {
	c.mu.Lock()
	if c.state == Hydrated {
		c.mu.Unlock()
		return ErrAlreadyHydrated
	}
	c.mu.Unlock()

	snapshot, err := c.api.Snapshot(ctx)
	if err != nil {
		return err
	}
	feed, err := c.sub.SubscribeUser(ctx, userID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.userID = userID
	c.list.ReplaceAll(snapshot)
	c.userFeed = feed
	c.state = Hydrated
	c.mu.Unlock()

	c.wg.Add(1)
	go c.pump(feed)
	return nil
}

// Detach stops accepting mutations, then tears the feeds down. Events already
// in flight drain without being applied.
func (c *Controller) Detach() {
	c.mu.Lock()
	if c.state != Hydrated {
		c.mu.Unlock()
		return
	}
	c.state = Detached
	userFeed, convFeed := c.userFeed, c.convFeed
	c.userFeed, c.convFeed = nil, nil
	c.activeID = ""
	c.mu.Unlock()

	if convFeed != nil {
		_ = convFeed.Close()
	}
	if userFeed != nil {
		_ = userFeed.Close()
	}
	c.wg.Wait()
}

// SetActive opens a conversation: the timeline is seeded from the local
// projection and the conversation channel is subscribed for message fan-out.
// Any previously open conversation's feed is closed first.
func (c *Controller) SetActive(ctx context.Context, conversationID string) error {
	c.mu.Lock()
	if c.state != Hydrated {
		c.mu.Unlock()
		return ErrNotHydrated
	}
	conv, ok := c.list.ByID(conversationID)
	if !ok {
		c.mu.Unlock()
		return errors.New("unknown conversation " + conversationID)
	}
	prev := c.convFeed
	c.convFeed = nil
	c.activeID = conversationID
	c.timeline.Restore(conv.Messages)
	c.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	feed, err := c.sub.SubscribeConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.convFeed = feed
	c.mu.Unlock()
	c.wg.Add(1)
	go c.pump(feed)
	return nil
}

func (c *Controller) pump(feed Feed) {
	defer c.wg.Done()
	for ev := range feed.Events() {
		c.apply(ev)
	}
}

func (c *Controller) apply(ev realtime.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Hydrated {
		return
	}
	switch e := ev.(type) {
	case realtime.ConversationNew:
		c.list.UpsertNew(e.Conversation)
	case realtime.ConversationUpdate:
		// The event carries the full message sequence for the latest
		// change; only the last element is the incoming message.
		msgs := e.Conversation.Messages
		if len(msgs) == 0 {
			return
		}
		c.list.MergeUpdate(e.Conversation.ID, msgs[len(msgs)-1])
	case realtime.ConversationRemove:
		c.list.Remove(e.ConversationID)
	case realtime.MessageNew:
		c.applyMessageNew(e.Message)
	case realtime.MessageDelete:
		c.timeline.RemoveByID(e.MessageID)
	case realtime.ChatClear:
		if e.ConversationID == c.activeID {
			c.timeline.Clear()
		}
	default:
		c.log.Debugw("ignoring event", "event", ev.EventName())
	}
}

// applyMessageNew reconciles an authoritative message against the open
// timeline. Duplicate delivery is a no-op; a matching optimistic placeholder
// is swapped for the confirmed message.
func (c *Controller) applyMessageNew(m models.Message) {
	if m.ConversationID != c.activeID {
		return
	}
	if c.timeline.ContainsID(m.ID) {
		return
	}
	for phID, ph := range c.pending {
		if ph.ConversationID == m.ConversationID && ph.SenderID == m.SenderID && ph.Body == m.Body {
			delete(c.pending, phID)
			c.timeline.Replace(phID, m)
			return
		}
	}
	c.timeline.Append(m)
}

// SetDraft stores the text currently typed into the composer.
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SendMessage appends a placeholder immediately, then confirms it against the
// created message. On failure the placeholder is removed and the typed text
// restored; the user retries by hand.
func (c *Controller) SendMessage(ctx context.Context, conversationID, body string) error {
	c.mu.Lock()
	if c.state != Hydrated {
		c.mu.Unlock()
		return ErrNotHydrated
	}
	ph := models.Message{
		ID:             placeholderPrefix + uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       c.userID,
		Type:           models.TypeText,
		Body:           body,
		SeenIDs:        []string{},
		CreatedAt:      time.Now().UTC(),
	}
	if conversationID == c.activeID {
		c.timeline.Append(ph)
	}
	c.pending[ph.ID] = ph
	c.draft = ""
	c.mu.Unlock()

	msg, err := c.api.SendMessage(ctx, conversationID, body)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		delete(c.pending, ph.ID)
		c.timeline.RemoveByID(ph.ID)
		c.draft = body
		return err
	}
	if _, stillPending := c.pending[ph.ID]; !stillPending {
		// the realtime copy arrived first and already took the slot
		return nil
	}
	delete(c.pending, ph.ID)
	if conversationID == c.activeID {
		if c.timeline.ContainsID(msg.ID) {
			c.timeline.RemoveByID(ph.ID)
		} else {
			c.timeline.Replace(ph.ID, msg)
		}
	}
	return nil
}

// DeleteMessage removes the message immediately. On failure it is re-inserted
// at its chronological position, not appended, so the visual order survives.
func (c *Controller) DeleteMessage(ctx context.Context, messageID string) error {
	c.mu.Lock()
	if c.state != Hydrated {
		c.mu.Unlock()
		return ErrNotHydrated
	}
	saved, had := c.timeline.ByID(messageID)
	c.timeline.RemoveByID(messageID)
	c.mu.Unlock()

	if err := c.api.DeleteMessage(ctx, messageID); err != nil {
		if had {
			c.mu.Lock()
			c.timeline.InsertChronological(saved)
			c.mu.Unlock()
		}
		return err
	}
	return nil
}

// ClearChat empties the open conversation immediately, keeping the pre-clear
// sequence so a failed request restores it exactly.
func (c *Controller) ClearChat(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Hydrated {
		c.mu.Unlock()
		return ErrNotHydrated
	}
	if c.activeID == "" {
		c.mu.Unlock()
		return ErrNoActiveChat
	}
	conversationID := c.activeID
	saved := c.timeline.Messages()
	c.timeline.Clear()
	c.mu.Unlock()

	if err := c.api.ClearChat(ctx, conversationID); err != nil {
		c.mu.Lock()
		c.timeline.Restore(saved)
		c.mu.Unlock()
		return err
	}
	return nil
}

// State reports the controller lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ActiveConversation returns the id of the open conversation, if any.
func (c *Controller) ActiveConversation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// Conversations returns the display-ordered conversation list.
func (c *Controller) Conversations() []models.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Conversations()
}

// Messages returns the open conversation's timeline in arrival order.
func (c *Controller) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeline.Messages()
}
