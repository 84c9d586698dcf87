package reconcile

import (
	"github.com/yourorg/messenger/internal/models"
)

// ConversationList is the signed-in user's view of their conversations,
// ordered newest-first by effective recency. Duplicate realtime delivery is
// tolerated by keeping every operation idempotent on conversation id. Not
// safe for concurrent use; the controller serializes access.
type ConversationList struct {
	conversations []models.Conversation
}

func NewConversationList() *ConversationList {
	return &ConversationList{}
}

// ReplaceAll seeds the list from a snapshot in one bulk assignment, avoiding
// a per-item duplicate scan on load.
func (l *ConversationList) ReplaceAll(cs []models.Conversation) {
	l.conversations = make([]models.Conversation, len(cs))
	copy(l.conversations, cs)
	sortByRecency(l.conversations)
}

// UpsertNew inserts c at the front of the display list. A duplicate id is a
// no-op so redelivered conversation:new events never create a second entry or
// overwrite local state.
func (l *ConversationList) UpsertNew(c models.Conversation) {
	if l.indexOf(c.ID) >= 0 {
		return
	}
	l.conversations = append([]models.Conversation{c}, l.conversations...)
}

// MergeUpdate appends incoming to the conversation's message sequence and id
// set, bumps recency to max(current, incoming.CreatedAt) falling back to the
// incoming timestamp when the current value is missing, then re-sorts the list
// by effective recency. An update for a conversation not held locally is
// dropped; no conversation is synthesized from a bare update. A message id
// already in the sequence is a no-op, so the same update delivered on more
// than one feed applies once.
func (l *ConversationList) MergeUpdate(conversationID string, incoming models.Message) {
	i := l.indexOf(conversationID)
	if i < 0 {
		return
	}
	c := &l.conversations[i]
	for _, id := range c.MessageIDs {
		if id == incoming.ID {
			return
		}
	}
	c.Messages = append(c.Messages, incoming)
	c.MessageIDs = append(c.MessageIDs, incoming.ID)
	recency := laterOf(c.LastMessageAt, incoming.CreatedAt)
	c.LastMessageAt = &recency
	sortByRecency(l.conversations)
}

// Remove deletes the conversation if present; no-op otherwise.
func (l *ConversationList) Remove(conversationID string) {
	i := l.indexOf(conversationID)
	if i < 0 {
		return
	}
	l.conversations = append(l.conversations[:i], l.conversations[i+1:]...)
}

// ByID returns a copy of the conversation with the given id.
func (l *ConversationList) ByID(id string) (models.Conversation, bool) {
	i := l.indexOf(id)
	if i < 0 {
		return models.Conversation{}, false
	}
	return l.conversations[i], true
}

// Conversations returns a copy of the list in display order.
func (l *ConversationList) Conversations() []models.Conversation {
	out := make([]models.Conversation, len(l.conversations))
	copy(out, l.conversations)
	return out
}

func (l *ConversationList) Len() int { return len(l.conversations) }

func (l *ConversationList) indexOf(id string) int {
	for i := range l.conversations {
		if l.conversations[i].ID == id {
			return i
		}
	}
	return -1
}
