package repository

import (
	"context"

	"github.com/yourorg/messenger/internal/models"
)

// Store bundles the repositories and builds the hydrated projections the API
// serves.
type Store struct {
	Users         *UserRepository
	Conversations *ConversationRepository
	Messages      *MessageRepository
}

func NewStore(users *UserRepository, conversations *ConversationRepository, messages *MessageRepository) *Store {
	return &Store{Users: users, Conversations: conversations, Messages: messages}
}

// Snapshot is the bulk point-in-time read of every conversation visible to
// the user, with nested users, messages, senders and seen lists. An unknown
// user yields an empty slice, not an error.
func (s *Store) Snapshot(ctx context.Context, userID string) ([]models.Conversation, error) {
	convs, err := s.Conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Conversation, 0, len(convs))
	for _, c := range convs {
		hydrated, err := s.hydrate(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, hydrated)
	}
	return out, nil
}

// HydratedConversation loads one conversation with nested users and messages.
func (s *Store) HydratedConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	c, err := s.Conversations.ByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	hydrated, err := s.hydrate(ctx, *c)
	if err != nil {
		return nil, err
	}
	return &hydrated, nil
}

func (s *Store) hydrate(ctx context.Context, c models.Conversation) (models.Conversation, error) {
	users, err := s.Users.ByIDs(ctx, c.UserIDs)
	if err != nil {
		return models.Conversation{}, err
	}
	c.Users = make([]models.User, 0, len(c.UserIDs))
	for _, id := range c.UserIDs {
		if u, ok := users[id]; ok {
			c.Users = append(c.Users, u)
		}
	}

	msgs, err := s.Messages.ListForConversation(ctx, c.ID)
	if err != nil {
		return models.Conversation{}, err
	}
	for i := range msgs {
		if sender, ok := users[msgs[i].SenderID]; ok {
			msgs[i].Sender = sender
		} else if u, err := s.Users.ByID(ctx, msgs[i].SenderID); err == nil {
			msgs[i].Sender = *u
		}
		msgs[i].Seen = make([]models.User, 0, len(msgs[i].SeenIDs))
		for _, sid := range msgs[i].SeenIDs {
			if u, ok := users[sid]; ok {
				msgs[i].Seen = append(msgs[i].Seen, u)
			}
		}
	}
	c.Messages = msgs
	return c, nil
}
