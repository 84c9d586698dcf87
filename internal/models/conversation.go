package models

import "time"

type Conversation struct {
	ID            string     `bson:"_id,omitempty" json:"id"`
	Name          string     `bson:"name,omitempty" json:"name,omitempty"`
	IsGroup       bool       `bson:"is_group" json:"is_group"`
	UserIDs       []string   `bson:"user_ids" json:"user_ids"`
	Users         []User     `bson:"users,omitempty" json:"users"`
	MessageIDs    []string   `bson:"message_ids" json:"message_ids"`
	Messages      []Message  `bson:"messages,omitempty" json:"messages"`
	CreatedAt     time.Time  `bson:"created_at" json:"created_at"`
	LastMessageAt *time.Time `bson:"last_message_at,omitempty" json:"last_message_at,omitempty"`
}

// DisplayName returns the group name, or for a one-on-one conversation the
// other participant's name.
func (c *Conversation) DisplayName(selfEmail string) string {
	if c.IsGroup || c.Name != "" {
		return c.Name
	}
	for _, u := range c.Users {
		if u.Email != selfEmail {
			return u.Name
		}
	}
	return ""
}

// LastMessage returns the newest message by arrival order, or nil when the
// conversation has none.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// HasUser reports whether the user id is a participant.
func (c *Conversation) HasUser(userID string) bool {
	for _, id := range c.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
