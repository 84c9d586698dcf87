package models

import "time"

// Message payload kinds. A message carries at most one payload and its kind
// never changes after creation.
const (
	TypeText  = "text"
	TypeImage = "image"
	TypeAudio = "audio"
	TypeVideo = "video"
)

type Message struct {
	ID             string            `bson:"_id,omitempty" json:"id"`
	ConversationID string            `bson:"conversation_id" json:"conversation_id"`
	SenderID       string            `bson:"sender_id" json:"sender_id"`
	Sender         User              `bson:"sender,omitempty" json:"sender"`
	Type           string            `bson:"type" json:"type"`
	Body           string            `bson:"body,omitempty" json:"body,omitempty"`
	ImageURL       string            `bson:"image_url,omitempty" json:"image_url,omitempty"`
	AudioURL       string            `bson:"audio_url,omitempty" json:"audio_url,omitempty"`
	VideoURL       string            `bson:"video_url,omitempty" json:"video_url,omitempty"`
	Metadata       map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
	SeenIDs        []string          `bson:"seen_ids" json:"seen_ids"`
	Seen           []User            `bson:"seen,omitempty" json:"seen"`
	CreatedAt      time.Time         `bson:"created_at" json:"created_at"`
}

// SeenBy reports whether the user id is in the seen set. Membership is by
// identifier; insertion order carries no meaning.
func (m *Message) SeenBy(userID string) bool {
	for _, id := range m.SeenIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Preview returns the text shown for this message in a conversation list row.
func (m *Message) Preview() string {
	switch m.Type {
	case TypeImage:
		return "Sent an image"
	case TypeAudio:
		return "Sent a voice message"
	case TypeVideo:
		return "Sent a video"
	default:
		return m.Body
	}
}
