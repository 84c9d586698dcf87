package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/yourorg/messenger/internal/models"
)

// Event names carried on the wire. Conversation-level events are delivered on
// each participant's user channel; message:new is delivered on the
// conversation channel.
const (
	EventConversationNew    = "conversation:new"
	EventConversationUpdate = "conversation:update"
	EventConversationRemove = "conversation:remove"
	EventMessageNew         = "message:new"
	EventMessageDelete      = "message:delete"
	EventChatClear          = "chat:clear"
)

// Event is a realtime feed event. Each variant has a fixed payload shape
// validated when decoded off the wire.
type Event interface {
	EventName() string
}

type ConversationNew struct {
	Conversation models.Conversation `json:"conversation"`
}

func (ConversationNew) EventName() string { return EventConversationNew }

// ConversationUpdate always carries the affected conversation's message
// sequence for its latest change; consumers take the last element.
type ConversationUpdate struct {
	Conversation models.Conversation `json:"conversation"`
}

func (ConversationUpdate) EventName() string { return EventConversationUpdate }

type ConversationRemove struct {
	ConversationID string `json:"conversation_id"`
}

func (ConversationRemove) EventName() string { return EventConversationRemove }

type MessageNew struct {
	Message models.Message `json:"message"`
}

func (MessageNew) EventName() string { return EventMessageNew }

type MessageDelete struct {
	MessageID string `json:"message_id"`
}

func (MessageDelete) EventName() string { return EventMessageDelete }

type ChatClear struct {
	ConversationID string    `json:"conversation_id"`
	ClearedAt      time.Time `json:"cleared_at"`
	ClearedBy      string    `json:"cleared_by"`
}

func (ChatClear) EventName() string { return EventChatClear }

// Envelope is the wire form: a name tag plus the raw payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Encode wraps an event in its envelope.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: ev.EventName(), Data: data})
}

// Decode parses an envelope and validates the payload against the shape its
// tag demands. Unknown tags and malformed payloads are rejected here so
// consumers never see a half-formed event.
func Decode(b []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Event {
	case EventConversationNew:
		var ev ConversationNew
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if ev.Conversation.ID == "" {
			return nil, fmt.Errorf("%s: missing conversation id", env.Event)
		}
		return ev, nil
	case EventConversationUpdate:
		var ev ConversationUpdate
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if ev.Conversation.ID == "" {
			return nil, fmt.Errorf("%s: missing conversation id", env.Event)
		}
		if len(ev.Conversation.Messages) == 0 {
			return nil, fmt.Errorf("%s: no messages in payload", env.Event)
		}
		return ev, nil
	case EventConversationRemove:
		var ev ConversationRemove
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if ev.ConversationID == "" {
			return nil, fmt.Errorf("%s: missing conversation id", env.Event)
		}
		return ev, nil
	case EventMessageNew:
		var ev MessageNew
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if ev.Message.ID == "" || ev.Message.ConversationID == "" {
			return nil, fmt.Errorf("%s: missing message or conversation id", env.Event)
		}
		return ev, nil
	case EventMessageDelete:
		var ev MessageDelete
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if ev.MessageID == "" {
			return nil, fmt.Errorf("%s: missing message id", env.Event)
		}
		return ev, nil
	case EventChatClear:
		var ev ChatClear
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if ev.ConversationID == "" {
			return nil, fmt.Errorf("%s: missing conversation id", env.Event)
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown event %q", env.Event)
	}
}

// UserChannel and ConversationChannel name the two pub/sub scopes: one channel
// per user for conversation-list updates, one per conversation for in-room
// message fan-out.
func UserChannel(prefix, userID string) string { return prefix + ":user:" + userID }

func ConversationChannel(prefix, conversationID string) string {
	return prefix + ":conv:" + conversationID
}
