package hub

import (
	"sync"
)

// Client is one websocket connection's send side. Payloads are pre-encoded
// event envelopes.
type Client struct {
	UserID string
	Send   chan []byte
}

func NewClient(userID string, buffer int) *Client {
	return &Client{UserID: userID, Send: make(chan []byte, buffer)}
}

// Hub routes event payloads to locally connected clients, keyed by user and
// by joined conversation.
type Hub struct {
	mu            sync.RWMutex
	clientsByUser map[string]map[*Client]struct{}
	clientsByConv map[string]map[*Client]struct{}
}

func New() *Hub {
	return &Hub{
		clientsByUser: make(map[string]map[*Client]struct{}),
		clientsByConv: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) AddClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clientsByUser[c.UserID]; !ok {
		h.clientsByUser[c.UserID] = make(map[*Client]struct{})
	}
	h.clientsByUser[c.UserID][c] = struct{}{}
}

func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clientsByUser[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clientsByUser, c.UserID)
		}
	}
	for convID, set := range h.clientsByConv {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clientsByConv, convID)
		}
	}
}

func (h *Hub) JoinConversation(conversationID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clientsByConv[conversationID]; !ok {
		h.clientsByConv[conversationID] = make(map[*Client]struct{})
	}
	h.clientsByConv[conversationID][c] = struct{}{}
}

func (h *Hub) LeaveConversation(conversationID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clientsByConv[conversationID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clientsByConv, conversationID)
		}
	}
}

// SendToUser delivers to every socket the user has open on this instance.
func (h *Hub) SendToUser(userID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clientsByUser[userID] {
		select {
		case c.Send <- payload:
		default:
			// slow client, drop rather than block the hub
		}
	}
}

// SendToConversation delivers to every socket joined to the conversation.
func (h *Hub) SendToConversation(conversationID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clientsByConv[conversationID] {
		select {
		case c.Send <- payload:
		default:
		}
	}
}
