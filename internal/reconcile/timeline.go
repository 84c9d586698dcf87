package reconcile

import (
	"sort"

	"github.com/yourorg/messenger/internal/models"
)

// Timeline is the ordered message sequence for the open conversation. Order is
// arrival order; it never re-sorts on insert, so optimistic placeholders and
// confirmed messages coexist. Not safe for concurrent use; the controller
// serializes access.
type Timeline struct {
	messages []models.Message
}

func NewTimeline() *Timeline {
	return &Timeline{}
}

// Append adds a message at the end. Deduplication by id is the caller's job.
func (t *Timeline) Append(m models.Message) {
	t.messages = append(t.messages, m)
}

// RemoveByID removes the first message with the given id. Missing id is a
// no-op: out-of-order delivery makes that routine, not a fault.
func (t *Timeline) RemoveByID(id string) {
	for i := range t.messages {
		if t.messages[i].ID == id {
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			return
		}
	}
}

// Replace swaps the message with the given id for m. When the id is absent the
// message is treated as new and appended.
func (t *Timeline) Replace(id string, m models.Message) {
	for i := range t.messages {
		if t.messages[i].ID == id {
			t.messages[i] = m
			return
		}
	}
	t.Append(m)
}

// InsertChronological places m by creation time rather than at the end. Used
// when a rolled-back delete re-inserts a message without corrupting the
// visual order.
func (t *Timeline) InsertChronological(m models.Message) {
	i := sort.Search(len(t.messages), func(i int) bool {
		return t.messages[i].CreatedAt.After(m.CreatedAt)
	})
	t.messages = append(t.messages, models.Message{})
	copy(t.messages[i+1:], t.messages[i:])
	t.messages[i] = m
}

// Clear empties the sequence.
func (t *Timeline) Clear() {
	t.messages = nil
}

// ContainsID reports whether a message with the id is present.
func (t *Timeline) ContainsID(id string) bool {
	for i := range t.messages {
		if t.messages[i].ID == id {
			return true
		}
	}
	return false
}

// ByID returns a copy of the message with the given id.
func (t *Timeline) ByID(id string) (models.Message, bool) {
	for i := range t.messages {
		if t.messages[i].ID == id {
			return t.messages[i], true
		}
	}
	return models.Message{}, false
}

// Messages returns a copy of the sequence in arrival order.
func (t *Timeline) Messages() []models.Message {
	out := make([]models.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Restore replaces the sequence with a previously taken copy.
func (t *Timeline) Restore(msgs []models.Message) {
	t.messages = make([]models.Message, len(msgs))
	copy(t.messages, msgs)
}

func (t *Timeline) Len() int { return len(t.messages) }
