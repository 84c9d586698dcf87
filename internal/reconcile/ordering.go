package reconcile

import (
	"sort"
	"time"

	"github.com/yourorg/messenger/internal/models"
)

// effectiveRecency is the timestamp a conversation sorts by: last activity if
// known, otherwise creation time.
func effectiveRecency(c *models.Conversation) time.Time {
	if c.LastMessageAt != nil && !c.LastMessageAt.IsZero() {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

// laterOf keeps recency monotonic under racing updates: an update for a newer
// message may arrive before the conversation's own snapshot has a correct
// recency value, in which case the incoming timestamp wins.
func laterOf(current *time.Time, incoming time.Time) time.Time {
	if current == nil || current.IsZero() {
		return incoming
	}
	if current.After(incoming) {
		return *current
	}
	return incoming
}

// sortByRecency orders conversations newest-first by effective recency.
// The sort is stable so equal timestamps keep their relative order.
func sortByRecency(cs []models.Conversation) {
	sort.SliceStable(cs, func(i, j int) bool {
		return effectiveRecency(&cs[i]).After(effectiveRecency(&cs[j]))
	})
}
