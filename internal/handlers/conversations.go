package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/yourorg/messenger/internal/apperr"
	"github.com/yourorg/messenger/internal/kafka"
	"github.com/yourorg/messenger/internal/middleware"
	"github.com/yourorg/messenger/internal/models"
	"github.com/yourorg/messenger/internal/realtime"
)

type createConversationRequest struct {
	UserID    string   `json:"user_id"` // direct
	IsGroup   bool     `json:"is_group"`
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
}

// ListConversations serves the snapshot fetch: everything visible to the
// caller, hydrated, newest activity first. An empty result is a valid
// snapshot, not an error.
func (h *Handler) ListConversations(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	convs, err := h.store.Snapshot(c.Context(), userID)
	if err != nil {
		return fail(c, err)
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	return c.JSON(convs)
}

func (h *Handler) CreateConversation(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	var req createConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, apperr.ErrBadRequest)
	}

	var (
		conv    *models.Conversation
		created bool
		err     error
	)
	if req.IsGroup {
		conv, err = h.store.Conversations.CreateGroup(c.Context(), req.Name, userID, req.MemberIDs)
		created = true
	} else {
		if req.UserID == "" || req.UserID == userID {
			return fail(c, apperr.ErrBadRequest)
		}
		conv, _, err = h.store.Conversations.FindOrCreateDirect(c.Context(), userID, req.UserID)
		created = true // announce either way; upsert on the client is idempotent
	}
	if err != nil {
		return fail(c, err)
	}

	hydrated, err := h.store.HydratedConversation(c.Context(), conv.ID)
	if err != nil {
		return fail(c, err)
	}
	if created {
		h.announce(conv.UserIDs, realtime.ConversationNew{Conversation: *hydrated})
	}
	return c.Status(fiber.StatusCreated).JSON(hydrated)
}

func (h *Handler) DeleteConversation(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	conv, err := h.store.Conversations.ByID(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	if !conv.HasUser(userID) {
		return fail(c, apperr.ErrForbidden)
	}
	if err := h.store.Messages.DeleteAllInConversation(c.Context(), conv.ID); err != nil {
		return fail(c, err)
	}
	if err := h.store.Conversations.Delete(c.Context(), conv.ID); err != nil {
		return fail(c, err)
	}
	h.announce(conv.UserIDs, realtime.ConversationRemove{ConversationID: conv.ID})
	return c.JSON(fiber.Map{"status": "deleted"})
}

func (h *Handler) MarkSeen(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	conv, err := h.store.Conversations.ByID(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	if !conv.HasUser(userID) {
		return fail(c, apperr.ErrForbidden)
	}
	if err := h.store.Messages.MarkSeen(c.Context(), conv.ID, userID); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "seen"})
}

// ClearChat deletes every message; participants learn via chat:clear scoped
// to the conversation id.
func (h *Handler) ClearChat(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	conv, err := h.store.Conversations.ByID(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	if !conv.HasUser(userID) {
		return fail(c, apperr.ErrForbidden)
	}
	if err := h.store.Messages.DeleteAllInConversation(c.Context(), conv.ID); err != nil {
		return fail(c, err)
	}
	if err := h.store.Conversations.ClearMessages(c.Context(), conv.ID); err != nil {
		return fail(c, err)
	}

	clearedAt := time.Now().UTC()
	h.announce(conv.UserIDs, realtime.ChatClear{
		ConversationID: conv.ID,
		ClearedAt:      clearedAt,
		ClearedBy:      userID,
	})
	h.record(kafka.EventRecord{Event: "chat.cleared", ConversationID: conv.ID, ActorID: userID, At: clearedAt})
	return c.JSON(fiber.Map{"status": "cleared"})
}

// announce publishes to every participant's user channel. Persistence has
// already happened by the time this runs; a failed publish only means stale
// peers until their next snapshot, so it is logged and not surfaced.
func (h *Handler) announce(userIDs []string, ev realtime.Event) {
	if err := h.cast.ToUsers(context.Background(), userIDs, ev); err != nil {
		h.log.Warnw("announce failed", "event", ev.EventName(), "err", err)
	}
}

// record appends to the kafka event log, best effort for the same reason.
func (h *Handler) record(rec kafka.EventRecord) {
	if h.producer == nil {
		return
	}
	if err := h.producer.Publish(context.Background(), rec); err != nil {
		h.log.Warnw("event log append failed", "event", rec.Event, "err", err)
	}
}
