package handlers

import (
	"context"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/yourorg/messenger/internal/apperr"
	"github.com/yourorg/messenger/internal/kafka"
	"github.com/yourorg/messenger/internal/media"
	"github.com/yourorg/messenger/internal/middleware"
	"github.com/yourorg/messenger/internal/models"
	"github.com/yourorg/messenger/internal/realtime"
)

type sendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Body           string `json:"body"`
}

// SendMessage persists a text message and fans it out: message:new on the
// conversation channel for the open chat view, and conversation:update on
// each participant's user channel carrying the conversation with this message
// as the last element.
func (h *Handler) SendMessage(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, apperr.ErrBadRequest)
	}
	if req.ConversationID == "" || req.Body == "" {
		return fail(c, apperr.ErrBadRequest)
	}
	msg := models.Message{
		ConversationID: req.ConversationID,
		SenderID:       userID,
		Type:           models.TypeText,
		Body:           req.Body,
	}
	return h.deliver(c, &msg)
}

// SendMedia accepts a multipart upload (file, conversation_id, optional
// filter), stores the blob and persists a message of the matching kind.
func (h *Handler) SendMedia(c *fiber.Ctx) error {
	if h.media == nil {
		return fail(c, apperr.ErrBadRequest)
	}
	userID := middleware.UserID(c)
	conversationID := c.FormValue("conversation_id")
	if conversationID == "" {
		return fail(c, apperr.ErrBadRequest)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return fail(c, apperr.ErrBadRequest)
	}
	contentType := fh.Header.Get("Content-Type")
	kind, err := media.KindFromContentType(contentType)
	if err != nil {
		return fail(c, apperr.ErrBadRequest)
	}

	f, err := fh.Open()
	if err != nil {
		return fail(c, err)
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return fail(c, err)
	}

	key := media.ObjectKey(conversationID, contentType)
	url, err := h.media.Upload(c.Context(), key, contentType, data)
	if err != nil {
		return fail(c, err)
	}

	msg := models.Message{
		ConversationID: conversationID,
		SenderID:       userID,
		Type:           kind,
	}
	switch kind {
	case models.TypeImage:
		msg.ImageURL = url
	case models.TypeAudio:
		msg.AudioURL = url
	case models.TypeVideo:
		msg.VideoURL = url
	}
	if filter := c.FormValue("filter"); filter != "" {
		msg.Metadata = map[string]string{"filter": filter}
	}
	if kind == models.TypeImage {
		if thumb, err := media.Thumbnail(data); err == nil {
			thumbKey := media.ObjectKey(conversationID, "image/jpeg")
			if thumbURL, err := h.media.Upload(c.Context(), thumbKey, "image/jpeg", thumb); err == nil {
				if msg.Metadata == nil {
					msg.Metadata = map[string]string{}
				}
				msg.Metadata["thumbnail_url"] = thumbURL
			}
		}
	}
	return h.deliver(c, &msg)
}

func (h *Handler) deliver(c *fiber.Ctx, msg *models.Message) error {
	conv, err := h.store.Conversations.ByID(c.Context(), msg.ConversationID)
	if err != nil {
		return fail(c, err)
	}
	if !conv.HasUser(msg.SenderID) {
		return fail(c, apperr.ErrForbidden)
	}

	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()
	msg.SeenIDs = []string{msg.SenderID}
	if err := h.store.Messages.Insert(c.Context(), msg); err != nil {
		return fail(c, err)
	}
	if err := h.store.Conversations.RecordMessage(c.Context(), conv.ID, msg.ID, msg.CreatedAt); err != nil {
		return fail(c, err)
	}

	sender, err := h.store.Users.ByID(c.Context(), msg.SenderID)
	if err == nil {
		msg.Sender = *sender
		msg.Seen = []models.User{*sender}
	}

	if err := h.cast.ToConversation(context.Background(), conv.ID, realtime.MessageNew{Message: *msg}); err != nil {
		h.log.Warnw("message fan-out failed", "conversation", conv.ID, "err", err)
	}
	updated := *conv
	updated.LastMessageAt = &msg.CreatedAt
	updated.Messages = []models.Message{*msg}
	h.announce(conv.UserIDs, realtime.ConversationUpdate{Conversation: updated})
	h.record(kafka.EventRecord{
		Event:          "message.new",
		ConversationID: conv.ID,
		ActorID:        msg.SenderID,
		Payload:        map[string]string{"message_id": msg.ID, "type": msg.Type},
		At:             msg.CreatedAt,
	})
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (h *Handler) DeleteMessage(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	msg, err := h.store.Messages.ByID(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	conv, err := h.store.Conversations.ByID(c.Context(), msg.ConversationID)
	if err != nil {
		return fail(c, err)
	}
	if !conv.HasUser(userID) {
		return fail(c, apperr.ErrForbidden)
	}
	if msg.SenderID != userID {
		return fail(c, apperr.ErrForbidden)
	}
	if err := h.store.Messages.Delete(c.Context(), msg.ID); err != nil {
		return fail(c, err)
	}
	h.announce(conv.UserIDs, realtime.MessageDelete{MessageID: msg.ID})
	h.record(kafka.EventRecord{
		Event:          "message.deleted",
		ConversationID: conv.ID,
		ActorID:        userID,
		Payload:        map[string]string{"message_id": msg.ID},
		At:             time.Now().UTC(),
	})
	return c.JSON(fiber.Map{"status": "deleted"})
}
