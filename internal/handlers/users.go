package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/yourorg/messenger/internal/middleware"
	"github.com/yourorg/messenger/internal/models"
)

// ListUsers returns everyone except the caller, for the new-conversation
// picker.
func (h *Handler) ListUsers(c *fiber.Ctx) error {
	users, err := h.store.Users.List(c.Context(), middleware.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	if users == nil {
		users = []models.User{}
	}
	return c.JSON(users)
}

func (h *Handler) GetPresence(c *fiber.Ctx) error {
	status, err := h.tracker.Get(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(status)
}
