package handlers

import (
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/messenger/internal/apperr"
	"github.com/yourorg/messenger/internal/models"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) RegisterUser(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, apperr.ErrBadRequest)
	}
	if req.Name == "" || req.Email == "" || len(req.Password) < 6 {
		return fail(c, apperr.ErrBadRequest)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return fail(c, err)
	}
	u := models.User{Name: req.Name, Email: req.Email}
	if err := h.store.Users.Create(c.Context(), &u, hashed); err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(u)
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, apperr.ErrBadRequest)
	}
	u, hashed, err := h.store.Users.ByEmail(c.Context(), req.Email)
	if err != nil {
		return fail(c, apperr.ErrUnauthorized)
	}
	if bcrypt.CompareHashAndPassword(hashed, []byte(req.Password)) != nil {
		return fail(c, apperr.ErrUnauthorized)
	}
	token, err := h.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"token": token, "user": u})
}
