package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberws "github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yourorg/messenger/internal/apperr"
	"github.com/yourorg/messenger/internal/auth"
	"github.com/yourorg/messenger/internal/hub"
	"github.com/yourorg/messenger/internal/kafka"
	"github.com/yourorg/messenger/internal/middleware"
	"github.com/yourorg/messenger/internal/presence"
	"github.com/yourorg/messenger/internal/realtime"
	"github.com/yourorg/messenger/internal/repository"
	"github.com/yourorg/messenger/internal/storage"
)

type Handler struct {
	store    *repository.Store
	tokens   *auth.Tokens
	cast     *realtime.Broadcaster
	producer *kafka.Producer
	media    *storage.S3Store
	tracker  *presence.Tracker
	hub      *hub.Hub
	log      *zap.SugaredLogger
}

func New(
	store *repository.Store,
	tokens *auth.Tokens,
	cast *realtime.Broadcaster,
	producer *kafka.Producer,
	media *storage.S3Store,
	tracker *presence.Tracker,
	h *hub.Hub,
	log *zap.SugaredLogger,
) *Handler {
	return &Handler{
		store:    store,
		tokens:   tokens,
		cast:     cast,
		producer: producer,
		media:    media,
		tracker:  tracker,
		hub:      h,
		log:      log,
	}
}

// Register mounts every route. Auth-free: register, login. Everything else
// requires a bearer token.
func (h *Handler) Register(app *fiber.App) {
	app.Use(recover.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", middleware.RateLimit(rate.Limit(20), 40))
	api.Post("/register", h.RegisterUser)
	api.Post("/login", h.Login)

	authed := api.Use(middleware.RequireAuth(h.tokens))
	authed.Get("/users", h.ListUsers)
	authed.Get("/users/:id/presence", h.GetPresence)

	authed.Get("/conversations", h.ListConversations)
	authed.Post("/conversations", h.CreateConversation)
	authed.Delete("/conversations/:id", h.DeleteConversation)
	authed.Post("/conversations/:id/seen", h.MarkSeen)
	authed.Delete("/conversations/:id/messages", h.ClearChat)

	authed.Post("/messages", h.SendMessage)
	authed.Post("/messages/media", h.SendMedia)
	authed.Delete("/messages/:id", h.DeleteMessage)

	app.Use("/ws", middleware.RequireAuth(h.tokens), func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", fiberws.New(h.ServeWS))
}

// fail maps repository errors onto HTTP statuses.
func fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	case errors.Is(err, apperr.ErrBadRequest):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad request"})
	case errors.Is(err, apperr.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	case errors.Is(err, apperr.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}
