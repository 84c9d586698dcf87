package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/yourorg/messenger/internal/auth"
)

const (
	LocalUserID = "user_id"
	LocalEmail  = "email"
)

// RequireAuth validates the bearer token and stashes the caller's identity in
// locals. The websocket route also accepts the token as a query parameter,
// since browsers cannot set headers on an upgrade request.
func RequireAuth(tokens *auth.Tokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := ""
		if h := c.Get("Authorization"); h != "" {
			parts := strings.SplitN(h, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				raw = parts[1]
			}
		}
		if raw == "" {
			raw = c.Query("token")
		}
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing token"})
		}
		claims, err := tokens.Verify(raw)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}
		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalEmail, claims.Email)
		return c.Next()
	}
}

// UserID returns the authenticated user id set by RequireAuth.
func UserID(c *fiber.Ctx) string {
	if v, ok := c.Locals(LocalUserID).(string); ok {
		return v
	}
	return ""
}
