package handlers

import (
	"context"

	fiberws "github.com/gofiber/websocket/v2"

	"github.com/yourorg/messenger/internal/middleware"
	"github.com/yourorg/messenger/internal/ws"
)

// ServeWS runs a subscriber connection. The user is marked online for the
// lifetime of the socket; presence flips back to offline with a last-seen
// stamp when it closes.
func (h *Handler) ServeWS(conn *fiberws.Conn) {
	userID, _ := conn.Locals(middleware.LocalUserID).(string)
	if userID == "" {
		_ = conn.Close()
		return
	}

	ctx := context.Background()
	if err := h.tracker.SetOnline(ctx, userID); err != nil {
		h.log.Warnw("presence online failed", "user", userID, "err", err)
	}
	defer func() {
		if err := h.tracker.SetOffline(ctx, userID); err != nil {
			h.log.Warnw("presence offline failed", "user", userID, "err", err)
		}
		if err := h.store.Users.TouchLastSeen(ctx, userID); err != nil {
			h.log.Warnw("last seen update failed", "user", userID, "err", err)
		}
	}()

	ws.NewConnection(conn, userID, h.hub, h.log).Serve()
}
