package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/sshconsole/sshconsole/internal/config"
	"github.com/sshconsole/sshconsole/internal/console"
	"github.com/sshconsole/sshconsole/internal/middleware"
	"github.com/sshconsole/sshconsole/internal/models"
	"github.com/sshconsole/sshconsole/internal/store"
	"gorm.io/gorm"
)

type ConsoleHandler struct {
	db  *gorm.DB
	st  *store.Store
	cfg *config.Config
}

func NewConsoleHandler(db *gorm.DB, st *store.Store, cfg *config.Config) *ConsoleHandler {
	return &ConsoleHandler{db: db, st: st, cfg: cfg}
}

// UpgradeCheck is middleware that checks if the request is a websocket upgrade
func (h *ConsoleHandler) UpgradeCheck() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// HandleConsole accepts a terminal websocket and runs its connection session.
// The session id is optional: without one the client may still connect in
// direct mode, so an unusable connection is only rejected at the first
// connect message, not at the handshake.
func (h *ConsoleHandler) HandleConsole() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		sessionID := c.Query("session_id")
		if sessionID == "" {
			sessionID = c.Query("sessionId")
		}

		// Identity is advisory, used for auditing; resolution failure must
		// not reject the connection.
		userID := ""
		if token := c.Cookies("access_token"); token != "" {
			if claims, err := middleware.ParseToken(token, h.cfg.JWTSecret); err == nil {
				userID = claims.Username
			}
		}

		sess := console.NewConnSession(c, h.st, sessionID, userID, slog.Default())
		sess.OnConnected = func(server *models.Server) {
			if server != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := h.st.TouchServer(ctx, server.ID.String(), time.Now()); err != nil {
					slog.Warn("Failed to update last_connected_at", "server_id", server.ID, "error", err)
				}
			}
			h.audit(sess, "console.connect", server)
		}

		sess.Run()

		h.audit(sess, "console.disconnect", nil)
	})
}

func (h *ConsoleHandler) audit(sess *console.ConnSession, action string, server *models.Server) {
	details := map[string]interface{}{
		"socket_id": sess.SocketID,
	}
	if sess.SessionID != "" {
		details["session_id"] = sess.SessionID
	}
	if server != nil {
		details["host"] = server.Host
	}
	payload, _ := json.Marshal(details)

	entry := models.AuditLog{
		Actor:   sess.UserID,
		Action:  action,
		Target:  sess.SessionID,
		Details: payload,
	}
	if err := h.db.Create(&entry).Error; err != nil {
		slog.Warn("Failed to write audit log", "action", action, "error", err)
	}
}
