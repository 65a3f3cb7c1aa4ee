package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sshconsole/sshconsole/internal/models"
	"github.com/sshconsole/sshconsole/internal/store"
	"gorm.io/gorm"
)

type SessionHandler struct {
	db *gorm.DB
	st *store.Store
}

func NewSessionHandler(db *gorm.DB, st *store.Store) *SessionHandler {
	return &SessionHandler{db: db, st: st}
}

// CreateSession records a pending session for a server. The console
// websocket later activates it on the first successful shell channel.
func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	var req struct {
		ServerID string `json:"server_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.ServerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "server_id is required",
		})
	}

	serverID, err := uuid.Parse(req.ServerID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid server ID",
		})
	}
	var server models.Server
	if err := h.db.First(&server, "id = ?", serverID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Server not found",
		})
	}

	session, err := h.st.CreateSession(c.Context(), serverID.String())
	if err != nil {
		slog.Error("Failed to create session", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to create session",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	sessions, err := h.st.ListSessions(c.Context(), c.Query("status"), c.Query("server_id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to list sessions",
		})
	}
	return c.JSON(fiber.Map{"sessions": sessions})
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	session, err := h.st.GetSession(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to load session",
		})
	}
	if session == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Session not found",
		})
	}
	return c.JSON(fiber.Map{"session": session})
}

// EndSession finalizes a session from the REST side. Idempotent: ending an
// ended session is not an error.
func (h *SessionHandler) EndSession(c *fiber.Ctx) error {
	id := c.Params("id")
	session, err := h.st.GetSession(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to load session",
		})
	}
	if session == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Session not found",
		})
	}

	if err := h.st.EndSession(c.Context(), id); err != nil {
		slog.Error("Failed to end session", "session_id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to end session",
		})
	}

	session, _ = h.st.GetSession(c.Context(), id)
	return c.JSON(fiber.Map{"session": session})
}
