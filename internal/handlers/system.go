package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sshconsole/sshconsole/internal/store"
)

const Version = "1.0.0"

type SystemHandler struct {
	st *store.Store
}

func NewSystemHandler(st *store.Store) *SystemHandler {
	return &SystemHandler{st: st}
}

func (h *SystemHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": Version,
	})
}

// Stats returns row counts for the dashboard.
func (h *SystemHandler) Stats(c *fiber.Ctx) error {
	servers, sessions, credentials, err := h.st.Counts(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to load stats",
		})
	}
	return c.JSON(fiber.Map{
		"server_count":     servers,
		"session_count":    sessions,
		"credential_count": credentials,
	})
}
