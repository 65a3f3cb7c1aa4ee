package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sshconsole/sshconsole/internal/models"
	"gorm.io/gorm"
)

type ServerHandler struct {
	db *gorm.DB
}

func NewServerHandler(db *gorm.DB) *ServerHandler {
	return &ServerHandler{db: db}
}

func (h *ServerHandler) ListServers(c *fiber.Ctx) error {
	var servers []models.Server
	if err := h.db.Order("created_at DESC").Find(&servers).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to list servers",
		})
	}
	return c.JSON(fiber.Map{"servers": servers})
}

func (h *ServerHandler) CreateServer(c *fiber.Ctx) error {
	var req struct {
		Name         string `json:"name"`
		Host         string `json:"host"`
		Port         int    `json:"port"`
		CredentialID string `json:"credential_id"`
		User         string `json:"user"`
		CountryCode  string `json:"country_code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}

	if req.Name == "" || req.Host == "" || req.User == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Name, host, and user are required",
		})
	}
	if req.Port == 0 {
		req.Port = 22
	}

	credID, err := uuid.Parse(req.CredentialID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid credential ID",
		})
	}
	var cred models.Credential
	if err := h.db.First(&cred, "id = ?", credID).Error; err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Credential not found",
		})
	}

	server := models.Server{
		Name:         req.Name,
		Host:         req.Host,
		Port:         req.Port,
		CredentialID: credID,
		User:         req.User,
		CountryCode:  req.CountryCode,
	}
	if err := h.db.Create(&server).Error; err != nil {
		slog.Error("Failed to create server", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to create server",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(server)
}

func (h *ServerHandler) GetServer(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid server ID",
		})
	}

	var server models.Server
	if err := h.db.First(&server, "id = ?", id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Server not found",
		})
	}
	return c.JSON(server)
}

func (h *ServerHandler) UpdateServer(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid server ID",
		})
	}

	var server models.Server
	if err := h.db.First(&server, "id = ?", id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Server not found",
		})
	}

	var req struct {
		Name         *string `json:"name"`
		Host         *string `json:"host"`
		Port         *int    `json:"port"`
		CredentialID *string `json:"credential_id"`
		User         *string `json:"user"`
		CountryCode  *string `json:"country_code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}

	if req.Name != nil {
		server.Name = *req.Name
	}
	if req.Host != nil {
		server.Host = *req.Host
	}
	if req.Port != nil {
		server.Port = *req.Port
	}
	if req.CredentialID != nil {
		credID, err := uuid.Parse(*req.CredentialID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   true,
				"message": "Invalid credential ID",
			})
		}
		server.CredentialID = credID
	}
	if req.User != nil {
		server.User = *req.User
	}
	if req.CountryCode != nil {
		server.CountryCode = *req.CountryCode
	}

	if err := h.db.Save(&server).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to update server",
		})
	}
	return c.JSON(server)
}

func (h *ServerHandler) DeleteServer(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid server ID",
		})
	}

	if err := h.db.Delete(&models.Server{}, "id = ?", id).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to delete server",
		})
	}
	return c.JSON(fiber.Map{"id": id})
}
