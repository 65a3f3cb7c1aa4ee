package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sshconsole/sshconsole/internal/keygen"
	"github.com/sshconsole/sshconsole/internal/models"
	"gorm.io/gorm"
)

type CredentialHandler struct {
	db *gorm.DB
}

func NewCredentialHandler(db *gorm.DB) *CredentialHandler {
	return &CredentialHandler{db: db}
}

func validCredentialType(t string) bool {
	switch t {
	case models.CredentialTypePassword,
		models.CredentialTypePrivateKey,
		models.CredentialTypePrivateKeyWithPassphrase:
		return true
	}
	return false
}

// ListCredentials returns all credentials with secret fields masked.
func (h *CredentialHandler) ListCredentials(c *fiber.Ctx) error {
	var creds []models.Credential
	if err := h.db.Order("created_at DESC").Find(&creds).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to list credentials",
		})
	}

	masked := make([]models.Credential, len(creds))
	for i, cred := range creds {
		masked[i] = cred.Masked()
	}
	return c.JSON(fiber.Map{"credentials": masked})
}

func (h *CredentialHandler) CreateCredential(c *fiber.Ctx) error {
	var req struct {
		Identifier string `json:"identifier"`
		Type       string `json:"type"`
		User       string `json:"user"`
		Password   string `json:"password"`
		PublicKey  string `json:"public_key"`
		PrivateKey string `json:"private_key"`
		Passphrase string `json:"passphrase"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}

	if req.Identifier == "" || req.User == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Identifier and user are required",
		})
	}
	if !validCredentialType(req.Type) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Unsupported credential type",
		})
	}

	cred := models.Credential{
		Identifier: req.Identifier,
		Type:       req.Type,
		User:       req.User,
		Password:   req.Password,
		PublicKey:  req.PublicKey,
		PrivateKey: req.PrivateKey,
		Passphrase: req.Passphrase,
	}
	if err := h.db.Create(&cred).Error; err != nil {
		slog.Error("Failed to create credential", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to create credential",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": cred.ID})
}

// GetCredential returns a single credential, masked.
func (h *CredentialHandler) GetCredential(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid credential ID",
		})
	}

	var cred models.Credential
	if err := h.db.First(&cred, "id = ?", id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Credential not found",
		})
	}
	return c.JSON(fiber.Map{"credential": cred.Masked()})
}

func (h *CredentialHandler) UpdateCredential(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid credential ID",
		})
	}

	var cred models.Credential
	if err := h.db.First(&cred, "id = ?", id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Credential not found",
		})
	}

	var req struct {
		Identifier string `json:"identifier"`
		Type       string `json:"type"`
		User       string `json:"user"`
		Password   string `json:"password"`
		PublicKey  string `json:"public_key"`
		PrivateKey string `json:"private_key"`
		Passphrase string `json:"passphrase"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}
	if req.Type != "" && !validCredentialType(req.Type) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Unsupported credential type",
		})
	}

	if req.Identifier != "" {
		cred.Identifier = req.Identifier
	}
	if req.Type != "" {
		cred.Type = req.Type
	}
	if req.User != "" {
		cred.User = req.User
	}
	if req.Password != "" {
		cred.Password = req.Password
	}
	if req.PublicKey != "" {
		cred.PublicKey = req.PublicKey
	}
	if req.PrivateKey != "" {
		cred.PrivateKey = req.PrivateKey
	}
	if req.Passphrase != "" {
		cred.Passphrase = req.Passphrase
	}

	if err := h.db.Save(&cred).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to update credential",
		})
	}
	return c.JSON(fiber.Map{"id": cred.ID})
}

func (h *CredentialHandler) DeleteCredential(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid credential ID",
		})
	}

	if err := h.db.Delete(&models.Credential{}, "id = ?", id).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to delete credential",
		})
	}
	return c.JSON(fiber.Map{"id": id})
}

// GenerateMaterial produces fresh credential material: a random password or
// an SSH key pair, depending on the requested type.
func (h *CredentialHandler) GenerateMaterial(c *fiber.Ctx) error {
	var req struct {
		Type string `json:"type"`
	}
	if err := c.BodyParser(&req); err != nil || req.Type == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Type is required",
		})
	}

	switch req.Type {
	case "password":
		return c.JSON(fiber.Map{"password": keygen.GeneratePassword()})
	case "ssh-rsa":
		pair, err := keygen.GenerateKeyPair("rsa")
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   true,
				"message": "Key generation failed",
			})
		}
		return c.JSON(pair)
	case "ssh-ed25519":
		pair, err := keygen.GenerateKeyPair("ed25519")
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   true,
				"message": "Key generation failed",
			})
		}
		return c.JSON(pair)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Type not supported",
		})
	}
}
