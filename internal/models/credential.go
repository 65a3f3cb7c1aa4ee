package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Credential types. The populated secret fields depend on the type:
// password uses Password, private_key uses PrivateKey, and
// private_key_with_passphrase uses PrivateKey + Passphrase.
const (
	CredentialTypePassword                 = "password"
	CredentialTypePrivateKey               = "private_key"
	CredentialTypePrivateKeyWithPassphrase = "private_key_with_passphrase"
)

const maskedSecret = "********"

type Credential struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Identifier string    `gorm:"not null" json:"identifier"`
	Type       string    `gorm:"not null" json:"type"`
	User       string    `gorm:"not null" json:"user"`
	Password   string    `json:"password,omitempty"`
	PublicKey  string    `gorm:"type:text" json:"public_key,omitempty"`
	PrivateKey string    `gorm:"type:text" json:"private_key,omitempty"`
	Passphrase string    `json:"passphrase,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (c *Credential) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Masked returns a copy safe to return through listing/read endpoints.
// Secret fields are replaced per credential type; the public key stays visible.
func (c Credential) Masked() Credential {
	switch c.Type {
	case CredentialTypePassword:
		c.Password = maskedSecret
	case CredentialTypePrivateKey:
		c.PrivateKey = maskedSecret
	case CredentialTypePrivateKeyWithPassphrase:
		c.PrivateKey = maskedSecret
		c.Passphrase = maskedSecret
	}
	return c
}
