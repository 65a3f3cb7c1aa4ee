package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Server struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name            string     `gorm:"not null" json:"name"`
	Host            string     `gorm:"not null" json:"host"`
	Port            int        `gorm:"default:22" json:"port"`
	CredentialID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"credential_id"`
	User            string     `gorm:"not null" json:"user"`
	CountryCode     string     `json:"country_code"`
	LastConnectedAt *time.Time `json:"last_connected_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (s *Server) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
