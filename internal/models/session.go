package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session status values. Status only moves forward:
// pending -> active -> ended. An ended session is never reactivated.
const (
	SessionStatusPending = "pending"
	SessionStatusActive  = "active"
	SessionStatusEnded   = "ended"
)

type Session struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ServerID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"server_id"`
	SocketID  string     `gorm:"index" json:"socket_id,omitempty"`
	Status    string     `gorm:"not null;default:'pending';index" json:"status"`
	StartedAt *time.Time `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
