// Package store wraps session, server, and credential persistence.
//
// Session rows only move forward (pending -> active -> ended), and every
// transition here is a conditional UPDATE so the invariant holds without
// multi-row transactions: an ended session is never touched again, and
// started_at/ended_at are each written at most once.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sshconsole/sshconsole/internal/models"
	"gorm.io/gorm"
)

// ErrSessionUnavailable is returned when a session cannot be activated
// because it does not exist or has already ended.
var ErrSessionUnavailable = errors.New("session is not available for connection")

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateSession(ctx context.Context, serverID string) (*models.Session, error) {
	sess := models.Session{Status: models.SessionStatusPending}
	if err := sess.ServerID.UnmarshalText([]byte(serverID)); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(&sess).Error; err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetSession returns the session row, or (nil, nil) when no row exists.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ActivateSession marks the session active and binds it to the given
// transport socket. Rebinding while pending or active is allowed and
// overwrites socket_id; started_at is only set on the first activation.
// Activating an ended (or missing) session fails.
func (s *Store) ActivateSession(ctx context.Context, id, socketID string) error {
	res := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND status <> ?", id, models.SessionStatusEnded).
		Updates(map[string]interface{}{
			"status":     models.SessionStatusActive,
			"socket_id":  socketID,
			"started_at": gorm.Expr("COALESCE(started_at, ?)", time.Now()),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionUnavailable
	}
	return nil
}

// EndSession finalizes the session. Idempotent: ending an already-ended
// session changes nothing and is not an error.
func (s *Store) EndSession(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND status <> ?", id, models.SessionStatusEnded).
		Updates(map[string]interface{}{
			"status":   models.SessionStatusEnded,
			"ended_at": time.Now(),
		}).Error
}

// ReleaseSession ends the session only while it is still bound to the given
// socket (or was never bound). A session rebound to a newer transport
// connection is left alone, so a stale connection's teardown cannot kill a
// reconnected client's session.
func (s *Store) ReleaseSession(ctx context.Context, id, socketID string) error {
	return s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND status <> ? AND (socket_id IS NULL OR socket_id = '' OR socket_id = ?)",
			id, models.SessionStatusEnded, socketID).
		Updates(map[string]interface{}{
			"status":   models.SessionStatusEnded,
			"ended_at": time.Now(),
		}).Error
}

func (s *Store) ListSessions(ctx context.Context, status, serverID string) ([]models.Session, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if serverID != "" {
		q = q.Where("server_id = ?", serverID)
	}
	var sessions []models.Session
	if err := q.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetServer returns the server row, or (nil, nil) when no row exists.
func (s *Store) GetServer(ctx context.Context, id string) (*models.Server, error) {
	var server models.Server
	err := s.db.WithContext(ctx).First(&server, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &server, nil
}

// GetCredential returns the credential row with secrets intact, or
// (nil, nil) when no row exists. Only connection establishment may use it;
// everything user-facing goes through Credential.Masked.
func (s *Store) GetCredential(ctx context.Context, id string) (*models.Credential, error) {
	var cred models.Credential
	err := s.db.WithContext(ctx).First(&cred, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// TouchServer records a successful terminal connection on the server row.
func (s *Store) TouchServer(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Server{}).
		Where("id = ?", id).
		Update("last_connected_at", at).Error
}

func (s *Store) Counts(ctx context.Context) (servers, sessions, credentials int64, err error) {
	db := s.db.WithContext(ctx)
	if err = db.Model(&models.Server{}).Count(&servers).Error; err != nil {
		return
	}
	if err = db.Model(&models.Session{}).Count(&sessions).Error; err != nil {
		return
	}
	err = db.Model(&models.Credential{}).Count(&credentials).Error
	return
}
