package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/virangk414141/vimesta2/internal/model"
)

// SessionRepo defines the interface for session record operations
type SessionRepo interface {
	Create(ctx context.Context, userID uuid.UUID, token string, ip, userAgent *string, expiresAt time.Time) (uuid.UUID, error)
	// GetActiveByToken returns the session only if it is active and unexpired.
	GetActiveByToken(ctx context.Context, token string) (model.Session, error)
	// Revoke deactivates the matching active session; a no-op when the token
	// is unknown or already inactive.
	Revoke(ctx context.Context, token string) error
}

type sessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a new SessionRepo instance
func NewSessionRepo(db *sql.DB) SessionRepo {
	return &sessionRepo{db: db}
}

// Create inserts a new session record
func (r *sessionRepo) Create(ctx context.Context, userID uuid.UUID, token string, ip, userAgent *string, expiresAt time.Time) (uuid.UUID, error) {
	var idStr string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (user_id, token, ip_address, user_agent, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, userID, token, ip, userAgent, expiresAt).Scan(&idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert session: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse session ID: %w", err)
	}
	return id, nil
}

// GetActiveByToken returns the active, unexpired session for the token
func (r *sessionRepo) GetActiveByToken(ctx context.Context, token string) (model.Session, error) {
	var s model.Session
	var idStr, userIDStr string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token, ip_address, user_agent, created_at, expires_at, active
		FROM sessions
		WHERE token = $1 AND active AND expires_at > now()
	`, token).Scan(
		&idStr,
		&userIDStr,
		&s.Token,
		&s.IPAddress,
		&s.UserAgent,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.Active,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Session{}, fmt.Errorf("session not found or inactive")
		}
		return model.Session{}, fmt.Errorf("query session: %w", err)
	}
	s.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Session{}, fmt.Errorf("parse session ID: %w", err)
	}
	s.UserID, err = uuid.Parse(userIDStr)
	if err != nil {
		return model.Session{}, fmt.Errorf("parse user ID: %w", err)
	}
	return s, nil
}

// Revoke marks the active session for the token inactive
func (r *sessionRepo) Revoke(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET active = false WHERE token = $1 AND active
	`, token)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
