package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/calmspace/apiserver/types"
)

// SessionRepository handles persistence for login sessions.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session types.UserSession) (types.UserSession, error) {
	session.CreatedAt = now()
	session.ExpiresAt = session.ExpiresAt.UTC()
	session.IsActive = true

	const query = `
		INSERT INTO user_sessions (user_id, session_id, created_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		session.UserID,
		session.SessionID,
		session.CreatedAt,
		session.ExpiresAt,
		session.IsActive,
	).Scan(&session.ID); err != nil {
		return types.UserSession{}, mapWriteError(err)
	}
	return session, nil
}

// FindValid returns the latest-expiring session of an active user that is
// still active and unexpired at the given time.
func (r *SessionRepository) FindValid(ctx context.Context, userID int64, at time.Time) (types.UserSession, error) {
	const query = `
		SELECT s.id, s.user_id, s.session_id, s.created_at, s.expires_at, s.is_active
		FROM user_sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.user_id = $1
			AND s.is_active = $2
			AND s.expires_at > $3
			AND u.is_active = $2
		ORDER BY s.expires_at DESC
		LIMIT 1`
	var session types.UserSession
	err := r.db.QueryRowContext(ctx, query, userID, true, at.UTC()).Scan(
		&session.ID,
		&session.UserID,
		&session.SessionID,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.IsActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.UserSession{}, ErrNotFound
		}
		return types.UserSession{}, err
	}
	return session, nil
}

// DeactivateAll marks every active session of the user inactive and reports
// how many rows changed.
func (r *SessionRepository) DeactivateAll(ctx context.Context, userID int64) (int64, error) {
	const query = `UPDATE user_sessions SET is_active = $1 WHERE user_id = $2 AND is_active = $3`
	result, err := r.db.ExecContext(ctx, query, false, userID, true)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteExpired removes sessions whose expiry is at or before the given time.
func (r *SessionRepository) DeleteExpired(ctx context.Context, at time.Time) (int64, error) {
	const query = `DELETE FROM user_sessions WHERE expires_at <= $1`
	result, err := r.db.ExecContext(ctx, query, at.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
