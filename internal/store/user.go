package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/calmspace/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, password_hash, created_at, updated_at, last_login, is_active`

func scanUser(row interface{ Scan(...any) error }) (types.User, error) {
	var (
		user      types.User
		lastLogin nullTimestamp
	)
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastLogin,
		&user.IsActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	user.LastLogin = lastLogin.Ptr()
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// Taken reports whether another user already holds username or email.
// excludeID skips the caller's own row; pass 0 when there is none.
func (r *UserRepository) Taken(ctx context.Context, username, email string, excludeID int64) (bool, error) {
	const query = `
		SELECT COUNT(*)
		FROM users
		WHERE (username = $1 OR email = $2) AND id <> $3`
	var count int
	if err := r.db.QueryRowContext(ctx, query, username, email, excludeID).Scan(&count); err != nil {
		return false, fmt.Errorf("check user uniqueness: %w", err)
	}
	return count > 0, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	ts := now()
	user.CreatedAt = ts
	user.UpdatedAt = ts
	user.IsActive = true

	const query = `
		INSERT INTO users (username, email, password_hash, created_at, updated_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
		user.IsActive,
	).Scan(&user.ID); err != nil {
		return types.User{}, mapWriteError(err)
	}
	return user, nil
}

// Update writes the mutable columns of user and bumps updated_at.
func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = now()

	const query = `
		UPDATE users
		SET username = $1,
			email = $2,
			password_hash = $3,
			is_active = $4,
			updated_at = $5
		WHERE id = $6`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.IsActive,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, mapWriteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

// TouchLastLogin records a successful login at the given time.
func (r *UserRepository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	const query = `UPDATE users SET last_login = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the user. Chat messages, mood entries and sessions go with it
// through ON DELETE CASCADE.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
