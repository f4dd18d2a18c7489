package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/calmspace/apiserver/internal/auth"
	"github.com/calmspace/apiserver/internal/lockout"
	"github.com/calmspace/apiserver/internal/logging"
	"github.com/calmspace/apiserver/internal/metrics"
	"github.com/calmspace/apiserver/internal/mq"
	"github.com/calmspace/apiserver/internal/store"
	"github.com/calmspace/apiserver/internal/validation"
	"github.com/calmspace/apiserver/types"
	"github.com/google/uuid"
)

const (
	msgUserExists         = "User already exists with this email or username"
	msgInvalidCredentials = "Invalid email or password"
	msgDeactivated        = "Account is deactivated"
	msgIdentityTaken      = "Username or email already exists"
	msgWrongPassword      = "Current password is incorrect"
	msgUserNotFound       = "User not found"
	msgInvalidSession     = "Invalid or expired session"

	statsWindow = 7 * 24 * time.Hour
)

// RegisterInput is the payload accepted by Register.
type RegisterInput struct {
	Username string `json:"username" validate:"username"`
	Email    string `json:"email" validate:"required,email,max=100"`
	Password string `json:"password" validate:"strongpassword"`
}

// LoginInput is the payload accepted by Login.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ProfileUpdate carries the profile fields to change. Absent fields are left
// untouched; explicit nulls are rejected.
type ProfileUpdate struct {
	Username types.Optional[string] `json:"username"`
	Email    types.Optional[string] `json:"email"`
}

// PasswordChange is the payload accepted by ChangePassword.
type PasswordChange struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"strongpassword"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token string            `json:"token"`
	User  types.UserSummary `json:"user"`
}

// ExportPurger removes stored account exports.
type ExportPurger interface {
	Purge(ctx context.Context, userID int64) error
}

// AccountDeps wires an AccountService.
type AccountDeps struct {
	Users      UserRepository
	Sessions   SessionRepository
	Chats      ChatRepository
	Moods      MoodRepository
	Hasher     *auth.PasswordHasher
	Tokens     *auth.TokenIssuer
	SessionTTL time.Duration
	Limiter    lockout.Limiter
	Events     EventPublisher
	Exports    ExportPurger
}

// AccountService implements registration, login, sessions, and profile
// management.
type AccountService struct {
	users      UserRepository
	sessions   SessionRepository
	chats      ChatRepository
	moods      MoodRepository
	hasher     *auth.PasswordHasher
	tokens     *auth.TokenIssuer
	sessionTTL time.Duration
	limiter    lockout.Limiter
	events     EventPublisher
	exports    ExportPurger
}

func NewAccountService(deps AccountDeps) *AccountService {
	s := &AccountService{
		users:      deps.Users,
		sessions:   deps.Sessions,
		chats:      deps.Chats,
		moods:      deps.Moods,
		hasher:     deps.Hasher,
		tokens:     deps.Tokens,
		sessionTTL: deps.SessionTTL,
		limiter:    deps.Limiter,
		events:     deps.Events,
		exports:    deps.Exports,
	}
	if s.limiter == nil {
		s.limiter = lockout.Noop{}
	}
	if s.events == nil {
		s.events = noopEvents{}
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = s.tokens.TTL()
	}
	return s
}

type noopEvents struct{}

func (noopEvents) PublishEvent(context.Context, mq.Event) {}

// Register creates an account and logs it in.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if errs := validation.Struct(in); len(errs) > 0 {
		return AuthResult{}, invalid(errs...)
	}

	taken, err := s.users.Taken(ctx, in.Username, in.Email, 0)
	if err != nil {
		return AuthResult{}, err
	}
	if taken {
		return AuthResult{}, &ConflictError{Message: msgUserExists}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return AuthResult{}, err
	}

	user, err := s.users.Create(ctx, types.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return AuthResult{}, &ConflictError{Message: msgUserExists}
		}
		return AuthResult{}, err
	}

	result, err := s.openSession(ctx, user)
	if err != nil {
		return AuthResult{}, err
	}

	s.events.PublishEvent(ctx, mq.Event{
		Type:   mq.EventUserRegistered,
		UserID: user.ID,
		Data:   map[string]any{"username": user.Username},
	})
	logging.Ctx(ctx).Info().Int64("user_id", user.ID).Msg("user registered")
	return result, nil
}

// Login verifies credentials and opens a new session. Unknown emails and wrong
// passwords produce the same error after comparable work.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	if errs := validation.Struct(in); len(errs) > 0 {
		return AuthResult{}, invalid(errs...)
	}

	if s.limiter.Locked(ctx, in.Email) {
		metrics.LoginAttempts.WithLabelValues("locked").Inc()
		return AuthResult{}, ErrTooManyAttempts
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return AuthResult{}, err
		}
		s.hasher.VerifyNothing(in.Password)
		return AuthResult{}, s.loginFailed(ctx, in.Email)
	}

	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		return AuthResult{}, s.loginFailed(ctx, in.Email)
	}
	if !user.IsActive {
		metrics.LoginAttempts.WithLabelValues("deactivated").Inc()
		return AuthResult{}, &AuthError{Message: msgDeactivated}
	}

	s.limiter.Reset(ctx, in.Email)

	now := time.Now().UTC()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return AuthResult{}, err
	}
	user.LastLogin = &now

	result, err := s.openSession(ctx, user)
	if err != nil {
		return AuthResult{}, err
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	return result, nil
}

func (s *AccountService) loginFailed(ctx context.Context, email string) error {
	s.limiter.Fail(ctx, email)
	metrics.LoginAttempts.WithLabelValues("failure").Inc()
	return &AuthError{Message: msgInvalidCredentials}
}

func (s *AccountService) openSession(ctx context.Context, user types.User) (AuthResult, error) {
	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}
	_, err = s.sessions.Create(ctx, types.UserSession{
		UserID:    user.ID,
		SessionID: uuid.NewString(),
		ExpiresAt: time.Now().UTC().Add(s.sessionTTL),
	})
	if err != nil {
		return AuthResult{}, fmt.Errorf("create session: %w", err)
	}
	return AuthResult{Token: token, User: user.Summary()}, nil
}

// Logout deactivates every session of the token's user. It always succeeds
// from the caller's point of view: bad tokens and storage errors are only
// logged.
func (s *AccountService) Logout(ctx context.Context, token string) {
	if token == "" {
		return
	}
	claims, err := s.tokens.Decode(token)
	if err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("logout with undecodable token")
		return
	}
	n, err := s.sessions.DeactivateAll(ctx, claims.UserID)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Int64("user_id", claims.UserID).Msg("deactivate sessions failed")
		return
	}
	logging.Ctx(ctx).Info().Int64("user_id", claims.UserID).Int64("sessions", n).Msg("user logged out")
}

// VerifySession checks the token signature and expiry, then requires an
// active unexpired session for an active user.
func (s *AccountService) VerifySession(ctx context.Context, token string) (types.UserSummary, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return types.UserSummary{}, &AuthError{Message: msgInvalidSession}
	}
	if _, err := s.sessions.FindValid(ctx, claims.UserID, time.Now().UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.UserSummary{}, &AuthError{Message: msgInvalidSession}
		}
		return types.UserSummary{}, err
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.UserSummary{}, &AuthError{Message: msgInvalidSession}
		}
		return types.UserSummary{}, err
	}
	if !user.IsActive {
		return types.UserSummary{}, &AuthError{Message: msgInvalidSession}
	}
	return user.Summary(), nil
}

// GetProfile returns the profile of userID.
func (s *AccountService) GetProfile(ctx context.Context, userID int64) (types.UserProfile, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return types.UserProfile{}, err
	}
	return user.Profile(), nil
}

func (s *AccountService) getUser(ctx context.Context, userID int64) (types.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, &NotFoundError{Message: msgUserNotFound}
		}
		return types.User{}, err
	}
	return user, nil
}

// UpdateProfile changes the username and/or email of userID.
func (s *AccountService) UpdateProfile(ctx context.Context, userID int64, in ProfileUpdate) (types.UserProfile, error) {
	var details []validation.FieldError
	if in.Username.Set && in.Username.Null {
		details = append(details, validation.FieldError{Field: "username", Message: "username cannot be null"})
	}
	if in.Email.Set && in.Email.Null {
		details = append(details, validation.FieldError{Field: "email", Message: "email cannot be null"})
	}
	if len(details) > 0 {
		return types.UserProfile{}, invalid(details...)
	}
	if !in.Username.Present() && !in.Email.Present() {
		return types.UserProfile{}, invalidField("body", "at least one of username or email is required")
	}

	username := strings.TrimSpace(in.Username.Value)
	email := strings.TrimSpace(in.Email.Value)
	if in.Username.Present() {
		if fe := validation.Var("username", username, "username"); fe != nil {
			details = append(details, *fe)
		}
	}
	if in.Email.Present() {
		if fe := validation.Var("email", email, "required,email,max=100"); fe != nil {
			details = append(details, *fe)
		}
	}
	if len(details) > 0 {
		return types.UserProfile{}, invalid(details...)
	}

	user, err := s.getUser(ctx, userID)
	if err != nil {
		return types.UserProfile{}, err
	}

	taken, err := s.users.Taken(ctx, username, email, userID)
	if err != nil {
		return types.UserProfile{}, err
	}
	if taken {
		return types.UserProfile{}, &ConflictError{Message: msgIdentityTaken}
	}

	if in.Username.Present() {
		user.Username = username
	}
	if in.Email.Present() {
		user.Email = email
	}
	updated, err := s.users.Update(ctx, user)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return types.UserProfile{}, &ConflictError{Message: msgIdentityTaken}
		case errors.Is(err, store.ErrNotFound):
			return types.UserProfile{}, &NotFoundError{Message: msgUserNotFound}
		}
		return types.UserProfile{}, err
	}
	return updated.Profile(), nil
}

// ChangePassword replaces the password of userID after checking the current one.
func (s *AccountService) ChangePassword(ctx context.Context, userID int64, in PasswordChange) error {
	if errs := validation.Struct(in); len(errs) > 0 {
		return invalid(errs...)
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(in.CurrentPassword, user.PasswordHash) {
		return &AuthError{Message: msgWrongPassword}
	}
	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if _, err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{Message: msgUserNotFound}
		}
		return err
	}
	return nil
}

// DeleteAccount removes userID together with every row it owns and any
// stored exports.
func (s *AccountService) DeleteAccount(ctx context.Context, userID int64) error {
	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{Message: msgUserNotFound}
		}
		return err
	}
	if s.exports != nil {
		if err := s.exports.Purge(ctx, userID); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int64("user_id", userID).Msg("purge exports failed")
		}
	}
	s.events.PublishEvent(ctx, mq.Event{Type: mq.EventUserDeleted, UserID: userID})
	logging.Ctx(ctx).Info().Int64("user_id", userID).Msg("account deleted")
	return nil
}

// Stats aggregates chat, mood, and activity figures for userID.
func (s *AccountService) Stats(ctx context.Context, userID int64) (types.UserStats, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return types.UserStats{}, err
	}
	since := time.Now().UTC().Add(-statsWindow)

	chat, recentMessages, err := s.chats.Totals(ctx, userID, since)
	if err != nil {
		return types.UserStats{}, err
	}
	mood, recentEntries, err := s.moods.Totals(ctx, userID, since)
	if err != nil {
		return types.UserStats{}, err
	}
	return types.UserStats{
		Chat: chat,
		Mood: mood,
		Activity: types.ActivityTotals{
			JoinedAt:            user.CreatedAt,
			LastLogin:           user.LastLogin,
			MessagesThisWeek:    recentMessages,
			MoodEntriesThisWeek: recentEntries,
		},
	}, nil
}

// CleanupExpiredSessions deletes sessions whose expiry has passed.
func (s *AccountService) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.SessionsExpiredDeleted.Add(float64(n))
	}
	return n, nil
}

// RunSessionCleanup calls CleanupExpiredSessions every interval until ctx is
// done.
func (s *AccountService) RunSessionCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.CleanupExpiredSessions(ctx)
			if err != nil {
				logging.Ctx(ctx).Error().Err(err).Msg("session cleanup failed")
				continue
			}
			if n > 0 {
				logging.Ctx(ctx).Info().Int64("deleted", n).Msg("expired sessions removed")
			}
		}
	}
}
