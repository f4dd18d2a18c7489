package services

import (
	"context"
	"time"

	"github.com/calmspace/apiserver/internal/mq"
	"github.com/calmspace/apiserver/internal/store"
	"github.com/calmspace/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Taken(ctx context.Context, username, email string, excludeID int64) (bool, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
	Delete(ctx context.Context, id int64) error
}

// SessionRepository defines persistence operations for login sessions.
type SessionRepository interface {
	Create(ctx context.Context, session types.UserSession) (types.UserSession, error)
	FindValid(ctx context.Context, userID int64, at time.Time) (types.UserSession, error)
	DeactivateAll(ctx context.Context, userID int64) (int64, error)
	DeleteExpired(ctx context.Context, at time.Time) (int64, error)
}

// ChatRepository defines persistence operations for chat messages.
type ChatRepository interface {
	Create(ctx context.Context, msg types.ChatMessage) (types.ChatMessage, error)
	History(ctx context.Context, userID int64, sessionID *string) ([]types.ChatMessage, error)
	Sessions(ctx context.Context, userID int64) ([]types.ChatSession, error)
	Delete(ctx context.Context, userID, messageID int64) (bool, error)
	Clear(ctx context.Context, userID int64, sessionID *string) (int64, error)
	Totals(ctx context.Context, userID int64, since time.Time) (types.ChatTotals, int, error)
}

// MoodRepository defines persistence operations for mood entries.
type MoodRepository interface {
	Create(ctx context.Context, entry types.MoodEntry) (types.MoodEntry, error)
	Get(ctx context.Context, userID, id int64) (types.MoodEntry, error)
	List(ctx context.Context, userID int64, filter store.MoodFilter) ([]types.MoodEntry, error)
	Count(ctx context.Context, userID int64, filter store.MoodFilter) (int, error)
	Average(ctx context.Context, userID int64, from, before time.Time) (float64, int, error)
	Distribution(ctx context.Context, userID int64, since time.Time) (map[int]int, error)
	Totals(ctx context.Context, userID int64, since time.Time) (types.MoodTotals, int, error)
	Update(ctx context.Context, entry types.MoodEntry) (types.MoodEntry, error)
	Delete(ctx context.Context, userID, id int64) error
}

// EventPublisher emits domain events. Implementations must not block the
// caller on broker failures.
type EventPublisher interface {
	PublishEvent(ctx context.Context, evt mq.Event)
}
