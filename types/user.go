package types

import "time"

// User represents an account in the system.
// It owns every chat message, mood entry, and session row by foreign key.
type User struct {
	// ID is the unique identifier of the user.
	ID int64 `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's unique email address, used to log in.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent profile or password change.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// LastLogin is the timestamp of the most recent successful login, if any.
	LastLogin *time.Time `json:"last_login" db:"last_login"`

	// IsActive is false once the account has been deactivated.
	IsActive bool `json:"is_active" db:"is_active"`
}

// Summary returns the public projection of the user.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, Email: u.Email}
}

// Profile returns the profile projection of the user.
func (u User) Profile() UserProfile {
	return UserProfile{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
	}
}

// UserSummary is the identity returned alongside issued tokens.
type UserSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UserProfile is the profile document returned by the profile endpoints.
type UserProfile struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login"`
}

// UserStats aggregates a user's chat, mood, and activity figures.
type UserStats struct {
	Chat     ChatTotals     `json:"chat"`
	Mood     MoodTotals     `json:"mood"`
	Activity ActivityTotals `json:"activity"`
}

type ChatTotals struct {
	TotalMessages   int        `json:"totalMessages"`
	TotalSessions   int        `json:"totalSessions"`
	LastMessageTime *time.Time `json:"lastMessageTime"`
}

type MoodTotals struct {
	TotalEntries  int        `json:"totalEntries"`
	AverageMood   float64    `json:"averageMood"`
	LastEntryTime *time.Time `json:"lastEntryTime"`
}

type ActivityTotals struct {
	JoinedAt            time.Time  `json:"joinedAt"`
	LastLogin           *time.Time `json:"lastLogin"`
	MessagesThisWeek    int        `json:"messagesThisWeek"`
	MoodEntriesThisWeek int        `json:"moodEntriesThisWeek"`
}
