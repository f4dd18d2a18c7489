package types

import "time"

// Sender identifies who authored a chat message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Valid reports whether the sender is one of the known authors.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAI
}

// ChatMessage is a single entry in a user's append-only chat log.
type ChatMessage struct {
	// ID is the unique identifier of the message.
	ID int64 `json:"id" db:"id"`

	// UserID identifies the user who owns the conversation.
	UserID int64 `json:"user_id" db:"user_id"`

	// SessionID groups messages into a conversation. Nil when the
	// message was sent outside of a named session.
	SessionID *string `json:"session_id" db:"session_id"`

	// Sender is either "user" or "ai".
	Sender Sender `json:"sender" db:"sender"`

	// Content is the message text.
	Content string `json:"content" db:"content"`

	// Timestamp is assigned by the server when the message is stored.
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// ChatSession summarizes the messages sharing one session id.
type ChatSession struct {
	SessionID       string    `json:"session_id"`
	StartTime       time.Time `json:"start_time"`
	LastMessageTime time.Time `json:"last_message_time"`
	MessageCount    int       `json:"message_count"`
}
