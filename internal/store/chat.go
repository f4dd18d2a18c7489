package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/calmspace/apiserver/types"
)

// ChatRepository handles persistence for chat messages.
type ChatRepository struct {
	db *sql.DB
}

func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Create(ctx context.Context, msg types.ChatMessage) (types.ChatMessage, error) {
	msg.Timestamp = now()

	const query = `
		INSERT INTO chat_messages (user_id, session_id, sender, content, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		msg.UserID,
		msg.SessionID,
		string(msg.Sender),
		msg.Content,
		msg.Timestamp,
	).Scan(&msg.ID); err != nil {
		return types.ChatMessage{}, fmt.Errorf("insert chat message: %w", err)
	}
	return msg, nil
}

// History lists the user's messages oldest first, restricted to one session
// when sessionID is non-nil.
func (r *ChatRepository) History(ctx context.Context, userID int64, sessionID *string) ([]types.ChatMessage, error) {
	query := `
		SELECT id, user_id, session_id, sender, content, timestamp
		FROM chat_messages
		WHERE user_id = $1`
	args := []any{userID}
	if sessionID != nil {
		query += ` AND session_id = $2`
		args = append(args, *sessionID)
	}
	query += ` ORDER BY timestamp ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chat history: %w", err)
	}
	defer rows.Close()

	messages := make([]types.ChatMessage, 0)
	for rows.Next() {
		var (
			msg     types.ChatMessage
			session sql.NullString
			sender  string
		)
		if err := rows.Scan(&msg.ID, &msg.UserID, &session, &sender, &msg.Content, &msg.Timestamp); err != nil {
			return nil, err
		}
		if session.Valid {
			s := session.String
			msg.SessionID = &s
		}
		msg.Sender = types.Sender(sender)
		msg.Timestamp = msg.Timestamp.UTC()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Sessions groups the user's messages by non-null session id, most recently
// active first.
func (r *ChatRepository) Sessions(ctx context.Context, userID int64) ([]types.ChatSession, error) {
	const query = `
		SELECT session_id,
			MIN(timestamp) AS start_time,
			MAX(timestamp) AS last_message_time,
			COUNT(*) AS message_count
		FROM chat_messages
		WHERE user_id = $1 AND session_id IS NOT NULL
		GROUP BY session_id
		ORDER BY last_message_time DESC, session_id ASC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query chat sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]types.ChatSession, 0)
	for rows.Next() {
		var (
			session     types.ChatSession
			start, last nullTimestamp
		)
		if err := rows.Scan(&session.SessionID, &start, &last, &session.MessageCount); err != nil {
			return nil, err
		}
		session.StartTime = start.Time
		session.LastMessageTime = last.Time
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// Delete removes one of the user's messages and reports whether it existed.
func (r *ChatRepository) Delete(ctx context.Context, userID, messageID int64) (bool, error) {
	const query = `DELETE FROM chat_messages WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, messageID, userID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Clear removes the user's messages, only those of one session when sessionID
// is non-nil. It returns the number of rows removed.
func (r *ChatRepository) Clear(ctx context.Context, userID int64, sessionID *string) (int64, error) {
	query := `DELETE FROM chat_messages WHERE user_id = $1`
	args := []any{userID}
	if sessionID != nil {
		query += ` AND session_id = $2`
		args = append(args, *sessionID)
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Totals summarizes the user's chat activity. recent counts the messages sent
// at or after since.
func (r *ChatRepository) Totals(ctx context.Context, userID int64, since time.Time) (totals types.ChatTotals, recent int, err error) {
	const query = `
		SELECT COUNT(*),
			COUNT(DISTINCT session_id),
			MAX(timestamp),
			COALESCE(SUM(CASE WHEN timestamp >= $1 THEN 1 ELSE 0 END), 0)
		FROM chat_messages
		WHERE user_id = $2`
	var last nullTimestamp
	if err := r.db.QueryRowContext(ctx, query, since.UTC(), userID).Scan(
		&totals.TotalMessages,
		&totals.TotalSessions,
		&last,
		&recent,
	); err != nil {
		return types.ChatTotals{}, 0, fmt.Errorf("query chat totals: %w", err)
	}
	totals.LastMessageTime = last.Ptr()
	return totals, recent, nil
}
