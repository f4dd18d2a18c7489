package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/calmspace/apiserver/internal/ai"
	"github.com/calmspace/apiserver/internal/mq"
	"github.com/calmspace/apiserver/internal/validation"
	"github.com/calmspace/apiserver/types"
)

// SendInput is a user chat message.
type SendInput struct {
	Content   string  `json:"content" validate:"notblank,max=4000"`
	SessionID *string `json:"sessionId"`
}

// Exchange is the stored user message together with the stored reply.
type Exchange struct {
	UserMessage types.ChatMessage `json:"userMessage"`
	AIResponse  types.ChatMessage `json:"aiResponse"`
}

// ChatService stores conversations and obtains AI replies.
type ChatService struct {
	repo      ChatRepository
	completer ai.Completer
	events    EventPublisher
}

func NewChatService(repo ChatRepository, completer ai.Completer, events EventPublisher) *ChatService {
	if events == nil {
		events = noopEvents{}
	}
	return &ChatService{repo: repo, completer: completer, events: events}
}

// normalizeSession treats a blank session id as no session.
func normalizeSession(sessionID *string) *string {
	if sessionID == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*sessionID)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// AppendMessage stores one message in the user's log.
func (s *ChatService) AppendMessage(ctx context.Context, userID int64, sessionID *string, sender types.Sender, content string) (types.ChatMessage, error) {
	if !sender.Valid() {
		return types.ChatMessage{}, invalidField("sender", fmt.Sprintf("sender must be %q or %q", types.SenderUser, types.SenderAI))
	}
	return s.repo.Create(ctx, types.ChatMessage{
		UserID:    userID,
		SessionID: normalizeSession(sessionID),
		Sender:    sender,
		Content:   content,
	})
}

// SendAndRespond stores the user's message, asks the completer for a reply,
// and stores the reply in the same session.
func (s *ChatService) SendAndRespond(ctx context.Context, userID int64, in SendInput) (Exchange, error) {
	if errs := validation.Struct(in); len(errs) > 0 {
		return Exchange{}, invalid(errs...)
	}
	content := strings.TrimSpace(in.Content)
	sessionID := normalizeSession(in.SessionID)

	userMsg, err := s.AppendMessage(ctx, userID, sessionID, types.SenderUser, content)
	if err != nil {
		return Exchange{}, err
	}

	reply := s.completer.Complete(ctx, content)
	aiMsg, err := s.AppendMessage(ctx, userID, sessionID, types.SenderAI, reply)
	if err != nil {
		return Exchange{}, err
	}

	data := map[string]any{"userMessageId": userMsg.ID, "aiMessageId": aiMsg.ID}
	if sessionID != nil {
		data["sessionId"] = *sessionID
	}
	s.events.PublishEvent(ctx, mq.Event{Type: mq.EventChatExchange, UserID: userID, Data: data})

	return Exchange{UserMessage: userMsg, AIResponse: aiMsg}, nil
}

// History returns the user's messages in chronological order, optionally
// limited to one session.
func (s *ChatService) History(ctx context.Context, userID int64, sessionID *string) ([]types.ChatMessage, error) {
	return s.repo.History(ctx, userID, normalizeSession(sessionID))
}

// Sessions lists the user's named sessions, most recently active first.
func (s *ChatService) Sessions(ctx context.Context, userID int64) ([]types.ChatSession, error) {
	return s.repo.Sessions(ctx, userID)
}

// DeleteMessage removes one of the user's messages. deleted is false when no
// such message belongs to the user.
func (s *ChatService) DeleteMessage(ctx context.Context, userID, messageID int64) (deleted bool, err error) {
	return s.repo.Delete(ctx, userID, messageID)
}

// ClearHistory deletes the user's messages, or only one session's, and
// reports how many were removed.
func (s *ChatService) ClearHistory(ctx context.Context, userID int64, sessionID *string) (int64, error) {
	return s.repo.Clear(ctx, userID, normalizeSession(sessionID))
}
