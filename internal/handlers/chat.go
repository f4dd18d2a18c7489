package handlers

import (
	"net/http"

	"github.com/calmspace/apiserver/internal/services"
	"github.com/calmspace/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// ChatHandler serves the caller's conversation with the assistant.
type ChatHandler struct {
	chats *services.ChatService
}

func NewChatHandler(chats *services.ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

// ChatRouter registers chat routes. Every route requires authMiddleware.
func ChatRouter(r chi.Router, chats *services.ChatService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewChatHandler(chats)

	r.Use(authMiddleware)
	r.Post("/send", handler.Send)
	r.Get("/history", handler.History)
	r.Get("/sessions", handler.Sessions)
	r.Delete("/message/{messageID}", handler.DeleteMessage)
	r.Delete("/clear", handler.Clear)
}

type SendResponse struct {
	Messages []types.ChatMessage `json:"messages"`
}

type ClearRequest struct {
	SessionID *string `json:"sessionId"`
}

// Send stores the caller's message and the assistant's reply.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req services.SendInput
	if !decodeJSON(w, r, &req) {
		return
	}
	exchange, err := h.chats.SendAndRespond(r.Context(), id.UserID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SendResponse{Messages: []types.ChatMessage{exchange.UserMessage, exchange.AIResponse}})
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := currentUser(w, r)
	if !ok {
		return
	}
	messages, err := h.chats.History(r.Context(), id.UserID, optionalString(r.URL.Query().Get("sessionId")))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *ChatHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	id, ok := currentUser(w, r)
	if !ok {
		return
	}
	sessions, err := h.chats.Sessions(r.Context(), id.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// DeleteMessage answers 200 whether or not the message existed.
func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := currentUser(w, r)
	if !ok {
		return
	}
	messageID, ok := parseID(r, "messageID")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid message id")
		return
	}
	deleted, err := h.chats.DeleteMessage(r.Context(), id.UserID, messageID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !deleted {
		writeMessage(w, http.StatusOK, "Message not found")
		return
	}
	writeMessage(w, http.StatusOK, "Message deleted successfully")
}

// Clear deletes the caller's history. The session may be given as the
// sessionId query parameter or in the body.
func (h *ChatHandler) Clear(w http.ResponseWriter, r *http.Request) {
	id, ok := currentUser(w, r)
	if !ok {
		return
	}
	sessionID := optionalString(r.URL.Query().Get("sessionId"))
	if sessionID == nil {
		var req ClearRequest
		if !decodeOptionalJSON(w, r, &req) {
			return
		}
		sessionID = req.SessionID
	}
	if _, err := h.chats.ClearHistory(r.Context(), id.UserID, sessionID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Chat history cleared successfully")
}
