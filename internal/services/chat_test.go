package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/calmspace/apiserver/internal/mq"
	"github.com/calmspace/apiserver/types"
)

func TestSendAndRespond(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice01")

	session := "s1"
	exchange, err := h.chats.SendAndRespond(ctx, alice.User.ID, SendInput{Content: "  I feel anxious  ", SessionID: &session})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if exchange.UserMessage.Sender != types.SenderUser || exchange.UserMessage.Content != "I feel anxious" {
		t.Fatalf("unexpected user message: %+v", exchange.UserMessage)
	}
	if exchange.AIResponse.Sender != types.SenderAI || exchange.AIResponse.Content != "I hear you." {
		t.Fatalf("unexpected reply: %+v", exchange.AIResponse)
	}
	if exchange.AIResponse.SessionID == nil || *exchange.AIResponse.SessionID != "s1" {
		t.Fatalf("expected reply in session s1, got %v", exchange.AIResponse.SessionID)
	}
	if len(h.completer.prompts) != 1 || h.completer.prompts[0] != "I feel anxious" {
		t.Fatalf("unexpected prompts: %v", h.completer.prompts)
	}

	got := h.events.types()
	if got[len(got)-1] != mq.EventChatExchange {
		t.Fatalf("expected chat.exchange event, got %v", got)
	}
}

func TestSendValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice01")

	for _, content := range []string{"", "   ", strings.Repeat("a", 4001)} {
		_, err := h.chats.SendAndRespond(ctx, alice.User.ID, SendInput{Content: content})
		if !errors.As(err, new(*ValidationError)) {
			t.Fatalf("content of length %d: expected validation error, got %v", len(content), err)
		}
	}
	if len(h.completer.prompts) != 0 {
		t.Fatalf("completer should not be called for invalid input")
	}
	history, err := h.chats.History(ctx, alice.User.ID, nil)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected nothing stored, got %d messages", len(history))
	}
}

func TestAppendMessageRejectsUnknownSender(t *testing.T) {
	h := newHarness(t)
	alice := h.register(t, "alice01")

	_, err := h.chats.AppendMessage(context.Background(), alice.User.ID, nil, types.Sender("bot"), "hi")
	if !errors.As(err, new(*ValidationError)) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHistoryIsChronological(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice01")

	for _, content := range []string{"one", "two", "three"} {
		if _, err := h.chats.SendAndRespond(ctx, alice.User.ID, SendInput{Content: content}); err != nil {
			t.Fatalf("send %s: %v", content, err)
		}
	}
	history, err := h.chats.History(ctx, alice.User.ID, nil)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 6 {
		t.Fatalf("expected 6 messages, got %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].Timestamp.Before(history[i-1].Timestamp) {
			t.Fatalf("message %d precedes message %d", i, i-1)
		}
	}
	if history[0].Content != "one" || history[5].Sender != types.SenderAI {
		t.Fatalf("unexpected ordering: %+v", history)
	}
}

func TestClearHistoryIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice01")

	s1, s2 := "s1", "s2"
	for _, sid := range []*string{&s1, &s2} {
		if _, err := h.chats.SendAndRespond(ctx, alice.User.ID, SendInput{Content: "hi", SessionID: sid}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	for i := 0; i < 2; i++ {
		if _, err := h.chats.ClearHistory(ctx, alice.User.ID, &s1); err != nil {
			t.Fatalf("clear %d: %v", i, err)
		}
	}
	sessions, err := h.chats.Sessions(ctx, alice.User.ID)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "s2" || sessions[0].MessageCount != 2 {
		t.Fatalf("expected only s2 to remain, got %+v", sessions)
	}

	blank := "  "
	removed, err := h.chats.ClearHistory(ctx, alice.User.ID, &blank)
	if err != nil {
		t.Fatalf("clear all: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 messages removed, got %d", removed)
	}
}

func TestDeleteMessageOwnership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.register(t, "alice01")
	bob := h.register(t, "bob0001")

	exchange, err := h.chats.SendAndRespond(ctx, alice.User.ID, SendInput{Content: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	deleted, err := h.chats.DeleteMessage(ctx, bob.User.ID, exchange.UserMessage.ID)
	if err != nil || deleted {
		t.Fatalf("bob must not delete alice's message: deleted=%v err=%v", deleted, err)
	}
	deleted, err = h.chats.DeleteMessage(ctx, alice.User.ID, exchange.UserMessage.ID)
	if err != nil || !deleted {
		t.Fatalf("expected delete, got deleted=%v err=%v", deleted, err)
	}
	deleted, err = h.chats.DeleteMessage(ctx, alice.User.ID, exchange.UserMessage.ID)
	if err != nil || deleted {
		t.Fatalf("second delete: deleted=%v err=%v", deleted, err)
	}
}
