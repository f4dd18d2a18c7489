package store

import (
	"context"
	"testing"
	"time"

	"github.com/calmspace/apiserver/types"
)

func TestChatRepositoryHistoryOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	repo := NewChatRepository(conn)
	alice := createUser(t, conn, "alice01")
	bob := createUser(t, conn, "bob01")

	inputs := []struct {
		user    int64
		session *string
		content string
	}{
		{alice.ID, strPtr("s1"), "one"},
		{alice.ID, nil, "two"},
		{alice.ID, strPtr("s1"), "three"},
		{bob.ID, strPtr("s1"), "bob"},
	}
	for _, in := range inputs {
		if _, err := repo.Create(ctx, types.ChatMessage{UserID: in.user, SessionID: in.session, Sender: types.SenderUser, Content: in.content}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	all, err := repo.History(ctx, alice.ID, nil)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.Before(all[i-1].Timestamp) {
			t.Fatalf("history out of order at %d", i)
		}
	}
	if all[1].SessionID != nil {
		t.Fatalf("expected nil session id, got %q", *all[1].SessionID)
	}

	s1, err := repo.History(ctx, alice.ID, strPtr("s1"))
	if err != nil {
		t.Fatalf("history s1: %v", err)
	}
	if len(s1) != 2 || s1[0].Content != "one" || s1[1].Content != "three" {
		t.Fatalf("unexpected session history: %+v", s1)
	}
}

func TestChatRepositorySessions(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	repo := NewChatRepository(conn)
	alice := createUser(t, conn, "alice01")

	for _, session := range []*string{strPtr("old"), strPtr("old"), nil, strPtr("new")} {
		if _, err := repo.Create(ctx, types.ChatMessage{UserID: alice.ID, SessionID: session, Sender: types.SenderAI, Content: "x"}); err != nil {
			t.Fatalf("create: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	sessions, err := repo.Sessions(ctx, alice.ID)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].SessionID != "new" || sessions[1].SessionID != "old" {
		t.Fatalf("unexpected order: %+v", sessions)
	}
	if sessions[1].MessageCount != 2 {
		t.Fatalf("expected 2 messages in old session, got %d", sessions[1].MessageCount)
	}
	if sessions[1].StartTime.After(sessions[1].LastMessageTime) {
		t.Fatalf("start after last: %+v", sessions[1])
	}
}

func TestChatRepositoryDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	repo := NewChatRepository(conn)
	alice := createUser(t, conn, "alice01")
	bob := createUser(t, conn, "bob01")

	msg, err := repo.Create(ctx, types.ChatMessage{UserID: alice.ID, SessionID: strPtr("s1"), Sender: types.SenderUser, Content: "hi"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Create(ctx, types.ChatMessage{UserID: alice.ID, SessionID: strPtr("s2"), Sender: types.SenderUser, Content: "hey"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	deleted, err := repo.Delete(ctx, bob.ID, msg.ID)
	if err != nil || deleted {
		t.Fatalf("foreign delete must be a no-op: %v %v", deleted, err)
	}
	deleted, err = repo.Delete(ctx, alice.ID, msg.ID)
	if err != nil || !deleted {
		t.Fatalf("expected delete: %v %v", deleted, err)
	}

	for i := 0; i < 2; i++ {
		if _, err := repo.Clear(ctx, alice.ID, strPtr("s2")); err != nil {
			t.Fatalf("clear #%d: %v", i, err)
		}
	}
	sessions, err := repo.Sessions(ctx, alice.ID)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions after clear, got %+v", sessions)
	}
}

func TestChatRepositoryTotals(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	repo := NewChatRepository(conn)
	alice := createUser(t, conn, "alice01")

	totals, recent, err := repo.Totals(ctx, alice.ID, time.Now().Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("empty totals: %v", err)
	}
	if totals.TotalMessages != 0 || totals.LastMessageTime != nil || recent != 0 {
		t.Fatalf("unexpected empty totals: %+v recent=%d", totals, recent)
	}

	for _, session := range []*string{strPtr("a"), strPtr("b"), nil} {
		if _, err := repo.Create(ctx, types.ChatMessage{UserID: alice.ID, SessionID: session, Sender: types.SenderUser, Content: "x"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	totals, recent, err = repo.Totals(ctx, alice.ID, time.Now().Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.TotalMessages != 3 || totals.TotalSessions != 2 || recent != 3 {
		t.Fatalf("unexpected totals: %+v recent=%d", totals, recent)
	}
	if totals.LastMessageTime == nil {
		t.Fatal("expected last message time")
	}
}
