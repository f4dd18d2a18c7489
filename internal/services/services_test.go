package services

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/calmspace/apiserver/config"
	"github.com/calmspace/apiserver/internal/auth"
	"github.com/calmspace/apiserver/internal/db"
	"github.com/calmspace/apiserver/internal/mq"
	"github.com/calmspace/apiserver/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

type recordingEvents struct {
	mu     sync.Mutex
	events []mq.Event
}

func (r *recordingEvents) PublishEvent(_ context.Context, evt mq.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Type)
	}
	return out
}

type staticCompleter struct {
	reply   string
	prompts []string
}

func (c *staticCompleter) Complete(_ context.Context, prompt string) string {
	c.prompts = append(c.prompts, prompt)
	return c.reply
}

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{objects: make(map[string][]byte)}
}

func (m *memoryObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryObjects) DeletePrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			delete(m.objects, key)
			n++
		}
	}
	return n, nil
}

func (m *memoryObjects) Bucket() string { return "test-bucket" }

func (m *memoryObjects) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return bytes.Clone(data), ok
}

type harness struct {
	conn      *sql.DB
	events    *recordingEvents
	completer *staticCompleter
	objects   *memoryObjects
	tokens    *auth.TokenIssuer
	accounts  *AccountService
	chats     *ChatService
	moods     *MoodService
	exports   *ExportService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	cfg := config.Config{
		Database: config.DatabaseConfig{
			Driver:     config.DriverSQLite,
			SQLitePath: filepath.Join(t.TempDir(), "services.db"),
		},
	}
	if err := db.Migrate(ctx, cfg); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	users := store.NewUserRepository(conn)
	sessions := store.NewSessionRepository(conn)
	chatRepo := store.NewChatRepository(conn)
	moodRepo := store.NewMoodRepository(conn)

	h := &harness{
		conn:      conn,
		events:    &recordingEvents{},
		completer: &staticCompleter{reply: "I hear you."},
		objects:   newMemoryObjects(),
		tokens:    auth.NewTokenIssuer(testSecret, time.Hour),
	}
	h.exports = NewExportService(users, chatRepo, moodRepo, h.objects)
	h.accounts = NewAccountService(AccountDeps{
		Users:      users,
		Sessions:   sessions,
		Chats:      chatRepo,
		Moods:      moodRepo,
		Hasher:     auth.NewPasswordHasher(bcrypt.MinCost),
		Tokens:     h.tokens,
		SessionTTL: time.Hour,
		Events:     h.events,
		Exports:    h.exports,
	})
	h.chats = NewChatService(chatRepo, h.completer, h.events)
	h.moods = NewMoodService(moodRepo, h.events)
	return h
}

func (h *harness) register(t *testing.T, username string) AuthResult {
	t.Helper()
	result, err := h.accounts.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "Abc123",
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return result
}

func strPtr(s string) *string { return &s }
