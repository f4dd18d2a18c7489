//go:build integration

package store

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/calmspace/apiserver/config"
	"github.com/calmspace/apiserver/internal/db"
	"github.com/calmspace/apiserver/types"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func dockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "docker", "info").Run() == nil
}

func startPostgres(t *testing.T) config.Config {
	t.Helper()
	if !dockerAvailable() {
		t.Skip("docker not available")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "calm",
				"POSTGRES_PASSWORD": "calm",
				"POSTGRES_DB":       "calmspace",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}

	return config.Config{
		Database: config.DatabaseConfig{
			Driver:   config.DriverPostgres,
			Host:     host,
			Port:     port.Int(),
			User:     "calm",
			Password: "calm",
			DBName:   "calmspace",
		},
	}
}

func TestPostgresRepositories(t *testing.T) {
	ctx := context.Background()
	cfg := startPostgres(t)

	if err := db.Migrate(ctx, cfg); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Migrate(ctx, cfg); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	users := NewUserRepository(conn)
	alice, err := users.Create(ctx, types.User{Username: "alice01", Email: "alice@example.com", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := users.Create(ctx, types.User{Username: "alice01", Email: "x@example.com", PasswordHash: "h"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	moods := NewMoodRepository(conn)
	for _, score := range []int{2, 3} {
		if _, err := moods.Create(ctx, types.MoodEntry{UserID: alice.ID, MoodScore: score}); err != nil {
			t.Fatalf("create mood: %v", err)
		}
	}
	totals, recent, err := moods.Totals(ctx, alice.ID, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("mood totals: %v", err)
	}
	if totals.TotalEntries != 2 || totals.AverageMood != 2.5 || recent != 2 {
		t.Fatalf("unexpected mood totals: %+v recent=%d", totals, recent)
	}

	chats := NewChatRepository(conn)
	if _, err := chats.Create(ctx, types.ChatMessage{UserID: alice.ID, SessionID: strPtr("s1"), Sender: types.SenderUser, Content: "hi"}); err != nil {
		t.Fatalf("create chat: %v", err)
	}
	sessions, err := chats.Sessions(ctx, alice.ID)
	if err != nil || len(sessions) != 1 || sessions[0].MessageCount != 1 {
		t.Fatalf("unexpected sessions: %+v %v", sessions, err)
	}

	sessionsRepo := NewSessionRepository(conn)
	if _, err := sessionsRepo.Create(ctx, types.UserSession{UserID: alice.ID, SessionID: "pg-1", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := sessionsRepo.FindValid(ctx, alice.ID, time.Now()); err != nil {
		t.Fatalf("find session: %v", err)
	}

	if err := users.Delete(ctx, alice.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := sessionsRepo.FindValid(ctx, alice.ID, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected cascade to remove sessions, got %v", err)
	}
}
