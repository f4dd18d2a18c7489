//go:build integration

package lockout

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisLimiterLocksAndResets(t *testing.T) {
	ctx := context.Background()
	probe, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if exec.CommandContext(probe, "docker", "info").Run() != nil {
		t.Skip("docker not available")
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	defer func() { _ = container.Terminate(ctx) }()

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	rdb, err := NewRedisClient(ctx, endpoint, "", 0)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer rdb.Close()

	l := NewRedisLimiter(rdb, 3, time.Minute)
	for i := 0; i < 3; i++ {
		if l.Locked(ctx, "a@example.com") {
			t.Fatalf("locked too early after %d failures", i)
		}
		l.Fail(ctx, "a@example.com")
	}
	if !l.Locked(ctx, "a@example.com") {
		t.Fatal("expected lock after 3 failures")
	}
	ttl, err := rdb.TTL(ctx, attemptsKey("a@example.com")).Result()
	if err != nil || ttl <= 0 {
		t.Fatalf("expected expiry on counter, got %v %v", ttl, err)
	}
	l.Reset(ctx, "a@example.com")
	if l.Locked(ctx, "a@example.com") {
		t.Fatal("expected reset to unlock")
	}
}
