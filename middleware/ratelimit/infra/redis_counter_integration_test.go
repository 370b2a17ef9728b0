//go:build integration

package infra

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedisContainer(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("6379/tcp"),
			wait.ForLog("Ready to accept connections"),
		).WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("create redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("get mapped port: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisCounterStore_Integration_ConcurrentIncrementsAreAtomic(t *testing.T) {
	rdb := startRedisContainer(t)
	s := NewRedisCounterStore(rdb, WithBreakerName("integration"))
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := s.Increment(ctx, "concurrent", time.Minute); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	hit, err := s.Increment(ctx, "concurrent", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit.Total != workers+1 {
		t.Fatalf("expected total=%d, got %d", workers+1, hit.Total)
	}
}

func TestRedisCounterStore_Integration_WindowExpires(t *testing.T) {
	rdb := startRedisContainer(t)
	s := NewRedisCounterStore(rdb, WithBreakerName("integration-expiry"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = s.Increment(ctx, "short", 300*time.Millisecond)
	}
	time.Sleep(400 * time.Millisecond)

	hit, err := s.Increment(ctx, "short", 300*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit.Total != 1 {
		t.Fatalf("expected fresh window, got total=%d", hit.Total)
	}
}
