package infra

import (
	"context"
	"testing"
	"time"
)

func TestChanPool_BlocksWhenFull(t *testing.T) {
	p := NewChanPool(1)

	release, ok := p.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected first acquire to succeed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, ok := p.Acquire(ctx); ok {
		t.Fatalf("expected second acquire to fail while full")
	}

	release()
	release() // idempotente
	if p.InFlight() != 0 {
		t.Fatalf("expected no slots in flight, got %d", p.InFlight())
	}
}
