package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/domain"
)

type fakeStore struct {
	mu       sync.Mutex
	counts   map[domain.Key]int64
	ttl      time.Duration
	err      error
	ctxErrs  []error
	lastKeys []domain.Key
}

func newFakeStore() *fakeStore {
	return &fakeStore{counts: make(map[domain.Key]int64)}
}

func (s *fakeStore) Increment(ctx context.Context, key domain.Key, window time.Duration) (domain.Hit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	s.lastKeys = append(s.lastKeys, key)
	if s.err != nil {
		return domain.Hit{}, s.err
	}
	s.counts[key]++
	ttl := s.ttl
	if ttl == 0 {
		ttl = window
	}
	return domain.Hit{Total: s.counts[key], TTL: ttl}, nil
}

func (s *fakeStore) Decrement(_ context.Context, key domain.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.counts[key] > 0 {
		s.counts[key]--
	}
	return nil
}

func (s *fakeStore) Reset(_ context.Context, key domain.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	delete(s.counts, key)
	return nil
}

type recordingObserver struct {
	ops []string
}

func (o *recordingObserver) StoreFailed(_ context.Context, op string, _ domain.Key, _ error) {
	o.ops = append(o.ops, op)
}

var testRule = domain.Rule{Name: "test", Window: time.Minute, Max: 3}

func TestService_Decide_AllowsWhenNoStore(t *testing.T) {
	svc := Service{}
	dec := svc.Decide(context.Background(), testRule, "k")
	if !dec.Allowed {
		t.Fatalf("expected allowed")
	}
	if dec.Degraded {
		t.Fatalf("expected non-degraded decision without store")
	}
}

func TestService_Decide_RejectsAfterMax(t *testing.T) {
	svc := Service{Store: newFakeStore()}
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		dec := svc.Decide(ctx, testRule, "k")
		if !dec.Allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
		if dec.Remaining != int64(3-i) {
			t.Fatalf("expected remaining=%d, got %d", 3-i, dec.Remaining)
		}
	}

	dec := svc.Decide(ctx, testRule, "k")
	if dec.Allowed {
		t.Fatalf("expected 4th request to be rejected")
	}
	if dec.Remaining != 0 {
		t.Fatalf("expected remaining=0, got %d", dec.Remaining)
	}
	if dec.RetryAfter != time.Minute {
		t.Fatalf("expected RetryAfter=1m, got %s", dec.RetryAfter)
	}
}

func TestService_Decide_UsesScopedKey(t *testing.T) {
	store := newFakeStore()
	svc := Service{Store: store}
	svc.Decide(context.Background(), testRule, "10.0.0.1")

	if len(store.lastKeys) != 1 || store.lastKeys[0] != "test:10.0.0.1" {
		t.Fatalf("expected scoped key test:10.0.0.1, got %v", store.lastKeys)
	}
}

func TestService_Decide_FailsOpenOnStoreError(t *testing.T) {
	store := newFakeStore()
	store.err = fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable)
	obs := &recordingObserver{}
	svc := Service{Store: store, Observer: obs}

	for i := 0; i < 10; i++ {
		dec := svc.Decide(context.Background(), testRule, "k")
		if !dec.Allowed {
			t.Fatalf("expected fail-open allow on attempt %d", i+1)
		}
		if !dec.Degraded {
			t.Fatalf("expected degraded decision")
		}
		if dec.Total != 1 || dec.RetryAfter != testRule.Window {
			t.Fatalf("expected first-hit/full-window decision, got %+v", dec)
		}
	}
	if len(obs.ops) != 10 || obs.ops[0] != "increment" {
		t.Fatalf("expected 10 increment failures observed, got %v", obs.ops)
	}
}

func TestService_Decide_StoreCallSurvivesCallerCancellation(t *testing.T) {
	store := newFakeStore()
	svc := Service{Store: store}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dec := svc.Decide(ctx, testRule, "k")
	if !dec.Allowed || dec.Degraded {
		t.Fatalf("expected normal decision, got %+v", dec)
	}
	if err := store.ctxErrs[0]; err != nil {
		t.Fatalf("expected store context to be detached from caller, got %v", err)
	}
	if store.counts["test:k"] != 1 {
		t.Fatalf("expected hit to be counted")
	}
}

func TestService_Decide_ZeroTTLFallsBackToWindow(t *testing.T) {
	store := newFakeStore()
	store.ttl = -1
	svc := Service{Store: store}

	dec := svc.Decide(context.Background(), testRule, "k")
	if dec.RetryAfter != testRule.Window {
		t.Fatalf("expected RetryAfter=window, got %s", dec.RetryAfter)
	}
}

func TestService_Refund_DecrementsScopedCounter(t *testing.T) {
	store := newFakeStore()
	svc := Service{Store: store}
	ctx := context.Background()

	svc.Decide(ctx, testRule, "k")
	svc.Decide(ctx, testRule, "k")
	svc.Refund(ctx, testRule, "k")

	if got := store.counts["test:k"]; got != 1 {
		t.Fatalf("expected counter=1 after refund, got %d", got)
	}
}

func TestService_Refund_ErrorGoesToObserverOnly(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("boom")
	obs := &recordingObserver{}
	svc := Service{Store: store, Observer: obs}

	svc.Refund(context.Background(), testRule, "k")

	if len(obs.ops) != 1 || obs.ops[0] != "decrement" {
		t.Fatalf("expected decrement failure observed, got %v", obs.ops)
	}
}

func TestService_Reset_DeletesCounter(t *testing.T) {
	store := newFakeStore()
	svc := Service{Store: store}
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		svc.Decide(ctx, testRule, "k")
	}
	if err := svc.Reset(ctx, testRule, "k"); err != nil {
		t.Fatalf("unexpected reset error: %v", err)
	}
	if dec := svc.Decide(ctx, testRule, "k"); !dec.Allowed || dec.Total != 1 {
		t.Fatalf("expected fresh window after reset, got %+v", dec)
	}
}

func TestService_Reset_ReturnsStoreError(t *testing.T) {
	store := newFakeStore()
	store.err = domain.ErrStoreUnavailable
	svc := Service{Store: store}

	if err := svc.Reset(context.Background(), testRule, "k"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
