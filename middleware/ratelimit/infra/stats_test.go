package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/domain"
)

func TestMemoryStatsStore_CountsByPolicyRouteAndKey(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	ctx := context.Background()

	_ = s.Record(ctx, domain.StatsEvent{Policy: "auth", Key: "k", Allowed: true, Method: "POST", Path: "/login"})
	_ = s.Record(ctx, domain.StatsEvent{Policy: "auth", Key: "k", Allowed: false, Method: "POST", Path: "/login"})
	_ = s.Record(ctx, domain.StatsEvent{Policy: "general", Key: "k", Allowed: true, Degraded: true, Method: "GET", Path: "/"})

	total := s.Total()
	if total.Allowed != 2 || total.Denied != 1 || total.Degraded != 1 {
		t.Fatalf("unexpected totals: %+v", total)
	}
	if c := s.ByPolicy()["auth"]; c.Allowed != 1 || c.Denied != 1 {
		t.Fatalf("unexpected auth counters: %+v", c)
	}
	if c := s.ByRoute()["POST /login"]; c.Denied != 1 {
		t.Fatalf("unexpected route counters: %+v", c)
	}
	if c := s.ByKey()["general:k"]; c.Allowed != 1 {
		t.Fatalf("expected key counters scoped by policy, got %+v", s.ByKey())
	}
}

func TestRedisStatsStore_WritesHashes(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStatsStore(rdb, WithStatsTrackKeys(true))
	at := time.Date(2026, 3, 4, 5, 6, 0, 0, time.UTC)

	err := s.Record(context.Background(), domain.StatsEvent{
		Policy: "auth", Key: "1.2.3.4", Allowed: false, Method: "POST", Path: "/api/v1/auth/login", At: at,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if v := mr.HGet("rate-limit:stats:total", "denied"); v != "1" {
		t.Fatalf("expected total denied=1, got %q", v)
	}
	if v := mr.HGet("rate-limit:stats:minute:202603040506", "denied"); v != "1" {
		t.Fatalf("expected minute bucket denied=1, got %q", v)
	}
	if v := mr.HGet("rate-limit:stats:policy", "auth:denied"); v != "1" {
		t.Fatalf("expected policy denied=1, got %q", v)
	}
	if v := mr.HGet("rate-limit:stats:route", "POST /api/v1/auth/login:denied"); v != "1" {
		t.Fatalf("expected route denied=1, got %q", v)
	}
	if !mr.Exists("rate-limit:stats:key:auth:1.2.3.4") {
		t.Fatalf("expected per-key hash")
	}
}

func TestRedisStatsStore_PrefixTTLAndDegraded(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStatsStore(rdb, WithStatsPrefix("mm:stats:"), WithStatsTTL(time.Hour))
	at := time.Date(2026, 3, 4, 5, 6, 0, 0, time.UTC)

	err := s.Record(context.Background(), domain.StatsEvent{Policy: "general", Key: "k", Allowed: true, Degraded: true, At: at})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if v := mr.HGet("mm:stats:total", "degraded"); v != "1" {
		t.Fatalf("expected degraded=1, got %q", v)
	}
	if ttl := mr.TTL("mm:stats:minute:202603040506"); ttl != time.Hour {
		t.Fatalf("expected minute bucket ttl=1h, got %s", ttl)
	}
	if ttl := mr.TTL("mm:stats:total"); ttl != 0 {
		t.Fatalf("expected cumulative total without ttl, got %s", ttl)
	}
	if mr.Exists("mm:stats:key:general:k") {
		t.Fatalf("expected no per-key hash when key tracking is off")
	}
}

func TestOutcome(t *testing.T) {
	if got := Outcome(domain.StatsEvent{Allowed: true}); got != "allowed" {
		t.Fatalf("expected allowed, got %s", got)
	}
	if got := Outcome(domain.StatsEvent{}); got != "denied" {
		t.Fatalf("expected denied, got %s", got)
	}
	if got := Outcome(domain.StatsEvent{Allowed: true, Degraded: true}); got != "degraded" {
		t.Fatalf("expected degraded, got %s", got)
	}
}

type failingStats struct{ calls int }

func (f *failingStats) Record(context.Context, domain.StatsEvent) error {
	f.calls++
	return errors.New("boom")
}

func TestMultiStats_FansOutAndReturnsFirstError(t *testing.T) {
	bad := &failingStats{}
	mem := NewMemoryStatsStore()
	m := MultiStats{bad, nil, mem, PrometheusStats{}}

	err := m.Record(context.Background(), domain.StatsEvent{Policy: "general", Allowed: true})
	if err == nil {
		t.Fatalf("expected error from failing store")
	}
	if bad.calls != 1 || mem.Total().Allowed != 1 {
		t.Fatalf("expected every store to receive the event")
	}
}
