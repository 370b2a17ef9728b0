package server

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rusiqe/bespoke-matchmaking-platform/internal/config"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/domain"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/infra"
)

// replyDropper repassa o tráfego para o Redis e engole a resposta do
// primeiro EVAL, fechando a conexão como uma queda de rede.
type replyDropper struct {
	ln      net.Listener
	target  string
	dropped atomic.Bool
}

func newReplyDropper(t *testing.T, target string) *replyDropper {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &replyDropper{ln: ln, target: target}
	t.Cleanup(func() { _ = ln.Close() })
	go d.serve()
	return d
}

func (d *replyDropper) Addr() string { return d.ln.Addr().String() }

func (d *replyDropper) serve() {
	for {
		client, err := d.ln.Accept()
		if err != nil {
			return
		}
		go d.relay(client)
	}
}

func (d *replyDropper) relay(client net.Conn) {
	server, err := net.Dial("tcp", d.target)
	if err != nil {
		_ = client.Close()
		return
	}
	var armed atomic.Bool

	go func() {
		defer client.Close()
		buf := make([]byte, 32*1024)
		for {
			n, err := server.Read(buf)
			if n > 0 {
				if armed.Load() && d.dropped.CompareAndSwap(false, true) {
					_ = server.Close()
					return
				}
				if _, werr := client.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	defer server.Close()
	buf := make([]byte, 32*1024)
	for {
		n, err := client.Read(buf)
		if n > 0 {
			if !d.dropped.Load() && bytes.Contains(bytes.ToLower(buf[:n]), []byte("$4\r\neval\r\n")) {
				armed.Store(true)
			}
			if _, werr := server.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func TestNewRedisClient_DisablesRetries(t *testing.T) {
	for _, cfg := range []config.RedisConfig{
		{Addr: "127.0.0.1:6379", DialTimeout: time.Second, OpTimeout: time.Second},
		{URL: "redis://127.0.0.1:6379/2?max_retries=5", DialTimeout: time.Second, OpTimeout: time.Second},
	} {
		rdb, err := NewRedisClient(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		client, ok := rdb.(*redis.Client)
		if !ok {
			t.Fatalf("expected *redis.Client, got %T", rdb)
		}
		if got := client.Options().MaxRetries; got != 0 {
			t.Fatalf("expected retries disabled, got MaxRetries=%d", got)
		}
		_ = rdb.Close()
	}
}

func TestNewRedisClient_LostReplyCountsOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	relay := newReplyDropper(t, mr.Addr())

	rdb, err := NewRedisClient(config.RedisConfig{Addr: relay.Addr(), DialTimeout: time.Second, OpTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rdb.Close()

	store := infra.NewRedisCounterStore(rdb, infra.WithBreakerName("lost-reply-test"))
	_, err = store.Increment(context.Background(), "k", time.Minute)
	if !relay.dropped.Load() {
		t.Fatalf("expected the increment reply to be dropped")
	}
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable for the lost reply, got %v", err)
	}

	v, err := mr.Get("rate-limit:k")
	if err != nil {
		t.Fatalf("expected counter in redis: %v", err)
	}
	if v != "1" {
		t.Fatalf("expected a single increment, redis holds %q", v)
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Redis: config.RedisConfig{
			KeyPrefix:          "rate-limit:",
			OpTimeout:          time.Second,
			BreakerFailures:    5,
			BreakerOpenTimeout: time.Second,
		},
		RateLimit: config.RateLimitConfig{
			Window:          time.Minute,
			Max:             2,
			APIKeyHeader:    ratelimit.DefaultAPIKeyHeader,
			FailureLogEvery: time.Second,
		},
	}
}

func TestNewRateLimit_MemoryModeWithoutRedis(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Stats.Memory = true

	rl, err := NewRateLimit(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl.Start(ctx)

	if got := rl.Store.State(); got != "memory" {
		t.Fatalf("expected memory store, got %q", got)
	}
	if rl.Summary == nil {
		t.Fatalf("expected in-process stats summary")
	}

	rule := rl.Catalog.MustPolicy(ratelimit.PolicyGeneral).Rule()
	for i := 1; i <= 3; i++ {
		dec := rl.Service.Decide(ctx, rule, "10.0.0.1")
		_ = rl.Stats.Record(ctx, domain.StatsEvent{Policy: rule.Name, Key: "10.0.0.1", Allowed: dec.Allowed})
		if want := i <= 2; dec.Allowed != want || dec.Degraded {
			t.Fatalf("request %d: unexpected decision %+v", i, dec)
		}
	}
	if c := rl.Summary.Total(); c.Allowed != 2 || c.Denied != 1 {
		t.Fatalf("unexpected summary totals %+v", c)
	}
}

func TestNewRateLimit_RedisMode(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()

	cfg := testConfig()
	cfg.RateLimit.Stats.Redis = true

	rl, err := NewRateLimit(cfg, rdb)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rl.Summary != nil {
		t.Fatalf("expected no in-process summary by default")
	}
	if got := rl.Store.State(); got != "closed" {
		t.Fatalf("expected closed breaker, got %q", got)
	}

	rule := rl.Catalog.MustPolicy(ratelimit.PolicyGeneral).Rule()
	dec := rl.Service.Decide(context.Background(), rule, "10.0.0.1")
	_ = rl.Stats.Record(context.Background(), domain.StatsEvent{Policy: rule.Name, Allowed: dec.Allowed})

	if v, _ := mr.Get("rate-limit:general:10.0.0.1"); v != "1" {
		t.Fatalf("expected scoped counter in redis, got %q", v)
	}
	if v := mr.HGet("rate-limit:stats:total", "allowed"); v != "1" {
		t.Fatalf("expected redis stats written, got %q", v)
	}
}
