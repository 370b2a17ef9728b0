package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/rusiqe/bespoke-matchmaking-platform/internal/logging"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/domain"
)

// DefaultKeyPrefix é o namespace das chaves de contador no Redis.
const DefaultKeyPrefix = "rate-limit:"

// INCR e, só quando o contador nasce (ou perdeu o TTL), PEXPIRE.
// Hits seguintes não movem a expiração.
var incrementScript = redis.NewScript(`
local hits = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if hits == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {hits, ttl}
`)

// DECR só quando o valor é positivo; chave inexistente é no-op.
var decrementScript = redis.NewScript(`
local v = tonumber(redis.call('GET', KEYS[1]) or '0')
if v and v > 0 then
  return redis.call('DECR', KEYS[1])
end
return 0
`)

// RedisCounterStore implementa domain.CounterStore sobre Redis.
//
// Todas as chamadas passam por um circuit breaker: com o breaker aberto o
// store falha na hora (ErrStoreUnavailable) sem tocar na rede.
type RedisCounterStore struct {
	rdb    redis.UniversalClient
	prefix string

	breakerName      string
	failureThreshold uint32
	openTimeout      time.Duration

	cb *gobreaker.CircuitBreaker[any]
}

type RedisCounterOption func(*RedisCounterStore)

func WithKeyPrefix(prefix string) RedisCounterOption {
	return func(s *RedisCounterStore) {
		s.prefix = strings.TrimSuffix(prefix, ":") + ":"
	}
}

// WithBreaker ajusta quantas falhas consecutivas abrem o breaker e quanto
// tempo ele fica aberto antes de testar de novo (half-open).
func WithBreaker(failureThreshold uint32, openTimeout time.Duration) RedisCounterOption {
	return func(s *RedisCounterStore) {
		s.failureThreshold = failureThreshold
		s.openTimeout = openTimeout
	}
}

func WithBreakerName(name string) RedisCounterOption {
	return func(s *RedisCounterStore) { s.breakerName = name }
}

func NewRedisCounterStore(rdb redis.UniversalClient, opts ...RedisCounterOption) *RedisCounterStore {
	s := &RedisCounterStore{
		rdb:              rdb,
		prefix:           DefaultKeyPrefix,
		breakerName:      "ratelimit-redis",
		failureThreshold: 5,
		openTimeout:      10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	threshold := s.failureThreshold
	BreakerState.WithLabelValues(s.breakerName).Set(0)
	s.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        s.breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     s.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			BreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("rate limit store circuit breaker state changed")
		},
	})
	return s
}

// Increment implementa domain.CounterStore.
func (s *RedisCounterStore) Increment(ctx context.Context, key domain.Key, window time.Duration) (domain.Hit, error) {
	ms := window.Milliseconds()
	if ms < 1 {
		ms = 1
	}

	res, err := s.execute(ctx, "increment", func() (any, error) {
		return incrementScript.Run(ctx, s.rdb, []string{s.redisKey(key)}, ms).Int64Slice()
	})
	if err != nil {
		return domain.Hit{}, err
	}

	vals, _ := res.([]int64)
	if len(vals) != 2 {
		return domain.Hit{}, fmt.Errorf("%w: increment: unexpected reply %v", domain.ErrStoreUnavailable, res)
	}
	return domain.Hit{Total: vals[0], TTL: time.Duration(vals[1]) * time.Millisecond}, nil
}

// Decrement implementa domain.CounterStore.
func (s *RedisCounterStore) Decrement(ctx context.Context, key domain.Key) error {
	_, err := s.execute(ctx, "decrement", func() (any, error) {
		return decrementScript.Run(ctx, s.rdb, []string{s.redisKey(key)}).Int64()
	})
	return err
}

// Reset implementa domain.CounterStore.
func (s *RedisCounterStore) Reset(ctx context.Context, key domain.Key) error {
	_, err := s.execute(ctx, "reset", func() (any, error) {
		return s.rdb.Del(ctx, s.redisKey(key)).Result()
	})
	return err
}

// Ping verifica a conexão, fora do breaker (usado pelo health check).
func (s *RedisCounterStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// State devolve o estado atual do breaker ("closed", "half-open", "open").
func (s *RedisCounterStore) State() string {
	return s.cb.State().String()
}

func (s *RedisCounterStore) redisKey(key domain.Key) string {
	return s.prefix + string(key)
}

func (s *RedisCounterStore) execute(ctx context.Context, op string, fn func() (any, error)) (any, error) {
	start := time.Now()
	res, err := s.cb.Execute(fn)
	StoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err == nil {
		return res, nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %s: timeout: %w", domain.ErrStoreUnavailable, op, err)
	}
	return nil, fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}

func breakerStateValue(st gobreaker.State) float64 {
	switch st {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
