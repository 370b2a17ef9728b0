package infra

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/domain"
)

// DefaultStatsPrefix é o namespace dos hashes de estatística.
const DefaultStatsPrefix = "rate-limit:stats"

// RedisStatsStore agrega decisões do gate em hashes do Redis:
//
//	<prefix>:total                  allowed | denied | degraded
//	<prefix>:minute:YYYYMMDDHHMM    allowed | denied           (expira em ttl)
//	<prefix>:policy                 <policy>:<outcome>
//	<prefix>:route                  <METHOD path>:<outcome>
//	<prefix>:key:<policy>:<key>     allowed | denied           (opcional, expira em ttl)
type RedisStatsStore struct {
	rdb       redis.UniversalClient
	prefix    string
	ttl       time.Duration
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithStatsTTL define a expiração dos baldes por minuto e por chave; 0 não expira.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsTrackKeys liga os hashes por chave (cardinalidade alta).
func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{rdb: rdb, prefix: DefaultStatsPrefix, ttl: 24 * time.Hour}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type statsIncr struct {
	key     string
	field   string
	expires bool
}

func (s *RedisStatsStore) increments(ev domain.StatsEvent) []statsIncr {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	outcome := "denied"
	if ev.Allowed {
		outcome = "allowed"
	}

	incrs := []statsIncr{
		{key: s.prefix + ":total", field: outcome},
		{key: s.prefix + ":minute:" + at.UTC().Format("200601021504"), field: outcome, expires: true},
	}
	if ev.Degraded {
		incrs = append(incrs, statsIncr{key: s.prefix + ":total", field: "degraded"})
	}
	if policy := strings.TrimSpace(ev.Policy); policy != "" {
		incrs = append(incrs, statsIncr{key: s.prefix + ":policy", field: policy + ":" + outcome})
	}
	if route := strings.TrimSpace(ev.Method + " " + ev.Path); route != "" {
		incrs = append(incrs, statsIncr{key: s.prefix + ":route", field: route + ":" + outcome})
	}
	if k := strings.TrimSpace(string(ev.Key)); s.trackKeys && k != "" {
		incrs = append(incrs, statsIncr{key: s.prefix + ":key:" + ev.Policy + ":" + k, field: outcome, expires: true})
	}
	return incrs
}

// Record implementa domain.StatsStore com um único pipeline por evento.
func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	pipe := s.rdb.Pipeline()
	for _, in := range s.increments(ev) {
		pipe.HIncrBy(ctx, in.key, in.field, 1)
		if in.expires && s.ttl > 0 {
			pipe.Expire(ctx, in.key, s.ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}
