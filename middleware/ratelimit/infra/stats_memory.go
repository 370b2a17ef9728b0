package infra

import (
	"context"
	"sync"

	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed  int64 `json:"allowed"`
	Denied   int64 `json:"denied"`
	Degraded int64 `json:"degraded"`
}

func (c *Counters) add(ev domain.StatsEvent) {
	if ev.Allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
	if ev.Degraded {
		c.Degraded++
	}
}

// MemoryStatsStore guarda estatísticas das decisões em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    Counters
	byPolicy map[string]Counters
	byRoute  map[string]Counters
	byKey    map[string]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byPolicy: make(map[string]Counters),
		byRoute:  make(map[string]Counters),
		byKey:    make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev)
	bump(s.byPolicy, ev.Policy, ev)
	bump(s.byRoute, route, ev)
	if s.trackKeys {
		bump(s.byKey, ev.Policy+":"+string(ev.Key), ev)
	}
	return nil
}

func bump(m map[string]Counters, k string, ev domain.StatsEvent) {
	c := m[k]
	c.add(ev)
	m[k] = c
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByPolicy() map[string]Counters {
	return s.snapshot(func() map[string]Counters { return s.byPolicy })
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	return s.snapshot(func() map[string]Counters { return s.byRoute })
}

// ByKey só é preenchido com WithTrackKeys(true). Chaves no formato policy:key.
func (s *MemoryStatsStore) ByKey() map[string]Counters {
	return s.snapshot(func() map[string]Counters { return s.byKey })
}

func (s *MemoryStatsStore) snapshot(pick func() map[string]Counters) map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := pick()
	out := make(map[string]Counters, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
