package infra

import (
	"context"
	"sync"
	"time"

	"github.com/rusiqe/bespoke-matchmaking-platform/internal/logging"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/domain"
)

// MemoryCounterStore é uma janela fixa por chave em memória, com a mesma
// semântica do RedisCounterStore.
//
// O estado vive num único processo: útil para testes e desenvolvimento,
// não para produção com várias instâncias.
type MemoryCounterStore struct {
	mu           sync.Mutex
	entries      map[domain.Key]*counterEntry
	now          func() time.Time
	cleanupEvery time.Duration
}

type counterEntry struct {
	hits      int64
	expiresAt time.Time
}

type MemoryCounterOption func(*MemoryCounterStore)

// WithClock troca o relógio (testes).
func WithClock(now func() time.Time) MemoryCounterOption {
	return func(s *MemoryCounterStore) { s.now = now }
}

func WithCleanupEvery(d time.Duration) MemoryCounterOption {
	return func(s *MemoryCounterStore) { s.cleanupEvery = d }
}

func NewMemoryCounterStore(opts ...MemoryCounterOption) *MemoryCounterStore {
	s := &MemoryCounterStore{
		entries:      make(map[domain.Key]*counterEntry),
		now:          time.Now,
		cleanupEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Increment implementa domain.CounterStore.
func (s *MemoryCounterStore) Increment(_ context.Context, key domain.Key, window time.Duration) (domain.Hit, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok || !now.Before(ent.expiresAt) {
		ent = &counterEntry{expiresAt: now.Add(window)}
		s.entries[key] = ent
	}
	ent.hits++
	return domain.Hit{Total: ent.hits, TTL: ent.expiresAt.Sub(now)}, nil
}

// Decrement implementa domain.CounterStore.
func (s *MemoryCounterStore) Decrement(_ context.Context, key domain.Key) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok || !now.Before(ent.expiresAt) {
		return nil
	}
	if ent.hits > 0 {
		ent.hits--
	}
	return nil
}

// Reset implementa domain.CounterStore.
func (s *MemoryCounterStore) Reset(_ context.Context, key domain.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Cleanup remove contadores com a janela vencida.
func (s *MemoryCounterStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if !now.Before(ent.expiresAt) {
			delete(s.entries, k)
		}
	}
}

// Len devolve quantos contadores estão guardados (inclui vencidos ainda não limpos).
func (s *MemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor inicia uma goroutine que limpa janelas vencidas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryCounterStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
				logging.Debug().Int("counters", s.Len()).Msg("memory rate limit counters swept")
			}
		}
	}()
}

// Ping existe para o health check; o store em memória está sempre disponível.
func (s *MemoryCounterStore) Ping(context.Context) error { return nil }

func (s *MemoryCounterStore) State() string { return "memory" }
