package application

import (
	"context"
	"time"

	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/domain"
)

// DefaultOpTimeout limita cada chamada ao store quando Service.OpTimeout <= 0.
const DefaultOpTimeout = 250 * time.Millisecond

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Falha do store nunca vira erro para o chamador: a decisão cai em fail-open
// (primeiro hit, janela cheia) e o Observer é notificado.
type Service struct {
	Store     domain.CounterStore
	Observer  domain.StoreObserver
	OpTimeout time.Duration
}

// Decide conta o hit atual e decide se a requisição passa.
//
// A chamada ao store é desacoplada do cancelamento de ctx: se o cliente cair
// no meio, o hit continua contando. O limite de tempo vem de OpTimeout.
func (s Service) Decide(ctx context.Context, rule domain.Rule, key domain.Key) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true, Total: 0, Limit: rule.Max, Remaining: rule.Max, RetryAfter: rule.Window}
	}

	scoped := rule.Scoped(key)
	opCtx, cancel := s.opContext(ctx)
	hit, err := s.Store.Increment(opCtx, scoped, rule.Window)
	cancel()

	degraded := false
	if err != nil {
		s.notify(ctx, "increment", scoped, err)
		hit = domain.Hit{Total: 1, TTL: rule.Window}
		degraded = true
	}

	ttl := hit.TTL
	if ttl <= 0 {
		ttl = rule.Window
	}
	remaining := rule.Max - hit.Total
	if remaining < 0 {
		remaining = 0
	}

	return domain.Decision{
		Allowed:    hit.Total <= rule.Max,
		Total:      hit.Total,
		Limit:      rule.Max,
		Remaining:  remaining,
		RetryAfter: ttl,
		Degraded:   degraded,
	}
}

// Refund devolve um hit (skipSuccessful/skipFailed). É consultivo: erro só
// vai para o Observer, e chave já expirada é no-op no store.
func (s Service) Refund(ctx context.Context, rule domain.Rule, key domain.Key) {
	if s.Store == nil {
		return
	}
	scoped := rule.Scoped(key)
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.Store.Decrement(opCtx, scoped); err != nil {
		s.notify(ctx, "decrement", scoped, err)
	}
}

// Reset apaga o contador da chave (override administrativo).
func (s Service) Reset(ctx context.Context, rule domain.Rule, key domain.Key) error {
	if s.Store == nil {
		return nil
	}
	scoped := rule.Scoped(key)
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.Store.Reset(opCtx, scoped); err != nil {
		s.notify(ctx, "reset", scoped, err)
		return err
	}
	return nil
}

func (s Service) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.OpTimeout
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (s Service) notify(ctx context.Context, op string, key domain.Key, err error) {
	if s.Observer != nil {
		s.Observer.StoreFailed(ctx, op, key, err)
	}
}
