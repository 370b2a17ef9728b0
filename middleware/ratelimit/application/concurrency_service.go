package application

import (
	"context"
	"time"

	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/domain"
)

// ConcurrencyService controla a aquisição de vagas com prazo de espera,
// sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
//
// Com AcquireTimeout <= 0 espera até ctx encerrar. O erro distingue os dois
// casos de falha: ctx.Err() quando o chamador desistiu, domain.ErrNoSlot
// quando o prazo de espera venceu com o pool cheio.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(acqCtx)
	if ok {
		return release, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, domain.ErrNoSlot
}
