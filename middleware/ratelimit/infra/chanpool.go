package infra

import (
	"context"
	"sync"

	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/domain"
)

// ChanPool é um semáforo baseado em channel que implementa domain.SlotPool.
type ChanPool struct {
	sem chan struct{}
}

// NewChanPool cria um pool com capacidade max (mínimo 1).
func NewChanPool(max int) *ChanPool {
	if max < 1 {
		max = 1
	}
	return &ChanPool{sem: make(chan struct{}, max)}
}

var _ domain.SlotPool = (*ChanPool)(nil)

func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-p.sem }) }, true
	case <-ctx.Done():
		return nil, false
	}
}

// InFlight devolve quantas vagas estão ocupadas.
func (p *ChanPool) InFlight() int { return len(p.sem) }

// Cap devolve a capacidade do pool.
func (p *ChanPool) Cap() int { return cap(p.sem) }
