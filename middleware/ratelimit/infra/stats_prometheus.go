package infra

import (
	"context"

	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/domain"
)

// PrometheusStats publica cada decisão em ratelimit_decisions_total.
// Não usa a chave como label (cardinalidade).
type PrometheusStats struct{}

func (PrometheusStats) Record(_ context.Context, ev domain.StatsEvent) error {
	DecisionsTotal.WithLabelValues(ev.Policy, Outcome(ev)).Inc()
	return nil
}

// Outcome classifica a decisão: degraded tem prioridade sobre allowed.
func Outcome(ev domain.StatsEvent) string {
	switch {
	case ev.Degraded:
		return "degraded"
	case ev.Allowed:
		return "allowed"
	default:
		return "denied"
	}
}

// MultiStats repassa o evento para vários stores. Continua mesmo se um falhar
// e devolve o primeiro erro.
type MultiStats []domain.StatsStore

func (m MultiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
