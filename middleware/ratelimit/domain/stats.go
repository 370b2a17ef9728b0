package domain

import (
	"context"
	"time"
)

// StatsEvent representa uma decisão do gate.
//
// Method/Path são strings genéricas, sem acoplamento a net/http.
// Cuidado com cardinalidade ao persistir Key/Path (Redis, Prometheus).
type StatsEvent struct {
	Policy   string
	Key      Key
	Allowed  bool
	Degraded bool

	Method string
	Path   string

	At time.Time
}

// StatsStore persiste estatísticas das decisões.
//
// O middleware trata erro como best-effort (não derruba a request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
