package infra

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/rusiqe/bespoke-matchmaking-platform/internal/logging"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/domain"
)

// LogObserver implementa domain.StoreObserver: toda falha vira métrica e log.
// Com o breaker aberto as falhas chegam em rajada: sai no máximo um ERROR por
// intervalo e as demais vão em DEBUG; a métrica continua contando tudo.
type LogObserver struct {
	openSampler *rate.Sometimes
}

// NewLogObserver cria o observer. openLogEvery <= 0 usa 10s.
func NewLogObserver(openLogEvery time.Duration) *LogObserver {
	if openLogEvery <= 0 {
		openLogEvery = 10 * time.Second
	}
	return &LogObserver{openSampler: &rate.Sometimes{Interval: openLogEvery}}
}

func (o *LogObserver) StoreFailed(ctx context.Context, op string, key domain.Key, err error) {
	StoreFailuresTotal.WithLabelValues(op).Inc()

	write := func() {
		logging.Ctx(ctx).Error().
			Err(err).
			Str("op", op).
			Str("key", string(key)).
			Msg("rate limit store unavailable, failing open")
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		sampled := false
		o.openSampler.Do(func() {
			sampled = true
			write()
		})
		if !sampled {
			logging.Ctx(ctx).Debug().
				Err(err).
				Str("op", op).
				Str("key", string(key)).
				Msg("rate limit store breaker open, failing open")
		}
		return
	}
	write()
}
