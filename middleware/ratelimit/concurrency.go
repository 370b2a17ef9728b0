package ratelimit

import (
	"net/http"
	"time"

	"github.com/rusiqe/bespoke-matchmaking-platform/internal/logging"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/apierror"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/application"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/domain"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// Pool opcional; sem ele usa infra.NewChanPool(Max).
	Pool domain.SlotPool
}

// ConcurrencyMiddleware limita requisições em voo nesta instância.
// Sem vaga dentro de AcquireTimeout responde RejectStatus (503 por padrão).
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 && opts.Pool == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	pool := opts.Pool
	if pool == nil {
		pool = infra.NewChanPool(opts.Max)
	}

	svc := application.ConcurrencyService{
		Pool:           pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			if err != nil {
				// cliente desistiu enquanto esperava: não há para quem responder
				if r.Context().Err() != nil {
					return
				}
				logging.Ctx(r.Context()).Warn().
					Str("url", r.URL.RequestURI()).
					Str("method", r.Method).
					Msg("concurrency limit reached")
				apierror.Write(w, r, apierror.New(opts.RejectStatus, "Server is busy, please try again later."))
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
