package ratelimit

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/rusiqe/bespoke-matchmaking-platform/internal/logging"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/apierror"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/principal"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/application"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/domain"
)

type Options struct {
	Policy *Policy

	// Service tem precedência; sem ele, um Service é montado com
	// Store/Observer/OpTimeout.
	Service   *application.Service
	Store     domain.CounterStore
	Observer  domain.StoreObserver
	OpTimeout time.Duration

	Stats domain.StatsStore
	Now   func() time.Time
}

// Middleware é o gate de rate limit de uma política.
//
// Toda resposta leva RateLimit-Policy, RateLimit-Limit, RateLimit-Remaining e
// RateLimit-Reset; o 429 leva também Retry-After e o envelope JSON de erro.
// Com skipSuccessful/skipFailed o hit é devolvido depois que o handler
// responde, conforme o status final.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Policy == nil {
		panic("ratelimit: Options.Policy is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	svc := application.Service{
		Store:     opts.Store,
		Observer:  opts.Observer,
		OpTimeout: opts.OpTimeout,
	}
	if opts.Service != nil {
		svc = *opts.Service
	}

	policy := opts.Policy
	rule := policy.Rule()
	policyValue := policyHeader(policy.Max(), policy.Window())
	tracksStatus := policy.SkipSuccessful() || policy.SkipFailed()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := policy.Key(r)
			dec := svc.Decide(r.Context(), rule, key)

			if opts.Stats != nil {
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Policy:   policy.Name(),
					Key:      key,
					Allowed:  dec.Allowed,
					Degraded: dec.Degraded,
					Method:   r.Method,
					Path:     r.URL.Path,
					At:       opts.Now(),
				})
			}

			resetSeconds := ceilSeconds(dec.RetryAfter)
			h := w.Header()
			h.Set("RateLimit-Policy", policyValue)
			h.Set("RateLimit-Limit", formatInt(dec.Limit))
			h.Set("RateLimit-Remaining", formatInt(dec.Remaining))
			h.Set("RateLimit-Reset", formatInt(resetSeconds))

			if !dec.Allowed {
				h.Set("Retry-After", formatInt(resetSeconds))
				logging.Ctx(r.Context()).Warn().
					Str("policy", policy.Name()).
					Str("key", string(key)).
					Int64("hits", dec.Total).
					Str("url", r.URL.RequestURI()).
					Str("method", r.Method).
					Str("ip", r.RemoteAddr).
					Str("user_agent", r.UserAgent()).
					Str("principal", principal.ID(r.Context())).
					Msg("rate limit exceeded")

				appErr := apierror.TooManyRequests(policy.Message(), resetSeconds)
				apierror.WriteBody(w, http.StatusTooManyRequests, apierror.NewBody(appErr, opts.Now()))
				return
			}

			// decisão degradada não contou nada, então não há o que devolver
			if !tracksStatus || dec.Degraded {
				next.ServeHTTP(w, r)
				return
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if policy.refunds(status) {
				svc.Refund(r.Context(), rule, key)
			}
		})
	}
}
