package server

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rusiqe/bespoke-matchmaking-platform/internal/logging"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/apierror"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/application"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/domain"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/infra"
)

type GatewayDeps struct {
	Upstream *url.URL
	Catalog  *ratelimit.Catalog
	Limiter  application.Service
	Stats    domain.StatsStore
	Store    StoreHealth

	ConcurrencyMax     int
	ConcurrencyTimeout time.Duration
}

// NewGateway monta o proxy reverso de borda: concorrência por instância,
// depois as políticas general e api_key, depois o upstream.
func NewGateway(d GatewayDeps) http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(d.Upstream)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logging.Ctx(r.Context()).Error().Err(err).Str("upstream", d.Upstream.String()).Msg("proxy error")
		apierror.Write(w, r, apierror.New(http.StatusBadGateway, "Bad gateway"))
	}

	var pool *infra.ChanPool
	if d.ConcurrencyMax > 0 {
		pool = infra.NewChanPool(d.ConcurrencyMax)
	}

	r := chi.NewRouter()
	r.Use(RequestIDWithLogging())
	r.Use(AccessLog)
	r.Use(apierror.Recoverer)

	r.Get("/gateway/health", gatewayHealthHandler(d.Store, pool))
	r.Handle("/gateway/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if pool != nil {
			r.Use(ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
				Pool:           pool,
				RejectStatus:   http.StatusServiceUnavailable,
				AcquireTimeout: d.ConcurrencyTimeout,
			}))
		}
		for _, name := range []string{ratelimit.PolicyGeneral, ratelimit.PolicyAPIKey} {
			r.Use(ratelimit.Middleware(ratelimit.Options{
				Policy:  d.Catalog.MustPolicy(name),
				Service: &d.Limiter,
				Stats:   d.Stats,
			}))
		}
		r.Handle("/*", proxy)
	})

	return r
}

type GatewayHealthResponse struct {
	HealthResponse
	InFlight int `json:"inFlight"`
	Capacity int `json:"capacity"`
}

func gatewayHealthHandler(store StoreHealth, pool *infra.ChanPool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := GatewayHealthResponse{HealthResponse: checkHealth(r.Context(), store)}
		if pool != nil {
			resp.InFlight = pool.InFlight()
			resp.Capacity = pool.Cap()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
