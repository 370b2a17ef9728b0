// Package server monta o roteador HTTP da API: middlewares globais,
// políticas de rate limit por grupo de rotas, health, métricas e os
// endpoints administrativos de contadores (reset e resumo de decisões).
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/apierror"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/principal"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/application"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/domain"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/infra"
)

// Handlers são os handlers de negócio. Campos nil respondem 501.
type Handlers struct {
	Login         http.Handler
	Register      http.Handler
	PasswordReset http.Handler
	VerifyEmail   http.Handler
	Uploads       http.Handler
	Messages      http.Handler
	Search        http.Handler
	Screening     http.Handler
	Admin         http.Handler
	External      http.Handler
	Account       http.Handler
}

func (h Handlers) withDefaults() Handlers {
	fill := func(cur http.Handler, feature string) http.Handler {
		if cur != nil {
			return cur
		}
		return notImplemented(feature)
	}
	return Handlers{
		Login:         fill(h.Login, "Login"),
		Register:      fill(h.Register, "Registration"),
		PasswordReset: fill(h.PasswordReset, "Password reset"),
		VerifyEmail:   fill(h.VerifyEmail, "Email verification"),
		Uploads:       fill(h.Uploads, "File upload"),
		Messages:      fill(h.Messages, "Messaging"),
		Search:        fill(h.Search, "Search"),
		Screening:     fill(h.Screening, "Screening"),
		Admin:         fill(h.Admin, "Admin"),
		External:      fill(h.External, "External API"),
		Account:       fill(h.Account, "Account"),
	}
}

type Deps struct {
	Catalog *ratelimit.Catalog
	Limiter application.Service
	Stats   domain.StatsStore
	// Auth nil desliga a autenticação (todas as requests ficam anônimas).
	Auth        *principal.Manager
	Store       StoreHealth
	Summary     *infra.MemoryStatsStore
	CORSOrigins []string
	Handlers    Handlers
}

func NewRouter(d Deps) http.Handler {
	h := d.Handlers.withDefaults()

	limit := func(name string) func(http.Handler) http.Handler {
		return ratelimit.Middleware(ratelimit.Options{
			Policy:  d.Catalog.MustPolicy(name),
			Service: &d.Limiter,
			Stats:   d.Stats,
		})
	}

	r := chi.NewRouter()
	r.Use(RequestIDWithLogging())
	r.Use(AccessLog)
	r.Use(apierror.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id", ratelimit.DefaultAPIKeyHeader},
		ExposedHeaders:   []string{"RateLimit-Policy", "RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset", "Retry-After", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(principal.Middleware(d.Auth))

	r.NotFound(apierror.NotFound)
	r.MethodNotAllowed(apierror.MethodNotAllowed)

	r.Get("/health", healthHandler(d.Store))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limit(ratelimit.PolicyGeneral))

		r.Route("/auth", func(r chi.Router) {
			r.With(limit(ratelimit.PolicyAuth)).Post("/login", h.Login.ServeHTTP)
			r.With(limit(ratelimit.PolicyAuth)).Post("/register", h.Register.ServeHTTP)
			r.With(limit(ratelimit.PolicyPasswordReset)).Post("/password-reset", h.PasswordReset.ServeHTTP)
			r.With(limit(ratelimit.PolicyEmailVerification)).Post("/verify-email", h.VerifyEmail.ServeHTTP)
		})

		r.With(limit(ratelimit.PolicyUpload)).Handle("/uploads", h.Uploads)
		r.With(limit(ratelimit.PolicyUpload)).Handle("/uploads/*", h.Uploads)
		r.With(limit(ratelimit.PolicyMessaging)).Handle("/messages", h.Messages)
		r.With(limit(ratelimit.PolicyMessaging)).Handle("/messages/*", h.Messages)
		r.With(limit(ratelimit.PolicySearch)).Handle("/search", h.Search)
		r.With(limit(ratelimit.PolicyScreening)).Handle("/screening", h.Screening)
		r.With(limit(ratelimit.PolicyScreening)).Handle("/screening/*", h.Screening)
		r.With(limit(ratelimit.PolicyAPIKey)).Handle("/external/*", h.External)
		r.With(limit(ratelimit.PolicyStrict)).Handle("/account/*", h.Account)

		r.Route("/admin", func(r chi.Router) {
			r.Use(principal.RequireRole("admin"))
			r.Use(limit(ratelimit.PolicyAdmin))
			r.Get("/rate-limits/stats", statsHandler(d.Summary))
			r.Delete("/rate-limits/{policy}/{key}", resetHandler(d.Catalog, d.Limiter))
			r.Handle("/*", h.Admin)
		})
	})

	return r
}
