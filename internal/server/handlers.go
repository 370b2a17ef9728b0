package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/rusiqe/bespoke-matchmaking-platform/internal/logging"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/apierror"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/principal"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/application"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/domain"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/infra"
)

// StoreHealth é o que o health check consulta no store de contadores.
type StoreHealth interface {
	Ping(ctx context.Context) error
	State() string
}

type HealthResponse struct {
	Status         string `json:"status"`
	Timestamp      string `json:"timestamp"`
	Message        string `json:"message"`
	StoreReachable bool   `json:"storeReachable"`
	StoreState     string `json:"storeState,omitempty"`
}

func checkHealth(ctx context.Context, store StoreHealth) HealthResponse {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(apierror.TimestampFormat),
		Message:   "Matchmaking platform server is running",
	}
	if store == nil {
		return resp
	}
	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	resp.StoreReachable = store.Ping(pingCtx) == nil
	cancel()
	resp.StoreState = store.State()
	if !resp.StoreReachable {
		resp.Status = "degraded"
	}
	return resp
}

// healthHandler responde 200 mesmo com o Redis fora: o rate limit degrada
// para fail-open, então a API continua servindo.
func healthHandler(store StoreHealth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, checkHealth(r.Context(), store))
	}
}

type StatsResponse struct {
	Total    infra.Counters            `json:"total"`
	Policies map[string]infra.Counters `json:"policies"`
	Routes   map[string]infra.Counters `json:"routes"`
	Keys     map[string]infra.Counters `json:"keys,omitempty"`
}

// statsHandler expõe o resumo em processo das decisões desta instância.
func statsHandler(summary *infra.MemoryStatsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if summary == nil {
			apierror.Write(w, r, apierror.NotImplemented("Rate limit statistics are disabled"))
			return
		}
		writeJSON(w, http.StatusOK, StatsResponse{
			Total:    summary.Total(),
			Policies: summary.ByPolicy(),
			Routes:   summary.ByRoute(),
			Keys:     summary.ByKey(),
		})
	}
}

type ResetResponse struct {
	Policy string `json:"policy"`
	Key    string `json:"key"`
	Reset  bool   `json:"reset"`
}

// resetHandler apaga o contador de uma chave numa política (override administrativo).
func resetHandler(catalog *ratelimit.Catalog, svc application.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "policy")
		key := chi.URLParam(r, "key")

		policy, ok := catalog.Policy(name)
		if !ok {
			apierror.Write(w, r, apierror.NotFoundError("Rate limit policy "+name+" not found"))
			return
		}
		if key == "" {
			apierror.Write(w, r, apierror.Validation("Validation failed", map[string]string{"key": "required"}))
			return
		}

		if err := svc.Reset(r.Context(), policy.Rule(), domain.Key(key)); err != nil {
			apierror.Write(w, r, &apierror.AppError{
				Status:  http.StatusServiceUnavailable,
				Message: "Rate limit store unavailable",
				Err:     err,
			})
			return
		}

		logging.Ctx(r.Context()).Info().
			Str("policy", name).
			Str("key", key).
			Str("admin", principal.ID(r.Context())).
			Msg("rate limit counter reset")

		writeJSON(w, http.StatusOK, ResetResponse{Policy: name, Key: key, Reset: true})
	}
}

// notImplemented ocupa rotas cujo handler de negócio não foi injetado.
func notImplemented(feature string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apierror.Write(w, r, apierror.NotImplemented(feature+" is not available on this server"))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
