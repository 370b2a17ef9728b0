// Command probe dispara N requisições num ritmo controlado contra a API e
// mostra quantas passaram, quantas tomaram 429 e os últimos headers de
// rate limit. Serve para validar políticas manualmente.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rusiqe/bespoke-matchmaking-platform/internal/logging"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit"
)

func main() {
	cfg := probeConfig{}
	flag.StringVar(&cfg.URL, "url", "http://localhost:3001/api/v1/search", "target URL")
	flag.StringVar(&cfg.Method, "method", http.MethodGet, "HTTP method")
	flag.IntVar(&cfg.Requests, "n", 20, "number of requests")
	flag.Float64Var(&cfg.RPS, "rps", 5, "requests per second (0 = unpaced)")
	flag.IntVar(&cfg.Burst, "burst", 1, "pacing burst")
	flag.StringVar(&cfg.APIKeyHeader, "api-key-header", ratelimit.DefaultAPIKeyHeader, "API key header name")
	flag.StringVar(&cfg.APIKey, "api-key", "", "API key value")
	flag.StringVar(&cfg.Email, "email", "", "send {\"email\": ...} as JSON body")
	flag.StringVar(&cfg.Token, "token", "", "bearer token")
	flag.DurationVar(&cfg.Timeout, "timeout", 5*time.Second, "per-request timeout")
	flag.Parse()

	if cfg.Requests <= 0 {
		logging.Fatal().Int("n", cfg.Requests).Msg("n must be > 0")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logging.Info().
		Str("url", cfg.URL).
		Int("n", cfg.Requests).
		Float64("rps", cfg.RPS).
		Msg("probe started")

	rep, err := newProbe(cfg).run(ctx)
	fmt.Fprint(os.Stdout, rep.String())
	if err != nil {
		logging.Error().Err(err).Msg("probe interrupted")
		os.Exit(1)
	}
}
