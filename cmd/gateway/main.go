package main

import (
	"context"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/rusiqe/bespoke-matchmaking-platform/internal/config"
	"github.com/rusiqe/bespoke-matchmaking-platform/internal/logging"
	"github.com/rusiqe/bespoke-matchmaking-platform/internal/server"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/apierror"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("config error")
	}
	logging.Init(server.LoggingConfig(cfg.Logging))
	apierror.SetDevelopment(cfg.IsDevelopment())

	if cfg.Gateway.UpstreamURL == "" {
		logging.Fatal().Msg("UPSTREAM_URL is required")
	}
	target, err := url.Parse(cfg.Gateway.UpstreamURL)
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid UPSTREAM_URL")
	}

	var rdb redis.UniversalClient
	if cfg.Redis.Enabled {
		rdb, err = server.NewRedisClient(cfg.Redis)
		if err != nil {
			logging.Fatal().Err(err).Msg("redis config error")
		}
		defer func() { _ = rdb.Close() }()
	} else {
		logging.Warn().Msg("redis disabled: using in-memory counters, not shared between instances")
	}

	rl, err := server.NewRateLimit(cfg, rdb)
	if err != nil {
		logging.Fatal().Err(err).Msg("rate limit config error")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	rl.Start(ctx)

	h := server.NewGateway(server.GatewayDeps{
		Upstream:           target,
		Catalog:            rl.Catalog,
		Limiter:            rl.Service,
		Stats:              rl.Stats,
		Store:              rl.Store,
		ConcurrencyMax:     cfg.Gateway.ConcurrencyMax,
		ConcurrencyTimeout: cfg.Gateway.ConcurrencyTimeout,
	})

	srv := &http.Server{
		Addr:              cfg.Gateway.Addr,
		Handler:           h,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	logging.Info().
		Str("addr", srv.Addr).
		Str("upstream", target.String()).
		Int("concurrency_max", cfg.Gateway.ConcurrencyMax).
		Dur("concurrency_timeout", cfg.Gateway.ConcurrencyTimeout).
		Msg("gateway listening")

	if err := server.Serve(ctx, srv, cfg.Server.ShutdownTimeout); err != nil {
		logging.Fatal().Err(err).Msg("server error")
	}
}
