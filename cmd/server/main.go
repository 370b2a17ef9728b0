package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/rusiqe/bespoke-matchmaking-platform/internal/config"
	"github.com/rusiqe/bespoke-matchmaking-platform/internal/logging"
	"github.com/rusiqe/bespoke-matchmaking-platform/internal/server"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/apierror"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/principal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("config error")
	}
	logging.Init(server.LoggingConfig(cfg.Logging))
	apierror.SetDevelopment(cfg.IsDevelopment())

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

	var auth *principal.Manager
	if cfg.Security.JWTSecret != "" {
		auth, err = principal.NewManager(cfg.Security.JWTSecret, cfg.Security.JWTTTL)
		if err != nil {
			logging.Fatal().Err(err).Msg("auth config error")
		}
	} else {
		logging.Warn().Msg("JWT_SECRET not set: all requests are treated as anonymous")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	rl.Start(ctx)

	if err := rl.Store.Ping(ctx); err != nil {
		logging.Warn().Err(err).Msg("redis unreachable at startup, rate limiting will fail open")
	}

	h := server.NewRouter(server.Deps{
		Catalog:     rl.Catalog,
		Limiter:     rl.Service,
		Stats:       rl.Stats,
		Auth:        auth,
		Store:       rl.Store,
		Summary:     rl.Summary,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr(),
		Handler:           h,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	logging.Info().
		Str("addr", srv.Addr).
		Str("env", cfg.Env).
		Dur("window", cfg.RateLimit.EffectiveWindow()).
		Int64("max", cfg.RateLimit.Max).
		Strs("policies", rl.Catalog.Names()).
		Bool("redis", cfg.Redis.Enabled).
		Bool("stats_redis", cfg.RateLimit.Stats.Redis).
		Bool("stats_memory", cfg.RateLimit.Stats.Memory).
		Msg("server listening")

	if err := server.Serve(ctx, srv, cfg.Server.ShutdownTimeout); err != nil {
		logging.Fatal().Err(err).Msg("server error")
	}
}
