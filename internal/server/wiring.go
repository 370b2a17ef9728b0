package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rusiqe/bespoke-matchmaking-platform/internal/config"
	"github.com/rusiqe/bespoke-matchmaking-platform/internal/logging"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/application"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/domain"
	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/infra"
)

// LoggingConfig converte a seção logging para o pacote de logging.
func LoggingConfig(cfg config.LoggingConfig) logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = cfg.Level
	lc.Format = cfg.Format
	lc.Caller = cfg.Caller
	return lc
}

// NewRedisClient monta o cliente a partir de URL ou Addr. Não faz ping:
// o Redis fora do ar na subida não impede o servidor de subir (fail-open).
//
// Retries ficam desligados: o script de increment não é idempotente e uma
// resposta perdida reenviada contaria a mesma request duas vezes.
func NewRedisClient(cfg config.RedisConfig) (redis.UniversalClient, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.OpTimeout
	opts.WriteTimeout = cfg.OpTimeout
	opts.MaxRetries = -1
	return redis.NewClient(opts), nil
}

// RateLimit agrupa o que as rotas precisam para aplicar as políticas.
type RateLimit struct {
	Catalog *ratelimit.Catalog
	Service application.Service
	Stats   domain.StatsStore
	Store   StoreHealth
	// Summary é nil quando rate_limit.stats.memory está desligado.
	Summary *infra.MemoryStatsStore

	memory *infra.MemoryCounterStore
}

// NewRateLimit monta store, observer e stats. rdb nil (redis.enabled=false)
// usa o store em memória.
func NewRateLimit(cfg *config.Config, rdb redis.UniversalClient) (*RateLimit, error) {
	catalog, err := ratelimit.NewCatalog(cfg.CatalogOptions())
	if err != nil {
		return nil, err
	}

	rl := &RateLimit{Catalog: catalog}

	var counters domain.CounterStore
	if rdb != nil {
		store := infra.NewRedisCounterStore(rdb,
			infra.WithKeyPrefix(cfg.Redis.KeyPrefix),
			infra.WithBreaker(cfg.Redis.BreakerFailures, cfg.Redis.BreakerOpenTimeout),
		)
		counters, rl.Store = store, store
	} else {
		rl.memory = infra.NewMemoryCounterStore()
		counters, rl.Store = rl.memory, rl.memory
	}

	stats := infra.MultiStats{infra.PrometheusStats{}}
	if cfg.RateLimit.Stats.Redis && rdb != nil {
		stats = append(stats, infra.NewRedisStatsStore(rdb,
			infra.WithStatsPrefix(strings.TrimSuffix(cfg.Redis.KeyPrefix, ":")+":stats"),
			infra.WithStatsTTL(cfg.RateLimit.Stats.TTL),
			infra.WithStatsTrackKeys(cfg.RateLimit.Stats.TrackKeys),
		))
	}
	if cfg.RateLimit.Stats.Memory {
		rl.Summary = infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.RateLimit.Stats.TrackKeys))
		stats = append(stats, rl.Summary)
	}

	rl.Stats = stats
	rl.Service = application.Service{
		Store:     counters,
		Observer:  infra.NewLogObserver(cfg.RateLimit.FailureLogEvery),
		OpTimeout: cfg.Redis.OpTimeout,
	}
	return rl, nil
}

// Start liga as rotinas de fundo (limpeza do store em memória) até ctx acabar.
func (rl *RateLimit) Start(ctx context.Context) {
	if rl.memory != nil {
		rl.memory.StartJanitor(ctx)
	}
}

// Serve roda srv até ctx ser cancelado e então faz shutdown gracioso.
func Serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
