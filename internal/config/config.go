// Package config carrega a configuração em camadas com koanf:
// padrões do struct, arquivo YAML opcional e variáveis de ambiente
// (maior prioridade). Configuração inválida é fatal na inicialização.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit"
)

type Config struct {
	Env       string          `koanf:"env" validate:"oneof=development production test"`
	Server    ServerConfig    `koanf:"server"`
	Redis     RedisConfig     `koanf:"redis"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
	Gateway   GatewayConfig   `koanf:"gateway"`
}

type ServerConfig struct {
	Addr string `koanf:"addr" validate:"required"`
	// Port (PORT) substitui a porta de Addr quando > 0.
	Port              int           `koanf:"port" validate:"gte=0,lte=65535"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"gt=0"`
	ReadTimeout       time.Duration `koanf:"read_timeout" validate:"gte=0"`
	WriteTimeout      time.Duration `koanf:"write_timeout" validate:"gte=0"`
	IdleTimeout       time.Duration `koanf:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

type RedisConfig struct {
	// Enabled=false usa contadores em memória (desenvolvimento, uma instância só).
	Enabled bool `koanf:"enabled"`
	// URL (redis://...) tem precedência sobre Addr/Password/DB.
	URL                string        `koanf:"url" validate:"omitempty,url"`
	Addr               string        `koanf:"addr" validate:"required_without=URL"`
	Password           string        `koanf:"password"`
	DB                 int           `koanf:"db" validate:"gte=0"`
	KeyPrefix          string        `koanf:"key_prefix" validate:"required"`
	DialTimeout        time.Duration `koanf:"dial_timeout" validate:"gt=0"`
	OpTimeout          time.Duration `koanf:"op_timeout" validate:"gt=0"`
	BreakerFailures    uint32        `koanf:"breaker_failures" validate:"gte=1"`
	BreakerOpenTimeout time.Duration `koanf:"breaker_open_timeout" validate:"gt=0"`
}

type RateLimitConfig struct {
	Window time.Duration `koanf:"window" validate:"gt=0"`
	// WindowMS aceita a janela em milissegundos (RATE_LIMIT_WINDOW_MS);
	// quando > 0 substitui Window.
	WindowMS     int64                         `koanf:"window_ms" validate:"gte=0"`
	Max          int64                         `koanf:"max" validate:"gt=0"`
	TrustProxy   bool                          `koanf:"trust_proxy"`
	APIKeyHeader string                        `koanf:"api_key_header" validate:"required"`
	Policies     map[string]ratelimit.Override `koanf:"policies"`
	Stats        StatsConfig                   `koanf:"stats"`
	// FailureLogEvery é o intervalo mínimo entre logs de falha do store
	// enquanto o circuit breaker está aberto.
	FailureLogEvery time.Duration `koanf:"failure_log_every" validate:"gt=0"`
}

type StatsConfig struct {
	Redis bool `koanf:"redis"`
	// Memory mantém um resumo em processo, exposto no endpoint admin de stats.
	Memory    bool          `koanf:"memory"`
	TrackKeys bool          `koanf:"track_keys"`
	TTL       time.Duration `koanf:"ttl" validate:"gte=0"`
}

type SecurityConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	JWTTTL    time.Duration `koanf:"jwt_ttl" validate:"gte=0"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

type GatewayConfig struct {
	Addr               string        `koanf:"addr" validate:"required"`
	UpstreamURL        string        `koanf:"upstream_url" validate:"omitempty,url"`
	ConcurrencyMax     int           `koanf:"concurrency_max" validate:"gte=0"`
	ConcurrencyTimeout time.Duration `koanf:"concurrency_timeout" validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checa as regras de cada campo e as políticas de rate limit.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	if _, err := ratelimit.NewCatalog(c.CatalogOptions()); err != nil {
		return err
	}
	return nil
}

// EffectiveWindow resolve Window/WindowMS.
func (c RateLimitConfig) EffectiveWindow() time.Duration {
	if c.WindowMS > 0 {
		return time.Duration(c.WindowMS) * time.Millisecond
	}
	return c.Window
}

// CatalogOptions converte a configuração para o catálogo de políticas.
func (c *Config) CatalogOptions() ratelimit.CatalogOptions {
	return ratelimit.CatalogOptions{
		GeneralWindow: c.RateLimit.EffectiveWindow(),
		GeneralMax:    c.RateLimit.Max,
		TrustProxy:    c.RateLimit.TrustProxy,
		APIKeyHeader:  c.RateLimit.APIKeyHeader,
		Overrides:     c.RateLimit.Policies,
	}
}

// ListenAddr resolve Addr/Port.
func (c ServerConfig) ListenAddr() string {
	if c.Port > 0 {
		return fmt.Sprintf(":%d", c.Port)
	}
	return c.Addr
}

func (c *Config) IsDevelopment() bool { return c.Env == "development" }

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
