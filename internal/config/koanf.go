package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/infra"
)

// ConfigPathEnvVar aponta para um arquivo YAML explícito.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths são procurados em ordem quando CONFIG_PATH não existe.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/matchmaking/config.yaml",
}

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		Server: ServerConfig{
			Addr:              ":3001",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		},
		Redis: RedisConfig{
			Enabled:            true,
			Addr:               "127.0.0.1:6379",
			KeyPrefix:          infra.DefaultKeyPrefix,
			DialTimeout:        2 * time.Second,
			OpTimeout:          250 * time.Millisecond,
			BreakerFailures:    5,
			BreakerOpenTimeout: 10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Window:          15 * time.Minute,
			Max:             100,
			APIKeyHeader:    "X-Api-Key",
			FailureLogEvery: 10 * time.Second,
			Stats: StatsConfig{
				TTL: 24 * time.Hour,
			},
		},
		Security: SecurityConfig{
			JWTTTL: 7 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Gateway: GatewayConfig{
			Addr:               ":8080",
			ConcurrencyMax:     100,
			ConcurrencyTimeout: 500 * time.Millisecond,
		},
	}
}

// Load monta a configuração: padrões < arquivo < ambiente.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converte listas separadas por vírgula vindas do ambiente.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"node_env":    "env",
	"app_env":     "env",
	"listen_addr": "server.addr",
	"port":        "server.port",
	"cors_origin": "server.cors_origins",

	"redis_enabled":              "redis.enabled",
	"redis_url":                  "redis.url",
	"redis_addr":                 "redis.addr",
	"redis_password":             "redis.password",
	"redis_db":                   "redis.db",
	"redis_key_prefix":           "redis.key_prefix",
	"redis_op_timeout":           "redis.op_timeout",
	"redis_breaker_failures":     "redis.breaker_failures",
	"redis_breaker_open_timeout": "redis.breaker_open_timeout",

	"rate_limit_window":            "rate_limit.window",
	"rate_limit_window_ms":         "rate_limit.window_ms",
	"rate_limit_max":               "rate_limit.max",
	"rate_limit_max_requests":      "rate_limit.max",
	"rate_limit_api_key_header":    "rate_limit.api_key_header",
	"rate_limit_stats_redis":       "rate_limit.stats.redis",
	"rate_limit_stats_memory":      "rate_limit.stats.memory",
	"rate_limit_stats_keys":        "rate_limit.stats.track_keys",
	"rate_limit_stats_ttl":         "rate_limit.stats.ttl",
	"rate_limit_failure_log_every": "rate_limit.failure_log_every",
	"trust_xff":                    "rate_limit.trust_proxy",
	"trust_proxy":                  "rate_limit.trust_proxy",

	"jwt_secret": "security.jwt_secret",
	"jwt_ttl":    "security.jwt_ttl",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"gateway_addr":        "gateway.addr",
	"upstream_url":        "gateway.upstream_url",
	"concurrency_max":     "gateway.concurrency_max",
	"concurrency_timeout": "gateway.concurrency_timeout",
}

// envTransformFunc mapeia nomes de variáveis para caminhos do koanf.
// Variáveis fora da tabela devolvem "" e são ignoradas.
//
//   - REDIS_ADDR -> redis.addr
//   - RATE_LIMIT_WINDOW_MS -> rate_limit.window_ms
//   - PORT -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
