package ratelimit

import (
	"fmt"
	"sort"
	"time"
)

// Nomes das políticas da API.
const (
	PolicyGeneral           = "general"
	PolicyStrict            = "strict"
	PolicyAuth              = "auth"
	PolicyPasswordReset     = "password_reset"
	PolicyEmailVerification = "email_verification"
	PolicyUpload            = "upload"
	PolicyAdmin             = "admin"
	PolicyScreening         = "screening"
	PolicyMessaging         = "messaging"
	PolicySearch            = "search"
	PolicyAPIKey            = "api_key"
)

// DefaultAPIKeyHeader identifica clientes serviço-a-serviço.
const DefaultAPIKeyHeader = "X-Api-Key"

type keyKind int

const (
	keyIP keyKind = iota
	keyPrincipal
	keyEmail
	keyAPIKey
)

type catalogEntry struct {
	cfg PolicyConfig
	key keyKind
}

func defaultEntries(generalWindow time.Duration, generalMax int64) []catalogEntry {
	return []catalogEntry{
		{PolicyConfig{Name: PolicyGeneral, Window: generalWindow, Max: generalMax,
			Message: "Too many requests from this IP, please try again later."}, keyIP},
		{PolicyConfig{Name: PolicyStrict, Window: 15 * time.Minute, Max: 5,
			Message: "Too many attempts for this sensitive action, please try again later."}, keyIP},
		{PolicyConfig{Name: PolicyAuth, Window: 15 * time.Minute, Max: 10, SkipSuccessful: true,
			Message: "Too many login attempts, please try again later."}, keyIP},
		{PolicyConfig{Name: PolicyPasswordReset, Window: time.Hour, Max: 3,
			Message: "Too many password reset attempts, please try again later."}, keyEmail},
		{PolicyConfig{Name: PolicyEmailVerification, Window: 5 * time.Minute, Max: 3,
			Message: "Too many verification emails sent, please try again later."}, keyEmail},
		{PolicyConfig{Name: PolicyUpload, Window: 10 * time.Minute, Max: 20,
			Message: "Too many file uploads, please try again later."}, keyIP},
		{PolicyConfig{Name: PolicyAdmin, Window: time.Minute, Max: 60,
			Message: "Too many admin actions, please slow down."}, keyPrincipal},
		{PolicyConfig{Name: PolicyScreening, Window: time.Hour, Max: 10,
			Message: "Too many screening actions, please try again later."}, keyPrincipal},
		{PolicyConfig{Name: PolicyMessaging, Window: time.Minute, Max: 30,
			Message: "Too many messages sent, please slow down."}, keyPrincipal},
		{PolicyConfig{Name: PolicySearch, Window: time.Minute, Max: 20,
			Message: "Too many search requests, please try again later."}, keyPrincipal},
		{PolicyConfig{Name: PolicyAPIKey, Window: time.Hour, Max: 1000,
			Message: "API rate limit exceeded, please try again later."}, keyAPIKey},
	}
}

// Override troca campos de uma política do catálogo; zero mantém o padrão.
type Override struct {
	Window         time.Duration `koanf:"window"`
	Max            int64         `koanf:"max"`
	Message        string        `koanf:"message"`
	SkipSuccessful *bool         `koanf:"skip_successful"`
	SkipFailed     *bool         `koanf:"skip_failed"`
}

type CatalogOptions struct {
	GeneralWindow time.Duration
	GeneralMax    int64
	TrustProxy    bool
	APIKeyHeader  string
	Overrides     map[string]Override
}

// Catalog guarda as políticas nomeadas, montadas uma vez na inicialização.
type Catalog struct {
	policies map[string]*Policy
}

// NewCatalog monta todas as políticas. Qualquer configuração inválida
// (inclusive override de política desconhecida) devolve erro.
func NewCatalog(opts CatalogOptions) (*Catalog, error) {
	if opts.APIKeyHeader == "" {
		opts.APIKeyHeader = DefaultAPIKeyHeader
	}

	ip := KeyByIP(opts.TrustProxy)
	keyFns := map[keyKind]KeyFunc{
		keyIP:        ip,
		keyPrincipal: KeyByPrincipal(ip),
		keyEmail:     KeyByBodyField("email", ip),
		keyAPIKey:    KeyByHeader(opts.APIKeyHeader, ip),
	}

	entries := defaultEntries(opts.GeneralWindow, opts.GeneralMax)
	known := make(map[string]bool, len(entries))
	for _, e := range entries {
		known[e.cfg.Name] = true
	}
	for name := range opts.Overrides {
		if !known[name] {
			return nil, fmt.Errorf("unknown rate limit policy %q in overrides", name)
		}
	}

	c := &Catalog{policies: make(map[string]*Policy, len(entries))}
	for _, e := range entries {
		cfg := e.cfg
		if o, ok := opts.Overrides[cfg.Name]; ok {
			cfg = o.apply(cfg)
		}
		p, err := NewPolicy(cfg, keyFns[e.key])
		if err != nil {
			return nil, err
		}
		c.policies[cfg.Name] = p
	}
	return c, nil
}

func (o Override) apply(cfg PolicyConfig) PolicyConfig {
	if o.Window != 0 {
		cfg.Window = o.Window
	}
	if o.Max != 0 {
		cfg.Max = o.Max
	}
	if o.Message != "" {
		cfg.Message = o.Message
	}
	if o.SkipSuccessful != nil {
		cfg.SkipSuccessful = *o.SkipSuccessful
	}
	if o.SkipFailed != nil {
		cfg.SkipFailed = *o.SkipFailed
	}
	return cfg
}

func (c *Catalog) Policy(name string) (*Policy, bool) {
	p, ok := c.policies[name]
	return p, ok
}

// MustPolicy é para a montagem de rotas, onde o nome é uma constante.
func (c *Catalog) MustPolicy(name string) *Policy {
	p, ok := c.policies[name]
	if !ok {
		panic("ratelimit: unknown policy " + name)
	}
	return p
}

// Names devolve os nomes em ordem alfabética.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.policies))
	for name := range c.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
