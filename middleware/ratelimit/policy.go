package ratelimit

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rusiqe/bespoke-matchmaking-platform/middleware/ratelimit/domain"
)

// DefaultMessage vai no corpo do 429 quando a política não define mensagem.
const DefaultMessage = "Too many requests, please try again later."

var validate = validator.New(validator.WithRequiredStructEnabled())

// PolicyConfig descreve uma política nomeada. É o formato lido da configuração.
type PolicyConfig struct {
	Name           string        `koanf:"name" validate:"required"`
	Window         time.Duration `koanf:"window" validate:"gt=0"`
	Max            int64         `koanf:"max" validate:"gt=0"`
	Message        string        `koanf:"message"`
	SkipSuccessful bool          `koanf:"skip_successful"`
	SkipFailed     bool          `koanf:"skip_failed"`
}

// Policy é imutável depois de criada: uma instância por limitador nomeado,
// montada uma vez na inicialização.
type Policy struct {
	cfg   PolicyConfig
	keyFn KeyFunc
}

// NewPolicy valida a configuração. Erros embrulham domain.ErrInvalidPolicy
// e devem interromper a inicialização. keyFn nil usa o IP do cliente.
func NewPolicy(cfg PolicyConfig, keyFn KeyFunc) (*Policy, error) {
	cfg.Name = strings.TrimSpace(cfg.Name)
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", domain.ErrInvalidPolicy, cfg.Name, err)
	}
	if strings.TrimSpace(cfg.Message) == "" {
		cfg.Message = DefaultMessage
	}
	if keyFn == nil {
		keyFn = KeyByIP(false)
	}
	return &Policy{cfg: cfg, keyFn: keyFn}, nil
}

func (p *Policy) Name() string          { return p.cfg.Name }
func (p *Policy) Window() time.Duration { return p.cfg.Window }
func (p *Policy) Max() int64            { return p.cfg.Max }
func (p *Policy) Message() string       { return p.cfg.Message }
func (p *Policy) SkipSuccessful() bool  { return p.cfg.SkipSuccessful }
func (p *Policy) SkipFailed() bool      { return p.cfg.SkipFailed }

// Config devolve uma cópia da configuração validada.
func (p *Policy) Config() PolicyConfig { return p.cfg }

// Key deriva a chave do contador para a request.
func (p *Policy) Key(r *http.Request) domain.Key {
	k := strings.TrimSpace(p.keyFn(r))
	if k == "" {
		k = "unknown"
	}
	return domain.Key(k)
}

// Rule é a visão da política usada pela camada de aplicação.
func (p *Policy) Rule() domain.Rule {
	return domain.Rule{Name: p.cfg.Name, Window: p.cfg.Window, Max: p.cfg.Max}
}

// refunds informa se a resposta com este status devolve o hit.
func (p *Policy) refunds(status int) bool {
	if status >= http.StatusBadRequest {
		return p.cfg.SkipFailed
	}
	return p.cfg.SkipSuccessful
}
