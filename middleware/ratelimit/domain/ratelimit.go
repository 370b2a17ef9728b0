package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"errors"
	"time"
)

// Key identifica o balde limitado (IP, id do usuário, e-mail, API key).
type Key string

var (
	// ErrStoreUnavailable indica falha transitória do store de contadores.
	// Nunca chega ao cliente: a decisão cai em fail-open.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")

	// ErrInvalidPolicy indica configuração inválida de política.
	// É fatal na inicialização.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
)

// Hit é o resultado de um incremento: total de hits na janela atual e
// quanto falta para o contador expirar.
type Hit struct {
	Total int64
	TTL   time.Duration
}

// CounterStore é o contador compartilhado (externo) com TTL.
//
// Contrato:
//   - Increment incrementa de forma atômica; a expiração é definida só quando
//     o contador nasce (a janela não desliza a cada hit).
//   - Decrement é best-effort e nunca deixa o contador abaixo de zero;
//     chave inexistente é no-op.
//   - Reset apaga o contador.
//
// Falhas devem ser embrulhadas com ErrStoreUnavailable.
type CounterStore interface {
	Increment(ctx context.Context, key Key, window time.Duration) (Hit, error)
	Decrement(ctx context.Context, key Key) error
	Reset(ctx context.Context, key Key) error
}

// StoreObserver recebe eventos de falha do store (log, métricas).
type StoreObserver interface {
	StoreFailed(ctx context.Context, op string, key Key, err error)
}

// Rule é a parte da política que a camada de aplicação precisa:
// nome (namespace do contador), janela e máximo de hits.
type Rule struct {
	Name   string
	Window time.Duration
	Max    int64
}

// Scoped prefixa a chave com o nome da regra, para que políticas diferentes
// nunca compartilhem o mesmo contador.
func (r Rule) Scoped(key Key) Key {
	if r.Name == "" {
		return key
	}
	return Key(r.Name + ":" + string(key))
}

type Decision struct {
	Allowed bool
	// Total de hits observados na janela (inclui o atual).
	Total     int64
	Limit     int64
	Remaining int64
	// RetryAfter é o tempo até a janela reiniciar; usado em Retry-After e
	// no corpo da rejeição.
	RetryAfter time.Duration
	// Degraded marca decisão tomada em fail-open (store indisponível).
	Degraded bool
}
