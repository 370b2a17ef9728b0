package domain

import (
	"context"
	"errors"
)

// ErrNoSlot indica que nenhuma vaga ficou livre dentro do prazo de espera.
var ErrNoSlot = errors.New("no concurrency slot available")

// SlotPool limita quantas requisições ficam em voo ao mesmo tempo.
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// Ao adquirir, retorna uma função de release que deve ser chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
