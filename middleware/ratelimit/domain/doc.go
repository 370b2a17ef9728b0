// Package domain define contratos e tipos de domínio do rate limit distribuído:
// chave, contador com TTL, regra, decisão, estatísticas e pool de vagas.
//
// Este pacote não depende de net/http nem de implementações concretas
// (Redis, Prometheus), o que permite testes de unidade puros.
package domain
