// Package ratelimit é o adapter HTTP (net/http) do rate limit distribuído e do
// limite de concorrência.
//
// Camadas:
//
//   - domain: contratos e tipos (sem net/http)
//   - application: decisão allow/deny com fail-open, reembolso e reset
//   - infra: Redis (Lua + circuit breaker), memória, estatísticas, semáforo
//   - ratelimit (este pacote): políticas, extração de chave, middlewares e
//     tradução para status/headers/corpo JSON
//
// Fluxo do gate:
//
//  1. Deriva a chave da request (IP, usuário, e-mail do corpo, API key)
//  2. Incrementa o contador compartilhado da política
//  3. hits > max: responde 429 com Retry-After e envelope JSON, loga em WARN
//  4. Senão segue para o handler e, se a política pedir, devolve o hit
//     conforme o status final
//
// Store indisponível nunca derruba a request: a decisão cai em fail-open.
package ratelimit
