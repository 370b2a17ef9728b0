// Package infra contém implementações concretas para os contratos do pacote domain.
//
//   - RedisCounterStore: contador com janela fixa via scripts Lua, atrás de um
//     circuit breaker (sony/gobreaker)
//   - MemoryCounterStore: mesma semântica em memória, para testes/dev
//   - LogObserver: log + métrica de falhas do store
//   - RedisStatsStore, MemoryStatsStore, PrometheusStats, MultiStats: estatísticas
//   - ChanPool: semáforo para limite de concorrência
package infra
