// Package domain define contratos e tipos de domínio do admission control.
//
// Este pacote não depende de net/http, gRPC nem de implementações concretas.
// Aqui vivem o snapshot da requisição (RuntimeData), o contrato dos limiters
// (RateLimiter / Preemptible), o parse de parâmetros das estratégias (ParamSet)
// e os ganchos de observabilidade (StatsStore / LatencyRecorder).
package domain
