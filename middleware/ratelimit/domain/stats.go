package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão do admission control.
//
// Ele é propositalmente "agnóstico de HTTP": Namespace separa transportes
// (ex.: "http_", "rpc_") e Method/Path são strings genéricas.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Namespace string
	Endpoint  string
	Key       Key
	Allowed   bool
	Reason    string

	Method string
	Path   string

	At time.Time
}

// StatsStore recebe o gancho "admission granted/denied".
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// O gate trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// LatencyRecorder recebe o gancho "request duration", medido entre a
// admissão e a liberação da requisição.
type LatencyRecorder interface {
	ObserveLatency(namespace, endpoint string, d time.Duration)
}
