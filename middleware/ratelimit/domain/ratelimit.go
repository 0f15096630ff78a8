package domain

// Camada de domínio do admission control.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

type Key string

// RateLimiter é a superfície uniforme exposta por um adapter: decide se a
// requisição descrita por rd pode prosseguir.
//
// Estratégias de taxa podem bloquear até haver token (respeitando ctx);
// estratégias de concorrência respondem na hora.
type RateLimiter interface {
	Acquire(ctx context.Context, rd RuntimeData) bool
}

// StrategyResolver resolve um nome de estratégia configurado para um
// RateLimiter concreto.
type StrategyResolver interface {
	New(name, params string) (RateLimiter, error)
	// Default constrói a estratégia de fallback usada quando a configurada falha.
	Default() (RateLimiter, error)
}

const (
	ReasonEndpointCapacity = "lack of computing resources"
	ReasonGlobalTimeout    = "global rate limit wait aborted"
	ReasonCanceled         = "request canceled while waiting for admission"
)

type Decision struct {
	Allowed bool
	// Reason explica a recusa. Vazio quando Allowed.
	Reason string
	// Strategy é o nome da estratégia do endpoint, quando conhecido.
	Strategy string
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

// Named é implementado por limiters que sabem o nome da própria estratégia.
type Named interface {
	Name() string
}
