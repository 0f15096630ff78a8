package application

import (
	"context"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// GlobalGate é o teto de vazão do processo, aplicado a toda requisição antes
// do limiter do endpoint. Não recusa por política: só faz esperar.
//
// Construa uma vez no main e compartilhe a mesma instância.
type GlobalGate struct {
	// Limiters são aplicados em ordem (ex.: por IP, depois global).
	Limiters []domain.RateLimiter
	// AcquireTimeout limita a espera.
	// - Se `AcquireTimeout <= 0`, espera até ctx cancelar.
	// - Se `AcquireTimeout > 0`, espera até o timeout.
	AcquireTimeout time.Duration
}

func NewGlobalGate(timeout time.Duration, limiters ...domain.RateLimiter) *GlobalGate {
	return &GlobalGate{Limiters: limiters, AcquireTimeout: timeout}
}

// Acquire retorna false apenas quando a espera é abortada (ctx/timeout).
func (g *GlobalGate) Acquire(ctx context.Context, rd domain.RuntimeData) bool {
	if g == nil || len(g.Limiters) == 0 {
		return true
	}

	if g.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.AcquireTimeout)
		defer cancel()
	}

	// Tokens já tomados pelos limiters anteriores não são devolvidos quando um
	// posterior aborta: com (por IP, global), a espera abortada no global
	// consome um token do IP do cliente.
	for _, l := range g.Limiters {
		if l == nil {
			continue
		}
		if !l.Acquire(ctx, rd) {
			return false
		}
	}
	return true
}
