package application

import (
	"context"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

const defaultRetryAfter = 1 * time.Second

// Gate concentra a regra de admissão em dois estágios (global + endpoint),
// sem saber nada sobre HTTP (headers/status).
type Gate struct {
	Global    *GlobalGate
	Container *Container

	// Stats recebe cada decisão (best-effort). Latency recebe a duração de
	// cada requisição admitida. Ambos opcionais.
	Stats   domain.StatsStore
	Latency domain.LatencyRecorder

	RetryAfter time.Duration
	Logger     *zap.Logger
}

// Admit decide se a requisição pode prosseguir.
//
// Quando admitida, devolve um Permit não-nil que deve ser liberado ao fim da
// requisição (use defer). Quando recusada, o Permit é nil.
func (g *Gate) Admit(ctx context.Context, namespace, endpoint string, rd domain.RuntimeData) (*Permit, domain.Decision) {
	if !g.Global.Acquire(ctx, rd) {
		dec := g.reject(rejectReason(ctx, domain.ReasonGlobalTimeout), "")
		g.record(ctx, namespace, endpoint, rd, dec)
		return nil, dec
	}

	var rl domain.RateLimiter
	if g.Container != nil {
		rl, _ = g.Container.Get(namespace, endpoint)
	}

	var strategy string
	if n, ok := rl.(domain.Named); ok {
		strategy = n.Name()
	}

	if rl != nil && !rl.Acquire(ctx, rd) {
		dec := g.reject(rejectReason(ctx, domain.ReasonEndpointCapacity), strategy)
		g.record(ctx, namespace, endpoint, rd, dec)
		return nil, dec
	}

	dec := domain.Decision{Allowed: true, Strategy: strategy}
	g.record(ctx, namespace, endpoint, rd, dec)

	p := &Permit{
		namespace: namespace,
		endpoint:  endpoint,
		start:     time.Now(),
		latency:   g.Latency,
	}
	if pr, ok := rl.(domain.Preemptible); ok {
		p.release = pr.Release
	}
	return p, dec
}

// Do executa fn apenas se a requisição for admitida, liberando o Permit em
// qualquer saída de fn (retorno normal, erro ou panic).
func (g *Gate) Do(ctx context.Context, namespace, endpoint string, rd domain.RuntimeData, fn func(context.Context) error) (domain.Decision, error) {
	p, dec := g.Admit(ctx, namespace, endpoint, rd)
	if !dec.Allowed {
		return dec, nil
	}
	defer p.Release()
	return dec, fn(ctx)
}

// rejectReason distingue o cliente que desistiu (ctx encerrado) da recusa por política.
func rejectReason(ctx context.Context, reason string) string {
	if ctx.Err() != nil {
		return domain.ReasonCanceled
	}
	return reason
}

func (g *Gate) reject(reason, strategy string) domain.Decision {
	retry := g.RetryAfter
	if retry <= 0 {
		retry = defaultRetryAfter
	}
	return domain.Decision{Allowed: false, Reason: reason, Strategy: strategy, RetryAfter: retry}
}

func (g *Gate) record(ctx context.Context, namespace, endpoint string, rd domain.RuntimeData, dec domain.Decision) {
	if g.Stats == nil {
		return
	}
	err := g.Stats.Record(ctx, domain.StatsEvent{
		Namespace: namespace,
		Endpoint:  endpoint,
		Key:       domain.Key(rd.ClientIP()),
		Allowed:   dec.Allowed,
		Reason:    dec.Reason,
		Method:    rd.Method(),
		Path:      rd.Path(),
		At:        time.Now(),
	})
	if err != nil && g.Logger != nil {
		g.Logger.Debug("failed to record admission stats",
			zap.String("namespace", namespace),
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
	}
}
