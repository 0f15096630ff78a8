package infra

import (
	"context"
	"strings"

	"admission-gateway/middleware/ratelimit/domain"
)

// headerKeyPrefix separa chaves de header de IPs no mesmo BucketStore.
const headerKeyPrefix = "h:"

// Adapters expõem cada estratégia pela superfície uniforme domain.RateLimiter.
// Só PreemptibleAdapter implementa domain.Preemptible.
var (
	_ domain.RateLimiter = (*QpsAdapter)(nil)
	_ domain.RateLimiter = (*IPQpsAdapter)(nil)
	_ domain.RateLimiter = (*HeaderQpsAdapter)(nil)
	_ domain.RateLimiter = (*PreemptibleAdapter)(nil)
	_ domain.Preemptible = (*PreemptibleAdapter)(nil)
	_ domain.Named       = (*QpsAdapter)(nil)
	_ domain.Named       = (*IPQpsAdapter)(nil)
	_ domain.Named       = (*HeaderQpsAdapter)(nil)
	_ domain.Named       = (*PreemptibleAdapter)(nil)
)

type QpsAdapter struct {
	strategy *QpsStrategy
}

func NewQpsAdapter(s *QpsStrategy) *QpsAdapter { return &QpsAdapter{strategy: s} }

func (a *QpsAdapter) Name() string           { return StrategyQps }
func (a *QpsAdapter) Strategy() *QpsStrategy { return a.strategy }

func (a *QpsAdapter) Acquire(ctx context.Context, _ domain.RuntimeData) bool {
	return a.strategy.Acquire(ctx)
}

// IPQpsAdapter usa o IP do cliente como chave do bucket.
type IPQpsAdapter struct {
	strategy *KeyedQpsStrategy
}

func NewIPQpsAdapter(s *KeyedQpsStrategy) *IPQpsAdapter { return &IPQpsAdapter{strategy: s} }

func (a *IPQpsAdapter) Name() string                { return StrategyIPQps }
func (a *IPQpsAdapter) Strategy() *KeyedQpsStrategy { return a.strategy }

func (a *IPQpsAdapter) Acquire(ctx context.Context, rd domain.RuntimeData) bool {
	return a.strategy.Acquire(ctx, rd.ClientIP())
}

// HeaderQpsAdapter usa o valor de um header (ex.: X-Api-Key) como chave do
// bucket. Sem o header, a chave é o IP do cliente.
type HeaderQpsAdapter struct {
	strategy *KeyedQpsStrategy
	header   string
}

func NewHeaderQpsAdapter(s *KeyedQpsStrategy, header string) *HeaderQpsAdapter {
	return &HeaderQpsAdapter{strategy: s, header: header}
}

func (a *HeaderQpsAdapter) Name() string                { return StrategyHeaderQps }
func (a *HeaderQpsAdapter) Header() string              { return a.header }
func (a *HeaderQpsAdapter) Strategy() *KeyedQpsStrategy { return a.strategy }

func (a *HeaderQpsAdapter) Acquire(ctx context.Context, rd domain.RuntimeData) bool {
	return a.strategy.Acquire(ctx, a.key(rd))
}

func (a *HeaderQpsAdapter) key(rd domain.RuntimeData) string {
	if v := strings.TrimSpace(rd.Header(a.header)); v != "" {
		return headerKeyPrefix + v
	}
	return rd.ClientIP()
}

type PreemptibleAdapter struct {
	strategy *PreemptibleStrategy
}

func NewPreemptibleAdapter(s *PreemptibleStrategy) *PreemptibleAdapter {
	return &PreemptibleAdapter{strategy: s}
}

func (a *PreemptibleAdapter) Name() string                   { return StrategyPreemptible }
func (a *PreemptibleAdapter) Strategy() *PreemptibleStrategy { return a.strategy }

func (a *PreemptibleAdapter) Acquire(_ context.Context, _ domain.RuntimeData) bool {
	return a.strategy.TryAcquire()
}

func (a *PreemptibleAdapter) Release() {
	a.strategy.Release()
}
