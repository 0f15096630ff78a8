package infra

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"sort"
	"strings"
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"go.uber.org/zap"
)

var (
	ErrUnknownStrategy = errors.New("unknown rate limiter strategy")
	ErrInvalidParams   = errors.New("invalid rate limiter params")
)

const (
	StrategyQps         = "qps"
	StrategyIPQps       = "ip_qps"
	StrategyHeaderQps   = "header_qps"
	StrategyPreemptible = "preemptible"
)

const (
	paramQps      = "qps"
	paramCapacity = "capacity"
	paramIdle     = "idle"
	paramPermit   = "permit"
	paramHeader   = "header"

	defaultKeyHeader = "X-Api-Key"
)

// aliases aceita os nomes de adapter usados nas configurações legadas.
var aliases = map[string]string{
	"QpsRateLimiterAdapter":    StrategyQps,
	"DefaultBaseQqsAdapter":    StrategyQps,
	"IPQPSRateLimiterAdapter":  StrategyIPQps,
	"GlobalPreemptibleAdapter": StrategyPreemptible,
}

type strategyFactory struct {
	defaults func(r *Registry) map[string]domain.ParamItem
	build    func(r *Registry, ps domain.ParamSet) (domain.RateLimiter, error)
}

// strategies é o conjunto fechado de estratégias configuráveis por nome.
var strategies = map[string]strategyFactory{
	StrategyQps: {
		defaults: func(r *Registry) map[string]domain.ParamItem {
			return map[string]domain.ParamItem{paramQps: domain.FloatParam(r.defaultQPS)}
		},
		build: func(_ *Registry, ps domain.ParamSet) (domain.RateLimiter, error) {
			s, err := NewQpsStrategy(ps.Float(paramQps))
			if err != nil {
				return nil, err
			}
			return NewQpsAdapter(s), nil
		},
	},
	StrategyIPQps: {
		defaults: func(r *Registry) map[string]domain.ParamItem {
			return map[string]domain.ParamItem{
				paramQps:      domain.FloatParam(r.defaultQPS),
				paramCapacity: domain.IntParam(defaultStoreCapacity),
				paramIdle:     domain.DurationParam(defaultIdleTTL),
			}
		},
		build: func(r *Registry, ps domain.ParamSet) (domain.RateLimiter, error) {
			s, err := NewKeyedQpsStrategy(ps.Float(paramQps), ps.Int(paramCapacity), ps.Duration(paramIdle))
			if err != nil {
				return nil, err
			}
			r.track(s.Store())
			return NewIPQpsAdapter(s), nil
		},
	},
	StrategyHeaderQps: {
		defaults: func(r *Registry) map[string]domain.ParamItem {
			return map[string]domain.ParamItem{
				paramQps:      domain.FloatParam(r.defaultQPS),
				paramCapacity: domain.IntParam(defaultStoreCapacity),
				paramIdle:     domain.DurationParam(defaultIdleTTL),
				paramHeader:   domain.StringParam(defaultKeyHeader),
			}
		},
		build: func(r *Registry, ps domain.ParamSet) (domain.RateLimiter, error) {
			s, err := NewKeyedQpsStrategy(ps.Float(paramQps), ps.Int(paramCapacity), ps.Duration(paramIdle))
			if err != nil {
				return nil, err
			}
			header := textproto.CanonicalMIMEHeaderKey(ps.String(paramHeader))
			r.track(s.Store())
			r.trackHeader(header)
			return NewHeaderQpsAdapter(s, header), nil
		},
	},
	StrategyPreemptible: {
		defaults: func(*Registry) map[string]domain.ParamItem {
			return map[string]domain.ParamItem{paramPermit: domain.IntParam(1)}
		},
		build: func(_ *Registry, ps domain.ParamSet) (domain.RateLimiter, error) {
			s, err := NewPreemptibleStrategy(ps.Int(paramPermit))
			if err != nil {
				return nil, err
			}
			return NewPreemptibleAdapter(s), nil
		},
	},
}

// Registry constrói estratégias a partir do nome configurado e implementa
// domain.StrategyResolver.
type Registry struct {
	defaultQPS float64
	logger     *zap.Logger

	mu      sync.Mutex
	stores  []*BucketStore
	headers map[string]struct{}
}

var _ domain.StrategyResolver = (*Registry)(nil)

// NewRegistry cria um registro cujo default de "qps" (e a estratégia de
// fallback) usa defaultQPS.
func NewRegistry(defaultQPS float64, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{defaultQPS: defaultQPS, logger: logger}
}

func (r *Registry) New(name, params string) (domain.RateLimiter, error) {
	name = strings.TrimSpace(name)
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	f, ok := strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownStrategy, name, strings.Join(r.Names(), ", "))
	}

	ps := domain.ParseParams(params, f.defaults(r))
	if bad := ps.Malformed(); len(bad) > 0 {
		r.logger.Warn("ignoring malformed rate limiter params, using defaults",
			zap.String("strategy", name),
			zap.String("params", params),
			zap.Strings("keys", bad),
		)
	}

	rl, err := f.build(r, ps)
	if err != nil {
		return nil, fmt.Errorf("build %s strategy: %w", name, err)
	}
	return rl, nil
}

// Default constrói a estratégia de fallback: qps = defaultQPS.
func (r *Registry) Default() (domain.RateLimiter, error) {
	s, err := NewQpsStrategy(r.defaultQPS)
	if err != nil {
		return nil, fmt.Errorf("build default strategy: %w", err)
	}
	return NewQpsAdapter(s), nil
}

// Global constrói os limiters do gate global, na ordem em que devem ser
// aplicados: por IP (só quando ipQPS > 0) e depois o teto do processo.
func (r *Registry) Global(qps, ipQPS float64, ipCapacity int, ipIdle time.Duration) ([]domain.RateLimiter, error) {
	var limiters []domain.RateLimiter
	if ipQPS > 0 {
		s, err := NewKeyedQpsStrategy(ipQPS, ipCapacity, ipIdle)
		if err != nil {
			return nil, fmt.Errorf("build global per-ip limiter: %w", err)
		}
		r.track(s.Store())
		limiters = append(limiters, NewIPQpsAdapter(s))
	}

	s, err := NewQpsStrategy(qps)
	if err != nil {
		return nil, fmt.Errorf("build global limiter: %w", err)
	}
	return append(limiters, NewQpsAdapter(s)), nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(strategies))
	for k := range strategies {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) track(s *BucketStore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores = append(r.stores, s)
}

func (r *Registry) trackHeader(h string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.headers == nil {
		r.headers = make(map[string]struct{})
	}
	r.headers[h] = struct{}{}
}

// HeaderKeys lista os headers lidos pelas estratégias já construídas; a borda
// de transporte deve copiá-los para o RuntimeData.
func (r *Registry) HeaderKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.headers))
	for h := range r.headers {
		keys = append(keys, h)
	}
	sort.Strings(keys)
	return keys
}

// StartJanitors inicia a limpeza de chaves ociosas de todas as estratégias
// por chave já construídas. Pare cancelando o contexto.
func (r *Registry) StartJanitors(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.stores {
		s.StartJanitor(ctx)
	}
	return len(r.stores)
}
