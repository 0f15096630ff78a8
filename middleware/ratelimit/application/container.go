package application

import (
	"errors"
	"fmt"
	"sync"

	"admission-gateway/middleware/ratelimit/domain"

	"go.uber.org/atomic"
)

var (
	ErrDuplicateEndpoint = errors.New("endpoint already registered")
	ErrEmptyEndpoint     = errors.New("empty endpoint identifier")
	ErrNilLimiter        = errors.New("nil rate limiter")
)

type containerKey struct {
	namespace string
	endpoint  string
}

type limiterMap map[containerKey]domain.RateLimiter

// Container mapeia (namespace, endpoint) -> RateLimiter.
//
// Escritas acontecem no startup e publicam um novo snapshot (copy-on-write).
// Leituras carregam o snapshot atual sem lock e sem alocação.
type Container struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[limiterMap]
}

func NewContainer() *Container {
	return &Container{}
}

func (c *Container) Add(namespace, endpoint string, rl domain.RateLimiter) error {
	if endpoint == "" {
		return ErrEmptyEndpoint
	}
	if rl == nil {
		return ErrNilLimiter
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	k := containerKey{namespace: namespace, endpoint: endpoint}
	var cur limiterMap
	if p := c.snapshot.Load(); p != nil {
		cur = *p
	}
	if _, exists := cur[k]; exists {
		return fmt.Errorf("%w: %s%s", ErrDuplicateEndpoint, namespace, endpoint)
	}

	next := make(limiterMap, len(cur)+1)
	for key, v := range cur {
		next[key] = v
	}
	next[k] = rl
	c.snapshot.Store(&next)
	return nil
}

// Get não tem efeitos colaterais. ok=false significa endpoint nunca registrado.
func (c *Container) Get(namespace, endpoint string) (domain.RateLimiter, bool) {
	p := c.snapshot.Load()
	if p == nil {
		return nil, false
	}
	rl, ok := (*p)[containerKey{namespace: namespace, endpoint: endpoint}]
	return rl, ok
}

func (c *Container) Len() int {
	p := c.snapshot.Load()
	if p == nil {
		return 0
	}
	return len(*p)
}
