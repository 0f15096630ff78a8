package infra

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"
)

const (
	defaultStoreCapacity = 10000
	defaultIdleTTL       = time.Hour
	defaultCleanupEvery  = 2 * time.Minute
)

// BucketStore mantém um token bucket (x/time/rate) por chave.
//
// O número de chaves é limitado por um LRU (as menos usadas saem primeiro) e
// chaves ociosas por mais de idleTTL são removidas pelo janitor.
type BucketStore struct {
	// mu serializa o Cleanup com os Get: o sweep segura o lock de escrita
	// entre conferir lastSeen e remover a chave.
	mu sync.RWMutex

	cache        *lru.Cache[string, *bucketEntry]
	rps          rate.Limit
	burst        int
	capacity     int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type bucketEntry struct {
	lim      *rate.Limiter
	lastSeen atomic.Int64 // unix nano
}

type StoreOption func(*BucketStore)

func WithCapacity(n int) StoreOption {
	return func(s *BucketStore) { s.capacity = n }
}

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *BucketStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *BucketStore) { s.cleanupEvery = d }
}

func NewBucketStore(rps float64, burst int, opts ...StoreOption) (*BucketStore, error) {
	s := &BucketStore{
		rps:          rate.Limit(rps),
		burst:        burst,
		capacity:     defaultStoreCapacity,
		idleTTL:      defaultIdleTTL,
		cleanupEvery: defaultCleanupEvery,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be > 0, got %d", ErrInvalidParams, s.capacity)
	}

	cache, err := lru.New[string, *bucketEntry](s.capacity)
	if err != nil {
		return nil, err
	}
	s.cache = cache
	return s, nil
}

func (s *BucketStore) RPS() float64                { return float64(s.rps) }
func (s *BucketStore) Burst() int                  { return s.burst }
func (s *BucketStore) Capacity() int               { return s.capacity }
func (s *BucketStore) CleanupEvery() time.Duration { return s.cleanupEvery }
func (s *BucketStore) Len() int                    { return s.cache.Len() }

// Get retorna o bucket da chave, criando-o se ainda não existir.
// Chamadas concorrentes para a mesma chave nova recebem o mesmo bucket.
func (s *BucketStore) Get(key string) *rate.Limiter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now().UnixNano()
	if ent, ok := s.cache.Get(key); ok {
		ent.lastSeen.Store(now)
		return ent.lim
	}

	ent := &bucketEntry{lim: rate.NewLimiter(s.rps, s.burst)}
	ent.lastSeen.Store(now)
	if prev, found, _ := s.cache.PeekOrAdd(key, ent); found {
		prev.lastSeen.Store(now)
		return prev.lim
	}
	return ent.lim
}

// Cleanup remove as chaves sem uso há mais de idleTTL.
func (s *BucketStore) Cleanup() {
	if s.idleTTL <= 0 {
		return
	}
	cutoff := time.Now().Add(-s.idleTTL).UnixNano()

	for _, k := range s.cache.Keys() {
		s.removeIfIdle(k, cutoff)
	}
}

func (s *BucketStore) removeIfIdle(key string, cutoff int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ent, ok := s.cache.Peek(key); ok && ent.lastSeen.Load() < cutoff {
		s.cache.Remove(key)
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *BucketStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
