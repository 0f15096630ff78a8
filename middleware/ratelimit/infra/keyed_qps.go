package infra

import (
	"context"
	"time"
)

const unknownKey = "unknown"

// KeyedQpsStrategy aplica uma taxa fixa independente para cada chave
// (normalmente o IP do cliente). Buckets são criados sob demanda.
type KeyedQpsStrategy struct {
	store *BucketStore
	qps   float64
}

func NewKeyedQpsStrategy(qps float64, capacity int, idle time.Duration) (*KeyedQpsStrategy, error) {
	// valida a taxa com as mesmas regras da estratégia global
	if _, err := NewQpsStrategy(qps); err != nil {
		return nil, err
	}
	store, err := NewBucketStore(qps, burstFor(qps), WithCapacity(capacity), WithIdleTTL(idle))
	if err != nil {
		return nil, err
	}
	return &KeyedQpsStrategy{store: store, qps: qps}, nil
}

func (s *KeyedQpsStrategy) QPS() float64        { return s.qps }
func (s *KeyedQpsStrategy) Store() *BucketStore { return s.store }

// Acquire espera por um token do bucket de key. Chave vazia cai no bucket "unknown".
func (s *KeyedQpsStrategy) Acquire(ctx context.Context, key string) bool {
	if key == "" {
		key = unknownKey
	}
	return s.store.Get(key).Wait(ctx) == nil
}
