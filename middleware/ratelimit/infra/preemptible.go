package infra

import (
	"fmt"
	"math"

	"go.uber.org/atomic"
)

// PreemptibleStrategy limita quantas requisições podem estar em andamento ao
// mesmo tempo. TryAcquire nunca bloqueia: sem vaga, recusa na hora.
type PreemptibleStrategy struct {
	capacity int32
	inUse    atomic.Int32
}

func NewPreemptibleStrategy(permit int) (*PreemptibleStrategy, error) {
	if permit <= 0 || permit > math.MaxInt32 {
		return nil, fmt.Errorf("%w: permit must be between 1 and %d, got %d", ErrInvalidParams, math.MaxInt32, permit)
	}
	return &PreemptibleStrategy{capacity: int32(permit)}, nil
}

func (s *PreemptibleStrategy) Capacity() int { return int(s.capacity) }
func (s *PreemptibleStrategy) InUse() int    { return int(s.inUse.Load()) }

// TryAcquire ocupa uma vaga se inUse < capacity.
func (s *PreemptibleStrategy) TryAcquire() bool {
	for {
		cur := s.inUse.Load()
		if cur >= s.capacity {
			return false
		}
		if s.inUse.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Release devolve uma vaga. Retorna false (sem efeito) se não havia vaga ocupada.
func (s *PreemptibleStrategy) Release() bool {
	for {
		cur := s.inUse.Load()
		if cur <= 0 {
			return false
		}
		if s.inUse.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}
