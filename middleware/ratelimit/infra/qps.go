package infra

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/time/rate"
)

// QpsStrategy é um token bucket de taxa fixa. Acquire nunca recusa por
// política: a pressão aparece como latência, não como rejeição.
type QpsStrategy struct {
	lim *rate.Limiter
	qps float64
}

func NewQpsStrategy(qps float64) (*QpsStrategy, error) {
	if !(qps > 0) || math.IsInf(qps, 0) {
		return nil, fmt.Errorf("%w: qps must be a positive number, got %v", ErrInvalidParams, qps)
	}
	return &QpsStrategy{
		lim: rate.NewLimiter(rate.Limit(qps), burstFor(qps)),
		qps: qps,
	}, nil
}

// burstFor permite acumular até um segundo de permissões.
func burstFor(qps float64) int {
	b := math.Ceil(qps)
	if b < 1 {
		return 1
	}
	if b > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(b)
}

func (s *QpsStrategy) QPS() float64 { return s.qps }
func (s *QpsStrategy) Burst() int   { return s.lim.Burst() }

// Acquire bloqueia até existir token e retorna true.
// Retorna false apenas se ctx encerrar (ou se o deadline de ctx não comportar a espera).
func (s *QpsStrategy) Acquire(ctx context.Context) bool {
	return s.lim.Wait(ctx) == nil
}
