package application

import (
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// Permit representa uma admissão concedida. Release pode ser chamado quantas
// vezes for (e num Permit nil): a vaga preemptiva é devolvida uma única vez.
type Permit struct {
	once sync.Once

	namespace string
	endpoint  string
	start     time.Time

	release func()
	latency domain.LatencyRecorder
}

func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		if p.release != nil {
			p.release()
		}
		if p.latency != nil {
			p.latency.ObserveLatency(p.namespace, p.endpoint, time.Since(p.start))
		}
	})
}

// Preemptible indica se Release devolve uma vaga de concorrência.
func (p *Permit) Preemptible() bool {
	return p != nil && p.release != nil
}
