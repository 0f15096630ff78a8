package infra

import (
	"context"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	_ domain.StatsStore      = (*PrometheusMetrics)(nil)
	_ domain.LatencyRecorder = (*PrometheusMetrics)(nil)
)

// PrometheusMetrics exporta os ganchos de decisão e de latência.
type PrometheusMetrics struct {
	decisions *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

func NewPrometheusMetrics(reg prometheus.Registerer, prefix string) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "admission_decisions_total",
				Help: "Number of admission decisions by endpoint and outcome",
			},
			[]string{"namespace", "endpoint", "decision"}),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "admission_request_duration_seconds",
				Help:    "Time between admission and release of a request",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"namespace", "endpoint"}),
	}
	if err := reg.Register(m.decisions); err != nil {
		return nil, err
	}
	if err := reg.Register(m.latency); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PrometheusMetrics) Record(_ context.Context, ev domain.StatsEvent) error {
	decision := "denied"
	if ev.Allowed {
		decision = "allowed"
	}
	m.decisions.WithLabelValues(ev.Namespace, ev.Endpoint, decision).Inc()
	return nil
}

func (m *PrometheusMetrics) ObserveLatency(namespace, endpoint string, d time.Duration) {
	m.latency.WithLabelValues(namespace, endpoint).Observe(d.Seconds())
}
