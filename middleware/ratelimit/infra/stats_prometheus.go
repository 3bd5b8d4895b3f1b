package infra

import (
	"context"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusStats exports admission decisions as Prometheus metrics.
// Keys are never used as labels.
type PrometheusStats struct {
	Decisions *prometheus.CounterVec
	Limiters  prometheus.GaugeFunc
}

// NewPrometheusStats registers the collectors with reg. limiters, when not
// nil, reports the number of cached limiters.
func NewPrometheusStats(reg prometheus.Registerer, limiters func() int) *PrometheusStats {
	s := &PrometheusStats{
		Decisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "admission",
				Name:      "decisions_total",
				Help:      "Admission decisions by policy and result",
			},
			[]string{"policy", "result"}, // result=allowed/denied/failed
		),
	}
	if limiters != nil {
		s.Limiters = promauto.With(reg).NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "admission",
				Name:      "limiters",
				Help:      "Number of cached limiters",
			},
			func() float64 { return float64(limiters()) },
		)
	}
	return s
}

func (s *PrometheusStats) Record(_ context.Context, ev domain.StatsEvent) error {
	s.Decisions.WithLabelValues(ev.Policy, statsField(ev)).Inc()
	return nil
}

// RegisterInFlight exports the slots held in pool as a gauge.
func RegisterInFlight(reg prometheus.Registerer, pool domain.SlotPool) prometheus.GaugeFunc {
	return promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "admission",
			Name:      "inflight_requests",
			Help:      "Requests currently holding a concurrency slot",
		},
		func() float64 { return float64(pool.InUse()) },
	)
}
