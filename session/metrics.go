package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts warm-ups and signed attempts of one or more sessions
type Metrics struct {
	Warmups  *prometheus.CounterVec
	Attempts *prometheus.CounterVec
	Skew     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Warmups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hawkcall",
			Name:      "warmups_total",
			Help:      "Warm-up requests by outcome.",
		}, []string{"outcome"}),
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hawkcall",
			Name:      "signed_attempts_total",
			Help:      "Signed requests by outcome.",
		}, []string{"outcome"}),
		Skew: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hawkcall",
			Name:      "clock_skew_seconds",
			Help:      "Server time minus local time at the last warm-up.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.Warmups, m.Attempts, m.Skew} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) warmup(outcome string) {
	if m != nil {
		m.Warmups.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) attempt(outcome string) {
	if m != nil {
		m.Attempts.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) skew(seconds float64) {
	if m != nil {
		m.Skew.Set(seconds)
	}
}
