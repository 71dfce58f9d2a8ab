package server

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sudorandom/latency-map/pkg/derive"
)

// Metrics bundles the Prometheus collectors of one server.
type Metrics struct {
	Polls          *prometheus.CounterVec
	ProxyRequests  *prometheus.CounterVec
	ProxyDurations prometheus.Histogram
	Features       *prometheus.GaugeVec
	Sessions       prometheus.Gauge
	LiveAverage    prometheus.Gauge
}

// NewMetrics registers the server's metrics against reg. Collectors that are
// already registered are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "latency_polls_total",
			Help: "Live latency polls, labeled by result.",
		}, []string{"result"}),
		ProxyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "latency_proxy_requests_total",
			Help: "Upstream latency requests, labeled by outcome.",
		}, []string{"outcome"}),
		ProxyDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "latency_proxy_duration_seconds",
			Help:    "Upstream latency request duration in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		}),
		Features: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "latency_line_features",
			Help: "Latency line features in the most recent derivation, labeled by bucket.",
		}, []string{"bucket"}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "map_sessions_active",
			Help: "Open map sessions.",
		}),
		LiveAverage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "latency_live_average_ms",
			Help: "Exponentially weighted average of the live latency values.",
		}),
	}

	var err error
	if m.Polls, err = register(reg, m.Polls); err != nil {
		return nil, err
	}
	if m.ProxyRequests, err = register(reg, m.ProxyRequests); err != nil {
		return nil, err
	}
	if m.ProxyDurations, err = register(reg, m.ProxyDurations); err != nil {
		return nil, err
	}
	if m.Features, err = register(reg, m.Features); err != nil {
		return nil, err
	}
	if m.Sessions, err = register(reg, m.Sessions); err != nil {
		return nil, err
	}
	if m.LiveAverage, err = register(reg, m.LiveAverage); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) observeBuckets(b derive.Buckets) {
	for _, bucket := range derive.AllBuckets {
		m.Features.WithLabelValues(string(bucket)).Set(float64(len(b.For(bucket).Features)))
	}
}
