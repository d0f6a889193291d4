// Package metrics owns the Prometheus registry and the exposition server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the server's instrument set.
type Metrics struct {
	registry *prometheus.Registry

	Requests          *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ProofFailures     *prometheus.CounterVec
	EmbeddingFallback prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kairos_requests_total",
			Help: "Tool invocations by tool and result code.",
		}, []string{"tool", "code"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kairos_request_duration_seconds",
			Help:    "Tool invocation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		ProofFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kairos_proof_failures_total",
			Help: "Failed proof-of-work validations by error code.",
		}, []string{"code"}),
		EmbeddingFallback: factory.NewCounter(prometheus.CounterOpts{
			Name: "kairos_embedding_fallback_total",
			Help: "Writes stored with zero vectors after an embedding failure.",
		}),
	}
}

// Handler serves the exposition format for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
