package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ipintel_queries_total",
		Help: "Total number of single IP queries executed",
	})
	QueryErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipintel_query_errors_total",
		Help: "Total number of failed IP queries by reason",
	}, []string{"reason"})
	BatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ipintel_batches_total",
		Help: "Total number of batch queries by mode",
	}, []string{"mode"})
	BatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ipintel_batch_size",
		Help:    "Number of IPs per batch query",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200},
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ipintel_queries_in_flight",
		Help: "Single IP queries currently executing",
	})
	UpstreamDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ipintel_upstream_duration_ms",
		Help:    "Upstream call duration in milliseconds",
		Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 20000},
	})
)

func init() {
	prometheus.MustRegister(
		QueriesTotal,
		QueryErrorsTotal,
		BatchesTotal,
		BatchSize,
		InFlight,
		UpstreamDurationMs,
	)
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
