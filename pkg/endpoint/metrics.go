package endpoint

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// callsTotal counts dispatched calls by endpoint, verb and outcome.
	callsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaulted_endpoint_calls_total",
			Help: "Total number of endpoint calls",
		},
		[]string{"endpoint", "verb", "status"},
	)

	// callDuration measures time spent in the transport.
	callDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vaulted_endpoint_call_duration_seconds",
			Help:    "Duration of endpoint calls in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "verb"},
	)

	// rejectedTotal counts calls stopped before reaching the transport.
	rejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaulted_endpoint_rejected_total",
			Help: "Total number of calls rejected by validation",
		},
		[]string{"endpoint", "verb", "reason"},
	)
)

// statusLabel renders the outcome of a transport call. Connection failures
// have no status code and are labelled "error".
func statusLabel(code int, err error) string {
	if code == 0 && err != nil {
		return "error"
	}
	return strconv.Itoa(code)
}

func recordCall(endpoint string, verb Verb, code int, err error, elapsed time.Duration) {
	callsTotal.WithLabelValues(endpoint, verb.String(), statusLabel(code, err)).Inc()
	callDuration.WithLabelValues(endpoint, verb.String()).Observe(elapsed.Seconds())
}

func recordRejected(endpoint string, verb Verb, reason string) {
	rejectedTotal.WithLabelValues(endpoint, verb.String(), reason).Inc()
}
