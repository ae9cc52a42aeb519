// Package metrics records tool-call and simulation metrics with Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the montewalk collectors.
type Recorder struct {
	toolCalls      *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
	simulatedPaths prometheus.Counter
	providerErrors *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in servers and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		toolCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "montewalk_tool_calls_total",
				Help: "Tool invocations by tool and outcome (ok or the error kind).",
			},
			[]string{"tool", "outcome"},
		),
		toolDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "montewalk_tool_duration_seconds",
				Help:    "Tool execution time in seconds.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"tool"},
		),
		simulatedPaths: f.NewCounter(prometheus.CounterOpts{
			Name: "montewalk_simulated_paths_total",
			Help: "Monte Carlo paths simulated.",
		}),
		providerErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "montewalk_data_unavailable_total",
				Help: "Requests for which every market data provider failed.",
			},
			[]string{"tool"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "montewalk_http_requests_total",
				Help: "HTTP requests by route, method and status.",
			},
			[]string{"route", "method", "status"},
		),
	}
}

// ObserveTool records one tool call. outcome is "ok" or an error kind name.
func (r *Recorder) ObserveTool(tool, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.toolCalls.WithLabelValues(tool, outcome).Inc()
	r.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
	if outcome == "DataUnavailableError" {
		r.providerErrors.WithLabelValues(tool).Inc()
	}
}

// AddSimulatedPaths counts simulated paths.
func (r *Recorder) AddSimulatedPaths(n int) {
	if r == nil {
		return
	}
	r.simulatedPaths.Add(float64(n))
}

// ObserveHTTP records one HTTP request by its route template.
func (r *Recorder) ObserveHTTP(route, method, status string) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, method, status).Inc()
}
