// Package metrics holds the Prometheus collectors for request handling,
// fetching and retention.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iconidentify/grabbot/internal/domain"
	"github.com/iconidentify/grabbot/internal/retention"
)

var (
	// requestsTotal counts terminal outcomes by request kind and message class.
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grabbot_requests_total",
			Help: "Handled requests by request kind and outcome class",
		},
		[]string{"kind", "class"},
	)

	// fetchDuration observes extractor runs by result.
	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grabbot_fetch_duration_seconds",
			Help:    "Duration of media fetches in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"result"},
	)

	// fetchesInFlight tracks fetches currently holding a download slot.
	fetchesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grabbot_fetches_in_flight",
			Help: "Fetches currently holding a download slot",
		},
	)

	// sweepFilesTotal counts files handled by the retention sweeper.
	sweepFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grabbot_retention_files_total",
			Help: "Files processed by the retention sweeper by result",
		},
		[]string{"result"},
	)

	// sweepDuration observes retention sweep runs.
	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grabbot_retention_sweep_duration_seconds",
			Help:    "Duration of retention sweeps in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Recorder forwards observations to the package collectors. The zero value
// is ready to use.
type Recorder struct{}

// ObserveOutcome counts a terminal outcome.
func (Recorder) ObserveOutcome(kind domain.RequestKind, class domain.MessageClass) {
	requestsTotal.WithLabelValues(string(kind), string(class)).Inc()
}

// ObserveFetch records one fetch duration.
func (Recorder) ObserveFetch(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	fetchDuration.WithLabelValues(result).Observe(d.Seconds())
}

// FetchStarted marks a download slot as taken.
func (Recorder) FetchStarted() {
	fetchesInFlight.Inc()
}

// FetchFinished marks a download slot as released.
func (Recorder) FetchFinished() {
	fetchesInFlight.Dec()
}

// ObserveSweep implements retention.Observer.
func (Recorder) ObserveSweep(stats retention.Stats, d time.Duration) {
	sweepFilesTotal.WithLabelValues("scanned").Add(float64(stats.Scanned))
	sweepFilesTotal.WithLabelValues("removed").Add(float64(stats.Removed))
	sweepFilesTotal.WithLabelValues("failed").Add(float64(stats.Failed))
	sweepDuration.Observe(d.Seconds())
}
