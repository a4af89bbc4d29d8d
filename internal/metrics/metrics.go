// Package metrics exposes Prometheus collectors for archive runs.
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	archiverItemsTotal              *prometheus.CounterVec
	archiverPagesTotal              *prometheus.CounterVec
	archiverConversionAttemptsTotal prometheus.Counter
	archiverThrottleDelaySeconds    prometheus.Histogram
	archiverMirrorFailuresTotal     prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		archiverItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_items_total",
				Help: "Total number of items seen, labeled by collection and outcome.",
			},
			[]string{"collection", "outcome"},
		)

		archiverPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_pages_total",
				Help: "Total number of listing pages fetched, labeled by collection.",
			},
			[]string{"collection"},
		)

		archiverConversionAttemptsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archiver_conversion_attempts_total",
				Help: "Total number of document conversion attempts.",
			},
		)

		archiverThrottleDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "archiver_throttle_delay_seconds",
				Help:    "Histogram of waits inserted to keep the per-item interval.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 0.75, 1},
			},
		)

		archiverMirrorFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "archiver_mirror_failures_total",
				Help: "Total number of artifacts that could not be mirrored.",
			},
		)
	})
}

// SanitizeCollection normalizes a collection name for use as a label value.
func SanitizeCollection(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "home"
	}
	return name
}

// ObserveItem increments the item counter for the given outcome.
func ObserveItem(collection, outcome string) {
	Init()
	archiverItemsTotal.WithLabelValues(SanitizeCollection(collection), outcome).Inc()
}

// ObservePage increments the listing page counter.
func ObservePage(collection string) {
	Init()
	archiverPagesTotal.WithLabelValues(SanitizeCollection(collection)).Inc()
}

// ObserveConversionAttempt counts one converter invocation.
func ObserveConversionAttempt() {
	Init()
	archiverConversionAttemptsTotal.Inc()
}

// ObserveThrottleDelay records a wait inserted between items.
func ObserveThrottleDelay(d time.Duration) {
	Init()
	archiverThrottleDelaySeconds.Observe(d.Seconds())
}

// ObserveMirrorFailure counts an artifact that could not be mirrored.
func ObserveMirrorFailure() {
	Init()
	archiverMirrorFailuresTotal.Inc()
}

// WriteTextfile writes the default registry in the text exposition format,
// suitable for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	Init()
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
