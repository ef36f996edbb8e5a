// Package metrics provides Prometheus metrics for the taxonomy package registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	inspectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxpkg_inspections_total",
			Help: "Total package source inspections by result",
		},
		[]string{"result"},
	)

	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxpkg_registry_mutations_total",
			Help: "Total registry mutations by operation",
		},
		[]string{"op"},
	)

	scansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "taxpkg_update_scans_total",
			Help: "Total completed update scans",
		},
	)

	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taxpkg_update_scan_duration_seconds",
			Help:    "Time to check all package sources for updates",
			Buckets: prometheus.DefBuckets,
		},
	)

	stalePackages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taxpkg_stale_packages",
			Help: "Packages with a newer source found by the last scan",
		},
	)

	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxpkg_downloads_total",
			Help: "Total remote package downloads by status",
		},
		[]string{"status"},
	)
)

// RecordInspection counts one inspector call outcome.
func RecordInspection(result string) {
	inspectionsTotal.WithLabelValues(result).Inc()
}

// RecordMutation counts one registry mutation.
func RecordMutation(op string) {
	mutationsTotal.WithLabelValues(op).Inc()
}

// RecordScan records a completed update scan.
func RecordScan(stale int, d time.Duration) {
	scansTotal.Inc()
	scanDuration.Observe(d.Seconds())
	stalePackages.Set(float64(stale))
}

// RecordDownload counts a remote package download.
func RecordDownload(status string) {
	downloadsTotal.WithLabelValues(status).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
