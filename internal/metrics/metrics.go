package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinescript_jobs_processed_total",
		Help: "Total number of analysis jobs processed, by final status",
	}, []string{"status"})

	ScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cinescript_scan_duration_seconds",
		Help:    "Duration of each analysis stage",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"scan"})

	ScanFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinescript_scan_failures_total",
		Help: "Scans that aborted, by scan and error code",
	}, []string{"scan", "code"})

	ExclusionsFoundTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinescript_exclusions_found_total",
		Help: "Merged exclusion timeline entries, by winning method",
	}, []string{"method"})

	ExcludedSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinescript_excluded_seconds_total",
		Help: "Media seconds excluded from transcription",
	})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cinescript_active_jobs",
		Help: "Number of analysis jobs currently running",
	})

	JobsEnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinescript_jobs_enqueued_total",
		Help: "Analysis tasks enqueued, by origin",
	}, []string{"origin"})
)
