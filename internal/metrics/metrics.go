// Package metrics exposes Prometheus instrumentation for the serve
// pipeline. Collectors are registered on the default registry at init
// via promauto and recorded through small package-level helpers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "servetrack"

// Outcome labels shared across collectors.
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

// Upload target labels.
const (
	TargetEvidence  = "evidence"
	TargetThumbnail = "thumbnail"
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Serve attempt submissions by outcome.",
	}, []string{"outcome"})

	submissionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "submission_duration_seconds",
		Help:      "End to end serve submission latency.",
		Buckets:   prometheus.DefBuckets,
	})

	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "evidence_uploads_total",
		Help:      "Evidence object uploads by target bucket and outcome.",
	}, []string{"target", "outcome"})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification sends by transport and outcome.",
	}, []string{"transport", "outcome"})

	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_runs_total",
		Help:      "Cache reconciliation runs by outcome.",
	}, []string{"outcome"})

	fallbackDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "fallback_queue_depth",
		Help:      "Records waiting in the local fallback queue.",
	})

	cachedServes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cached_serves",
		Help:      "Serve records currently held in the local cache.",
	})
)

// SubmissionCompleted records a finished submission with its outcome and
// wall-clock duration in seconds.
func SubmissionCompleted(outcome string, seconds float64) {
	submissionsTotal.WithLabelValues(outcome).Inc()
	submissionDuration.Observe(seconds)
}

// UploadSucceeded records a successful object upload for the given target.
func UploadSucceeded(target string) {
	uploadsTotal.WithLabelValues(target, OutcomeOK).Inc()
}

// UploadFailed records a failed object upload for the given target.
func UploadFailed(target string) {
	uploadsTotal.WithLabelValues(target, OutcomeError).Inc()
}

// NotificationSent records a delivered notification.
func NotificationSent(transport string) {
	notificationsTotal.WithLabelValues(transport, OutcomeOK).Inc()
}

// NotificationFailed records a transport that could not deliver.
func NotificationFailed(transport string) {
	notificationsTotal.WithLabelValues(transport, OutcomeError).Inc()
}

// SyncCompleted records a reconciliation run.
func SyncCompleted(outcome string) {
	syncRunsTotal.WithLabelValues(outcome).Inc()
}

// SetFallbackDepth reports the current fallback queue depth.
func SetFallbackDepth(n int) {
	fallbackDepth.Set(float64(n))
}

// SetCachedServes reports the current cached record count.
func SetCachedServes(n int) {
	cachedServes.Set(float64(n))
}
