package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Upload attempt outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeHTTPError = "http_error"
	OutcomeRejected  = "rejected"
	OutcomeDecode    = "decode_error"
	OutcomeTimeout   = "timeout"
	OutcomeTransport = "transport_error"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posectl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served by the collector.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "posectl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Collector HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	uploadAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posectl",
			Subsystem: "upload",
			Name:      "attempts_total",
			Help:      "Upload attempts by outcome.",
		},
		[]string{"outcome"},
	)
	uploadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "posectl",
			Subsystem: "upload",
			Name:      "attempt_duration_seconds",
			Help:      "Upload attempt duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	uploadFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "posectl",
			Subsystem: "upload",
			Name:      "frames_total",
			Help:      "Frames delivered by successful uploads.",
		},
	)
	storedSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posectl",
			Subsystem: "collector",
			Name:      "sessions_stored_total",
			Help:      "Sessions accepted and persisted by the collector.",
		},
		[]string{"node", "format"},
	)
	storedFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "posectl",
			Subsystem: "collector",
			Name:      "frames_stored_total",
			Help:      "Frames persisted by the collector.",
		},
		[]string{"node"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			uploadAttempts, uploadDuration, uploadFrames,
			storedSessions, storedFrames,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordUploadAttempt(outcome string, duration time.Duration) {
	RegisterMetrics()
	uploadAttempts.WithLabelValues(outcome).Inc()
	uploadDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func RecordUploadedFrames(n int) {
	RegisterMetrics()
	if n > 0 {
		uploadFrames.Add(float64(n))
	}
}

func RecordStoredSession(node, format string, frames int) {
	RegisterMetrics()
	storedSessions.WithLabelValues(node, format).Inc()
	if frames > 0 {
		storedFrames.WithLabelValues(node).Add(float64(frames))
	}
}
