package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	captureJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "receiptctl",
			Subsystem: "capture",
			Name:      "jobs_total",
			Help:      "Captured print jobs by decoder and printer status.",
		},
		[]string{"decoder_status", "printer_status"},
	)
	captureJobBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "receiptctl",
			Subsystem: "capture",
			Name:      "job_bytes",
			Help:      "Raw bytes received per print job.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		},
	)
	decodeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "receiptctl",
			Subsystem: "decoder",
			Name:      "unresolved_paths_total",
			Help:      "Command paths that matched no recognized command.",
		},
	)
	handlerFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "receiptctl",
			Subsystem: "decoder",
			Name:      "handler_failures_total",
			Help:      "Recognized commands whose action rejected its arguments.",
		},
	)
	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "receiptctl",
			Subsystem: "capture",
			Name:      "active_connections",
			Help:      "Open capture connections.",
		},
	)
	relayAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "receiptctl",
			Subsystem: "relay",
			Name:      "attempts_total",
			Help:      "Printer forwarding attempts.",
		},
		[]string{"success"},
	)
	relayDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "receiptctl",
			Subsystem: "relay",
			Name:      "attempt_duration_seconds",
			Help:      "Printer forwarding attempt duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "receiptctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "receiptctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			captureJobs,
			captureJobBytes,
			decodeErrors,
			handlerFailures,
			activeConnections,
			relayAttempts,
			relayDuration,
			httpRequests,
			httpDuration,
		)
	})
}

// JobOutcome is the metric view of one finished capture job.
type JobOutcome struct {
	DecoderStatus   string
	PrinterStatus   string
	Bytes           int
	DecodeErrors    int
	HandlerFailures int
}

func RecordJob(o JobOutcome) {
	RegisterMetrics()
	captureJobs.WithLabelValues(o.DecoderStatus, o.PrinterStatus).Inc()
	captureJobBytes.Observe(float64(o.Bytes))
	decodeErrors.Add(float64(o.DecodeErrors))
	handlerFailures.Add(float64(o.HandlerFailures))
}

func ConnectionOpened() {
	RegisterMetrics()
	activeConnections.Inc()
}

func ConnectionClosed() {
	RegisterMetrics()
	activeConnections.Dec()
}

func RecordRelayAttempt(success bool, duration time.Duration) {
	RegisterMetrics()
	relayAttempts.WithLabelValues(strconv.FormatBool(success)).Inc()
	relayDuration.Observe(duration.Seconds())
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
