package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mockupforge",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mockupforge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mockupforge",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mockupforge",
			Subsystem: "generation",
			Name:      "requests_total",
			Help:      "Total number of image generation requests.",
		},
		[]string{"status"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mockupforge",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Duration of image generation requests.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 500ms to ~4m
		},
		[]string{"status"},
	)

	mirrorOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mockupforge",
			Subsystem: "mirror",
			Name:      "outcomes_total",
			Help:      "Mirror attempts by outcome (mirrored, fallback).",
		},
		[]string{"outcome"},
	)

	tokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mockupforge",
			Subsystem: "storage",
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		generations,
		generationDuration,
		mirrorOutcomes,
		tokenRefreshes,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordGeneration records one generation pipeline run.
func RecordGeneration(status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	generations.WithLabelValues(status).Inc()
	generationDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordMirrorOutcome counts a mirror attempt. outcome is "mirrored" when
// the asset landed in storage and "fallback" when the source URL was kept.
func RecordMirrorOutcome(mirrored bool) {
	outcome := "fallback"
	if mirrored {
		outcome = "mirrored"
	}
	mirrorOutcomes.WithLabelValues(outcome).Inc()
}

// RecordTokenRefresh counts an access token refresh attempt.
func RecordTokenRefresh(ok bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	tokenRefreshes.WithLabelValues(result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses id-bearing routes so label cardinality stays
// bounded.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "download":
		return "/download/:id"
	case "admin":
		if len(parts) > 1 && parts[1] == "delete" {
			return "/admin/delete/:id"
		}
		if len(parts) > 1 {
			return "/admin/" + parts[1]
		}
		return "/admin"
	case "webhooks":
		if len(parts) > 1 {
			return "/webhooks/" + parts[1]
		}
		return "/webhooks"
	default:
		return "/" + parts[0]
	}
}
