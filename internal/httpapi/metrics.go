package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"modelhost/internal/manager"
)

const namespace = "modelhost"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
		[]string{"path"},
	)

	backpressureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "backpressure_total",
			Help:      "Total backpressure rejections (429)",
		},
		[]string{"reason"},
	)

	loadAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "attempts_total",
			Help:      "Session build attempts by backend and result kind",
		},
		[]string{"backend", "result"},
	)

	loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "loads_total",
			Help:      "Completed load calls by result",
		},
		[]string{"result"},
	)

	probeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "probe_total",
			Help:      "Input-naming probes by result",
		},
		[]string{"result"},
	)

	downloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "downloads_total",
			Help:      "Finished downloads by result",
		},
		[]string{"result"},
	)

	downloadBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "bytes_total",
			Help:      "Size of completed model downloads in bytes",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal, httpRequestDuration, httpInflight, backpressureTotal,
		loadAttemptsTotal, loadsTotal, probeTotal, downloadsTotal, downloadBytesTotal,
	)
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware instruments requests for Prometheus
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		// chi fills the route pattern while routing, so read it afterwards.
		next.ServeHTTP(sr, r)
		path := routePatternOrPath(r)
		status := strconv.Itoa(sr.status)
		httpRequestsTotal.WithLabelValues(path, r.Method, status).Inc()
		httpRequestDuration.WithLabelValues(path, r.Method, status).Observe(time.Since(start).Seconds())
	})
}

// InflightMiddleware tracks in-flight requests per route. It must run inside
// the router so the route pattern is known.
func InflightMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := routePatternOrPath(r)
		httpInflight.WithLabelValues(path).Inc()
		defer httpInflight.WithLabelValues(path).Dec()
		next.ServeHTTP(w, r)
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path. This avoids high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// IncrementBackpressure is called when returning 429 to the client
func IncrementBackpressure(reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	backpressureTotal.WithLabelValues(reason).Inc()
}

// MetricsPublisher turns manager lifecycle events into Prometheus series.
type MetricsPublisher struct{}

func (MetricsPublisher) Publish(e manager.Event) {
	switch e.Name {
	case "load_attempt_result":
		result := "ok"
		if ok, _ := e.Fields["success"].(bool); !ok {
			result, _ = e.Fields["kind"].(string)
		}
		backend, _ := e.Fields["backend"].(string)
		loadAttemptsTotal.WithLabelValues(backend, result).Inc()
	case "load_ready":
		loadsTotal.WithLabelValues("ready").Inc()
	case "load_failed":
		loadsTotal.WithLabelValues("failed").Inc()
	case "load_cancelled":
		loadsTotal.WithLabelValues("cancelled").Inc()
	case "probe_result":
		result := "unconfirmed"
		if ok, _ := e.Fields["confirmed"].(bool); ok {
			result = "confirmed"
		}
		probeTotal.WithLabelValues(result).Inc()
	case "download_done":
		downloadsTotal.WithLabelValues("done").Inc()
		if n, ok := e.Fields["bytes"].(int64); ok && n > 0 {
			downloadBytesTotal.Add(float64(n))
		}
	case "download_failed":
		status, _ := e.Fields["status"].(string)
		if status == "" {
			status = "failed"
		}
		downloadsTotal.WithLabelValues(status).Inc()
	}
}
