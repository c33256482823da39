package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UpstreamBuckets covers time-to-first-byte of the upstream chat API.
var UpstreamBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}

var (
	// Counter: how many times we served from exact cache.
	ExactHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exact_hits_total",
			Help: "Total number of exact cache hits.",
		},
	)

	// Histogram: gateway HTTP latency in seconds.
	GatewayLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_latency_seconds",
			Help:    "HTTP request latency for the gateway in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"path", "method", "status_code"},
	)

	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_upstream_requests_total",
			Help: "Requests sent to the upstream chat API by model and status.",
		},
		[]string{"model", "status"},
	)

	UpstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_upstream_latency_seconds",
			Help:    "Time until the upstream chat API answered with headers.",
			Buckets: UpstreamBuckets,
		},
		[]string{"model"},
	)

	// StreamChunksTotal counts frames written to clients; kind is "chunk" or "done".
	StreamChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_stream_chunks_total",
			Help: "Server-sent event frames written to clients.",
		},
		[]string{"kind"},
	)

	DecodeErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_decode_errors_total",
			Help: "Upstream events skipped because their payload could not be decoded.",
		},
	)

	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_streaming_connections_active",
			Help: "Active client streaming connections.",
		},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		ExactHitsTotal,
		GatewayLatencySeconds,
		UpstreamRequestsTotal,
		UpstreamLatencySeconds,
		StreamChunksTotal,
		DecodeErrorsTotal,
		StreamingConnections,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures gateway latency for each HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// capture status code
		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		duration := time.Since(start).Seconds()

		GatewayLatencySeconds.
			WithLabelValues(routePattern(r), r.Method, strconv.Itoa(rec.statusCode)).
			Observe(duration)
	})
}

// routePattern prefers the matched chi pattern to keep label cardinality
// bounded; unmatched requests share one label.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer's Flush.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
