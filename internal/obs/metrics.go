package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const unmatchedRoute = "unmatched"

// Metrics holds the service collectors. It implements auth.Metrics.
type Metrics struct {
	registry prometheus.Gatherer

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	buildInfo           *prometheus.GaugeVec

	logins        *prometheus.CounterVec
	verifications *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	hashSeconds   prometheus.Histogram
	hashWaiting   prometheus.Gauge
}

// NewMetrics registers every collector with reg. Pass a fresh
// prometheus.NewRegistry() in tests.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		buildInfo: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Rollcall build information.",
		}, []string{"version", "commit"}),
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_auth_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_token_verifications_total",
			Help: "Token verifications by result.",
		}, []string{"result"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_authz_decisions_total",
			Help: "Authorization decisions.",
		}, []string{"decision"}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_refresh_total",
			Help: "Refresh token rotations by result.",
		}, []string{"result"}),
		hashSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rollcall_password_hash_seconds",
			Help:    "Time spent hashing or comparing passwords.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		hashWaiting: f.NewGauge(prometheus.GaugeOpts{
			Name: "rollcall_hash_pool_waiting",
			Help: "Callers waiting for a password hashing slot.",
		}),
	}
}

// SetBuildInfo sets build_info{version,commit} to 1.
func (m *Metrics) SetBuildInfo(version, commit string) {
	m.buildInfo.WithLabelValues(version, commit).Set(1)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveLogin(result string)        { m.logins.WithLabelValues(result).Inc() }
func (m *Metrics) ObserveVerification(result string) { m.verifications.WithLabelValues(result).Inc() }
func (m *Metrics) ObserveDecision(decision string)   { m.decisions.WithLabelValues(decision).Inc() }
func (m *Metrics) ObserveRefresh(result string)      { m.refreshes.WithLabelValues(result).Inc() }
func (m *Metrics) ObserveHash(d time.Duration)       { m.hashSeconds.Observe(d.Seconds()) }
func (m *Metrics) HashPoolWaiting(delta float64)     { m.hashWaiting.Add(delta) }

// Instrument records RPS, latency and in-flight requests. The path label is
// the matched chi route pattern so ids in URLs do not explode cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()
		start := time.Now()

		sw := &StatusWriter{ResponseWriter: w, Code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.Code)
		path := RoutePattern(r)
		m.httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

// RoutePattern returns the chi route that served r, or "unmatched".
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return unmatchedRoute
}

// StatusWriter remembers the response code.
type StatusWriter struct {
	http.ResponseWriter
	Code int
}

func (w *StatusWriter) WriteHeader(code int) {
	w.Code = code
	w.ResponseWriter.WriteHeader(code)
}
