package api

import (
	"crypto/subtle"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"collide2d/internal/world"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics with bounded cardinality: labels are method kinds, route patterns
// and fixed reason strings, never body IDs or raw paths.
var (
	// Broad phase
	broadphaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "broadphase_duration_seconds",
		Help:    "Time spent computing candidate pairs per tick",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	}, []string{"method"})

	broadphaseTests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadphase_overlap_tests_total",
		Help: "AABB overlap tests performed",
	}, []string{"method"})

	broadphaseRebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadphase_rebuilds_total",
		Help: "Full structure rebuilds",
	}, []string{"method"})

	broadphaseReinserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broadphase_reinserted_total",
		Help: "Shapes moved within a structure without a rebuild",
	}, []string{"method"})

	// World
	worldBodies = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "world_bodies",
		Help: "Current number of bodies",
	})

	worldPairs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "world_candidate_pairs",
		Help: "Candidate pairs found in the last tick",
	})

	worldTick = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "world_tick",
		Help: "Last completed tick",
	})

	pairTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "world_pair_transitions_total",
		Help: "Pairs that began or ended overlapping",
	}, []string{"type"}) // "began", "ended"

	// DoS detection
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Requests rejected by rate limit, origin or auth checks",
	}, []string{"reason"}) // "rate_limit", "origin", "ws_limit", "auth"

	// HTTP
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// WebSocket
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total WebSocket messages sent",
	})
)

// PrometheusRecorder exports engine ticks as metrics.
type PrometheusRecorder struct{}

var _ world.Recorder = PrometheusRecorder{}

// RecordStep implements world.Recorder.
func (PrometheusRecorder) RecordStep(method string, bodies int, res world.StepResult) {
	broadphaseDuration.WithLabelValues(method).Observe(res.Duration.Seconds())
	broadphaseTests.WithLabelValues(method).Add(float64(res.Stats.Tests))
	if res.Stats.Rebuilds > 0 {
		broadphaseRebuilds.WithLabelValues(method).Add(float64(res.Stats.Rebuilds))
	}
	if res.Stats.Reinserted > 0 {
		broadphaseReinserted.WithLabelValues(method).Add(float64(res.Stats.Reinserted))
	}
	worldBodies.Set(float64(bodies))
	worldPairs.Set(float64(len(res.Pairs)))
	worldTick.Set(float64(res.Tick))
	pairTransitions.WithLabelValues("began").Add(float64(len(res.Began)))
	pairTransitions.WithLabelValues("ended").Add(float64(len(res.Ended)))
}

// =============================================================================
// DEBUG SERVER
// =============================================================================

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // loopback only unless AllowExternal
	AllowExternal bool
	BasicAuthUser string
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "localhost:6060",
	}
}

// isLoopback reports whether addr binds only to the local machine.
func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// DebugHandler serves pprof, /metrics and /health.
func DebugHandler(cfg ObservabilityConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.BasicAuthUser != "" {
		return basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}
	return mux
}

// StartDebugServer starts the profiling and metrics listener in the
// background. A non-loopback address is forced to localhost unless
// AllowExternal is set.
func StartDebugServer(cfg ObservabilityConfig) {
	if !cfg.Enabled || cfg.ListenAddr == "" {
		log.Println("📊 Debug server disabled")
		return
	}
	if !isLoopback(cfg.ListenAddr) && !cfg.AllowExternal {
		log.Printf("⚠️ Debug server forced to localhost (requested %s)", cfg.ListenAddr)
		cfg.ListenAddr = "localhost:6060"
	}

	handler := DebugHandler(cfg)
	go func() {
		log.Printf("📊 Debug server starting on %s", cfg.ListenAddr)
		log.Printf("   - pprof:   http://%s/debug/pprof/", cfg.ListenAddr)
		log.Printf("   - metrics: http://%s/metrics", cfg.ListenAddr)

		if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()
}

func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HTTP + WEBSOCKET HELPERS
// =============================================================================

// metricsMiddleware records latency by chi route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				endpoint = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}

// RecordConnectionRejected increments the rejection counter.
// reason must be one of: "rate_limit", "origin", "ws_limit", "auth"
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments WebSocket message counter
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}
