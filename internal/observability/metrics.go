package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/learnmate-backend/internal/platform/envutil"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

const namespace = "learnmate"

// Metrics owns a private Prometheus registry. Every method is safe on a nil
// receiver so components can be built without metrics in tests.
type Metrics struct {
	reg *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	computation        *prometheus.HistogramVec
	experimentOutcome  *prometheus.HistogramVec
	experimentExposure *prometheus.CounterVec
	llmRequests        *prometheus.CounterVec
	llmLatency         *prometheus.HistogramVec
	cacheOps           *prometheus.CounterVec
	moderation         *prometheus.CounterVec
	contentSource      *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
	resourceRefs       *prometheus.GaugeVec

	redisUp     prometheus.Gauge
	redisPing   prometheus.Gauge
	dbOpenConns prometheus.Gauge
	dbInUse     prometheus.Gauge
}

// Enabled reports METRICS_ENABLED.
func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "api_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "api_request_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "api_inflight_requests",
			Help: "HTTP requests currently being served.",
		}),
		computation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "ai_computation_seconds",
			Help:    "Tiered AI computation time by operation and tier.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation", "tier"}),
		experimentOutcome: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "experiment_outcome",
			Help:    "Experiment outcome values by experiment and variant.",
			Buckets: []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1},
		}, []string{"experiment", "variant"}),
		experimentExposure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "experiment_exposures_total",
			Help: "Variant assignments handed out.",
		}, []string{"experiment", "variant"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_requests_total",
			Help: "Remote model requests by provider, model and status.",
		}, []string{"provider", "model", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "llm_request_seconds",
			Help:    "Remote model request latency.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
		}, []string{"provider", "model"}),
		cacheOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_ops_total",
			Help: "Cache operations by layer, op and result.",
		}, []string{"layer", "op", "result"}),
		moderation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "moderation_decisions_total",
			Help: "Moderation decisions by path and verdict.",
		}, []string{"path", "verdict"}),
		contentSource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "content_source_results",
			Help: "Content source searches by source and status.",
		}, []string{"source", "status"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "circuit_breaker_state",
			Help: "0 closed, 1 half-open, 2 open.",
		}, []string{"name"}),
		resourceRefs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "resource_refs",
			Help: "Live references held on managed AI resources.",
		}, []string{"type"}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "redis_up",
			Help: "1 when the last redis ping succeeded.",
		}),
		redisPing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "redis_ping_seconds",
			Help: "Latency of the last redis ping.",
		}),
		dbOpenConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "db_open_connections",
			Help: "Open SQL connections.",
		}),
		dbInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "db_in_use_connections",
			Help: "SQL connections in use.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.computation, m.experimentOutcome, m.experimentExposure,
		m.llmRequests, m.llmLatency, m.cacheOps, m.moderation,
		m.contentSource, m.breakerState, m.resourceRefs,
		m.redisUp, m.redisPing, m.dbOpenConns, m.dbInUse,
	)
	return m
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr until ctx is cancelled.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil || strings.TrimSpace(addr) == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              strings.TrimSpace(addr),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.OrNop(log).Error("metrics server failed", "error", err, "addr", addr)
		}
	}()
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) APIInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) APIInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

func (m *Metrics) ObserveComputation(operation, tier string, seconds float64) {
	if m == nil {
		return
	}
	m.computation.WithLabelValues(operation, tier).Observe(seconds)
}

func (m *Metrics) ObserveExperimentOutcome(experiment, variant string, outcome float64) {
	if m == nil {
		return
	}
	m.experimentOutcome.WithLabelValues(experiment, variant).Observe(outcome)
}

func (m *Metrics) IncExperimentExposure(experiment, variant string) {
	if m == nil {
		return
	}
	m.experimentExposure.WithLabelValues(experiment, variant).Inc()
}

func (m *Metrics) ObserveLLMRequest(provider, model, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(provider, model, status).Inc()
	m.llmLatency.WithLabelValues(provider, model).Observe(dur.Seconds())
}

func (m *Metrics) IncCacheOp(layer, op, result string) {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues(layer, op, result).Inc()
}

func (m *Metrics) IncModeration(path, verdict string) {
	if m == nil {
		return
	}
	m.moderation.WithLabelValues(path, verdict).Inc()
}

func (m *Metrics) IncContentSource(source, status string) {
	if m == nil {
		return
	}
	m.contentSource.WithLabelValues(source, status).Inc()
}

func (m *Metrics) SetBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(state)
}

func (m *Metrics) SetResourceRefs(typ string, refs int) {
	if m == nil {
		return
	}
	m.resourceRefs.WithLabelValues(typ).Set(float64(refs))
}

func scrapeInterval() time.Duration {
	d := envutil.Duration("METRICS_SCRAPE_INTERVAL", 15*time.Second)
	if d < time.Second {
		return time.Second
	}
	return d
}

// StartRedisCollector pings rdb on the scrape interval.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	log = logger.OrNop(log)
	go func() {
		ticker := time.NewTicker(scrapeInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					log.Warn("metrics: redis ping failed", "error", err)
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

// StartDBCollector samples sql.DBStats for the gorm pool.
func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.OrNop(log).Warn("metrics: sql handle unavailable", "error", err)
		return
	}
	go func() {
		ticker := time.NewTicker(scrapeInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := sqlDB.Stats()
				m.dbOpenConns.Set(float64(stats.OpenConnections))
				m.dbInUse.Set(float64(stats.InUse))
			}
		}
	}()
}
