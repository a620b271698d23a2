package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the compile core.
type Metrics struct {
	config MetricsConfig

	// Whole-build metrics
	buildsStarted   prometheus.Counter
	buildsCompleted *prometheus.CounterVec
	buildDuration   *prometheus.HistogramVec

	// Pipeline stage metrics
	stagesExecuted *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec

	// Generator fan-out metrics
	generatorsExecuted *prometheus.CounterVec
	generatorDuration  *prometheus.HistogramVec

	// Gate metrics
	gateChecks     *prometheus.CounterVec
	gateViolations *prometheus.CounterVec

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a new metrics collector with the given
// configuration. A disabled configuration yields a no-op collector.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		buildsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_started_total",
				Help:      "Total number of builds started",
			},
		),
		buildsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_completed_total",
				Help:      "Total number of builds completed",
			},
			[]string{"status"},
		),
		buildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "build_duration_seconds",
				Help:      "Duration of whole builds in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		stagesExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stages_executed_total",
				Help:      "Total number of pipeline stages executed",
			},
			[]string{"stage", "status"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stage execution in seconds",
				Buckets:   buckets,
			},
			[]string{"stage"},
		),

		generatorsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generators_executed_total",
				Help:      "Total number of code generators executed",
			},
			[]string{"generator", "status"},
		),
		generatorDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generator_duration_seconds",
				Help:      "Duration of code generator execution in seconds",
				Buckets:   buckets,
			},
			[]string{"generator"},
		),

		gateChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_checks_total",
				Help:      "Total number of validation gate checks",
			},
			[]string{"gate", "status"},
		),
		gateViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_violations_total",
				Help:      "Total number of validation gate violations",
			},
			[]string{"gate", "severity"},
		),
	}

	collectors := []prometheus.Collector{
		m.buildsStarted,
		m.buildsCompleted,
		m.buildDuration,
		m.stagesExecuted,
		m.stageDuration,
		m.generatorsExecuted,
		m.generatorDuration,
		m.gateChecks,
		m.gateViolations,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}

	return m, nil
}

// Serve exposes the metrics registry over HTTP. No-op when metrics are
// disabled or no listen address is configured.
func (m *Metrics) Serve() error {
	if m.registry == nil || m.config.ListenAddress == "" {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		_ = m.server.ListenAndServe()
	}()

	return nil
}

// Shutdown stops the metrics HTTP endpoint, if running.
func (m *Metrics) Shutdown() error {
	if m.server == nil {
		return nil
	}
	return m.server.Close()
}

// RecordBuildStarted increments the started-builds counter.
func (m *Metrics) RecordBuildStarted() {
	if m.registry == nil {
		return
	}
	m.buildsStarted.Inc()
}

// RecordBuildCompleted records one finished build.
func (m *Metrics) RecordBuildCompleted(status string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.buildsCompleted.WithLabelValues(status).Inc()
	m.buildDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordStage records one pipeline stage execution.
func (m *Metrics) RecordStage(stage, status string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.stagesExecuted.WithLabelValues(stage, status).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordGenerator records one generator execution.
func (m *Metrics) RecordGenerator(generator, status string, duration time.Duration) {
	if m.registry == nil {
		return
	}
	m.generatorsExecuted.WithLabelValues(generator, status).Inc()
	m.generatorDuration.WithLabelValues(generator).Observe(duration.Seconds())
}

// RecordGateCheck records one validation gate outcome.
func (m *Metrics) RecordGateCheck(gate, status string, violations map[string]int) {
	if m.registry == nil {
		return
	}
	m.gateChecks.WithLabelValues(gate, status).Inc()
	for severity, count := range violations {
		m.gateViolations.WithLabelValues(gate, severity).Add(float64(count))
	}
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
