package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for command executions.
type Metrics struct {
	config MetricsConfig

	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec

	stepsTotal   *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec

	actionAttempts *prometheus.CounterVec
	actionRetries  *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec

	errorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector registered on a private registry.
func NewMetrics(namespace string, cfg MetricsConfig) *Metrics {
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total number of commands executed",
			},
			[]string{"command", "status"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Duration of command execution in seconds",
				Buckets:   buckets,
			},
			[]string{"command"},
		),
		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Total number of steps executed",
			},
			[]string{"command", "step", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of step execution in seconds",
				Buckets:   buckets,
			},
			[]string{"command", "step"},
		),
		actionAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "action_attempts_total",
				Help:      "Total number of action attempts",
			},
			[]string{"action", "status"},
		),
		actionRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "action_retries_total",
				Help:      "Total number of action attempts after the first",
			},
			[]string{"action"},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Duration of a single action attempt in seconds",
				Buckets:   buckets,
			},
			[]string{"action"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of failed commands by error kind and class",
			},
			[]string{"kind", "class"},
		),
	}

	registry.MustRegister(
		m.commandsTotal,
		m.commandDuration,
		m.stepsTotal,
		m.stepDuration,
		m.actionAttempts,
		m.actionRetries,
		m.actionDuration,
		m.errorsTotal,
	)

	return m
}

// RecordCommand records a finished command.
func (m *Metrics) RecordCommand(command, status string, duration time.Duration) {
	m.commandsTotal.WithLabelValues(command, status).Inc()
	m.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordStep records a finished step.
func (m *Metrics) RecordStep(command, step, status string, duration time.Duration) {
	m.stepsTotal.WithLabelValues(command, step, status).Inc()
	m.stepDuration.WithLabelValues(command, step).Observe(duration.Seconds())
}

// RecordActionAttempt records one attempt of an action.
func (m *Metrics) RecordActionAttempt(action, status string, attempt int, duration time.Duration) {
	m.actionAttempts.WithLabelValues(action, status).Inc()
	m.actionDuration.WithLabelValues(action).Observe(duration.Seconds())
	if attempt > 1 {
		m.actionRetries.WithLabelValues(action).Inc()
	}
}

// RecordError records a failed command by error kind and class.
func (m *Metrics) RecordError(kind, class string) {
	m.errorsTotal.WithLabelValues(kind, class).Inc()
}

// Registry returns the registry all collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes the metrics endpoint until ctx is done. It returns
// immediately when no listen address is configured.
func (m *Metrics) Serve(ctx context.Context, logger *Logger) {
	if m.config.ListenAddress == "" {
		return
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
