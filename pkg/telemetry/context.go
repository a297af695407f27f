package telemetry

import (
	"context"
	"errors"

	"github.com/openfroyo/deployer/pkg/engine"
)

// Telemetry bundles logging, tracing and metrics for one CLI invocation.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: NewMetrics(cfg.ServiceName, cfg.Metrics),
		Config:  cfg,
	}, nil
}

// Observer returns the engine observer chain: spans first so that the
// log and metrics observers see the span context.
func (t *Telemetry) Observer() engine.Observer {
	return engine.Observers{
		NewTraceObserver(t.Tracer),
		NewLogObserver(t.Logger),
		NewMetricsObserver(t.Metrics),
	}
}

// Shutdown flushes spans and closes the log file.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.Config != nil && t.Config.Tracing.ExportTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Config.Tracing.ExportTimeout)
		defer cancel()
	}
	return errors.Join(t.Tracer.Shutdown(ctx), t.Logger.Close())
}
