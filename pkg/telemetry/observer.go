package telemetry

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/deployer/pkg/engine"
)

// LogObserver writes one structured line per start and end record.
type LogObserver struct {
	logger *Logger
}

// NewLogObserver creates an observer logging through logger.
func NewLogObserver(logger *Logger) *LogObserver {
	return &LogObserver{logger: logger.NewComponentLogger("engine")}
}

// Start implements engine.Observer.
func (o *LogObserver) Start(ctx context.Context, rec engine.Record) context.Context {
	// Command and step starts are useful progress at info; attempts are noise.
	level := zerolog.InfoLevel
	if rec.Level == engine.LevelAction {
		level = zerolog.DebugLevel
	}
	o.event(level, rec).Msgf("%s started", rec.Level)
	return ctx
}

// End implements engine.Observer.
func (o *LogObserver) End(_ context.Context, rec engine.Record) {
	level := zerolog.InfoLevel
	switch {
	case rec.Status == engine.StatusFailed && rec.Level == engine.LevelAction:
		level = zerolog.WarnLevel
	case rec.Status == engine.StatusFailed:
		level = zerolog.ErrorLevel
	case rec.Level == engine.LevelAction:
		level = zerolog.DebugLevel
	}

	ev := o.event(level, rec).
		Str("status", string(rec.Status)).
		Dur("duration", rec.Duration)
	if rec.Err != nil {
		ev = ev.Err(rec.Err)
		if ee, ok := engine.AsEngineError(rec.Err); ok {
			ev = ev.Str("error_kind", string(ee.Kind)).Str("error_class", string(ee.Class))
		}
	}
	ev.Msgf("%s finished", rec.Level)
}

func (o *LogObserver) event(level zerolog.Level, rec engine.Record) *zerolog.Event {
	zl := o.logger.Zerolog()
	ev := zl.WithLevel(level).
		Str("run_id", rec.RunID).
		Str("command", rec.Command).
		Str("environment", rec.Environment)
	if rec.Step != "" {
		ev = ev.Str("step", rec.Step)
	}
	if rec.Action != "" {
		ev = ev.Str("action", rec.Action).Int("attempt", rec.Attempt)
	}
	return ev
}

// TraceObserver opens one span per command, step and action attempt.
type TraceObserver struct {
	tracer *Tracer
}

// NewTraceObserver creates an observer recording spans through tracer.
func NewTraceObserver(tracer *Tracer) *TraceObserver {
	return &TraceObserver{tracer: tracer}
}

// Start implements engine.Observer.
func (o *TraceObserver) Start(ctx context.Context, rec engine.Record) context.Context {
	name, attrs := spanFor(rec)
	ctx, _ = o.tracer.Start(ctx, name, trace.WithAttributes(attrs...), trace.WithTimestamp(rec.StartedAt))
	return ctx
}

// End implements engine.Observer.
func (o *TraceObserver) End(ctx context.Context, rec engine.Record) {
	span := trace.SpanFromContext(ctx)
	recordOutcome(span, rec)
	span.End(trace.WithTimestamp(rec.StartedAt.Add(rec.Duration)))
}

// MetricsObserver feeds command, step and action outcomes into Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer updating metrics.
func NewMetricsObserver(metrics *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: metrics}
}

// Start implements engine.Observer.
func (o *MetricsObserver) Start(ctx context.Context, _ engine.Record) context.Context {
	return ctx
}

// End implements engine.Observer.
func (o *MetricsObserver) End(_ context.Context, rec engine.Record) {
	status := string(rec.Status)
	switch rec.Level {
	case engine.LevelCommand:
		o.metrics.RecordCommand(rec.Command, status, rec.Duration)
		if rec.Err != nil {
			ee := engine.Classify(rec.Err)
			o.metrics.RecordError(string(ee.Kind), string(ee.Class))
		}
	case engine.LevelStep:
		o.metrics.RecordStep(rec.Command, rec.Step, status, rec.Duration)
	case engine.LevelAction:
		o.metrics.RecordActionAttempt(rec.Action, status, rec.Attempt, rec.Duration)
	}
}
