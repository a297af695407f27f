package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/openfroyo/deployer/pkg/engine"
)

func noSleep(context.Context, time.Duration) error { return nil }

// flakySteps returns a command whose second step succeeds on the second
// attempt and whose third step fails permanently.
func flakySteps() []engine.Step {
	calls := 0
	flaky := engine.NewAction("wait-for-ssh", func(context.Context) error {
		calls++
		if calls == 1 {
			return engine.NewTransientError("connection refused", nil)
		}
		return nil
	})
	return []engine.Step{
		engine.NewStep("render", engine.NewAction("render-tofu", func(context.Context) error { return nil })),
		engine.NewStep("wait", engine.Retrying(flaky, engine.RetryPolicy{MaxAttempts: 2})),
		engine.NewStep("apply", engine.NewAction("tofu-apply", func(context.Context) error {
			return engine.NewPermanentError("apply failed", nil)
		})),
	}
}

func TestTraceObserver(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := NewTracerWithProvider(provider, "test")

	runner := engine.NewRunner(NewTraceObserver(tracer), engine.WithSleep(noSleep))
	_, err := runner.Run(context.Background(), engine.Invocation{Command: "provision", Environment: "demo"}, flakySteps())
	if err == nil {
		t.Fatal("expected error")
	}

	spans := recorder.Ended()
	// 1 command + 3 steps + 4 action attempts
	if len(spans) != 8 {
		t.Fatalf("got %d spans, want 8", len(spans))
	}

	byName := make(map[string][]sdktrace.ReadOnlySpan)
	for _, s := range spans {
		byName[s.Name()] = append(byName[s.Name()], s)
	}

	cmd := byName["command.provision"]
	if len(cmd) != 1 {
		t.Fatalf("command spans = %d, want 1", len(cmd))
	}
	if cmd[0].Status().Code != codes.Error {
		t.Errorf("command span status = %v, want Error", cmd[0].Status().Code)
	}

	attempts := byName["action.wait-for-ssh"]
	if len(attempts) != 2 {
		t.Fatalf("wait-for-ssh spans = %d, want 2", len(attempts))
	}
	if attempts[1].Status().Code != codes.Ok {
		t.Errorf("second attempt status = %v, want Ok", attempts[1].Status().Code)
	}

	step := byName["step.wait"][0]
	if attempts[0].Parent().SpanID() != step.SpanContext().SpanID() {
		t.Error("action span is not a child of its step span")
	}
	if step.Parent().SpanID() != cmd[0].SpanContext().SpanID() {
		t.Error("step span is not a child of the command span")
	}
}

func TestMetricsObserver(t *testing.T) {
	metrics := NewMetrics("deployer", MetricsConfig{})
	runner := engine.NewRunner(NewMetricsObserver(metrics), engine.WithSleep(noSleep))

	_, _ = runner.Run(context.Background(), engine.Invocation{Command: "provision", Environment: "demo"}, flakySteps())

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"failed commands", testutil.ToFloat64(metrics.commandsTotal.WithLabelValues("provision", "failed")), 1},
		{"succeeded steps", testutil.ToFloat64(metrics.stepsTotal.WithLabelValues("provision", "wait", "succeeded")), 1},
		{"failed steps", testutil.ToFloat64(metrics.stepsTotal.WithLabelValues("provision", "apply", "failed")), 1},
		{"retries", testutil.ToFloat64(metrics.actionRetries.WithLabelValues("wait-for-ssh")), 1},
		{"failed attempts", testutil.ToFloat64(metrics.actionAttempts.WithLabelValues("wait-for-ssh", "failed")), 1},
		{"errors", testutil.ToFloat64(metrics.errorsTotal.WithLabelValues("action", "permanent")), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "debug", Format: "json"}, &buf)
	runner := engine.NewRunner(NewLogObserver(logger), engine.WithSleep(noSleep))

	_, _ = runner.Run(context.Background(), engine.Invocation{Command: "provision", Environment: "demo"}, flakySteps())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	// start+end for 1 command, 3 steps and 4 attempts
	if len(lines) != 16 {
		t.Fatalf("got %d log lines, want 16:\n%s", len(lines), buf.String())
	}

	var last map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatalf("last line is not JSON: %v", err)
	}
	want := map[string]any{
		"level":       "error",
		"component":   "engine",
		"command":     "provision",
		"environment": "demo",
		"status":      "failed",
		"error_kind":  "action",
		"error_class": "permanent",
		"message":     "command finished",
	}
	for k, v := range want {
		if last[k] != v {
			t.Errorf("%s = %v, want %v", k, last[k], v)
		}
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.WithEnvironment("demo").Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message logged at warn level")
	}
	if !strings.Contains(out, `"environment":"demo"`) || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Exporter = "jaeger" }, true},
		{"otlp without endpoint", func(c *Config) { c.Tracing.Exporter = "otlp" }, true},
		{"bad sampling", func(c *Config) { c.Tracing.SamplingRate = 2 }, true},
		{"no service name", func(c *Config) { c.ServiceName = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
