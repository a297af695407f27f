// Package telemetry provides logging, tracing and metrics for the deployer CLI.
//
// # Overview
//
// Every command invocation builds one Telemetry value from the workspace
// configuration. Its Observer method returns an engine.Observer that turns
// the runner's start and end records into:
//
//   - structured zerolog lines (one per start and end, attempts at debug level)
//   - OpenTelemetry spans nested command > step > action attempt
//   - Prometheus counters and histograms for commands, steps, attempts,
//     retries and errors by kind and class
//
// # Logging
//
// Logs go to stderr so that command results on stdout stay machine readable.
// The console format is the default; json is selected with --log-format or
// the workspace file.
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	logger := tel.Logger.NewComponentLogger("provision").WithEnvironment("demo")
//	logger.Info("provisioning")
//
// # Tracing
//
// Exporters are "none" (default), "stdout" and "otlp" (gRPC). Spans are
// exported synchronously because the process exits right after a command.
//
// # Metrics
//
// Metrics live on a private registry. They are only reachable while a
// command runs, through the optional listen address in the metrics section.
package telemetry
