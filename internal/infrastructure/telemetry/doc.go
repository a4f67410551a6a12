// Package telemetry configures OpenTelemetry tracing for the auth service.
//
// Spans are exported over OTLP/HTTP in batches. When tracing is disabled the
// global no-op provider stays in place and Init returns a no-op shutdown, so
// instrumented code never needs to check whether tracing is on.
//
// Usage:
//
//	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, version)
//	if err != nil {
//	    return err
//	}
//	defer shutdown(context.Background())
package telemetry
