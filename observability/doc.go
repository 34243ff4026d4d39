// Package observability wires OpenTelemetry tracing and metrics into podflow.
//
// Exporters speak OTLP over HTTP and are only started when enabled in
// configuration; otherwise the global no-op providers stay in place and
// every helper here is safe to call.
//
//	shutdown, err := observability.Init(ctx, cfg, "podflow", version.Version)
//	defer shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter("podflow"))
//	metrics.RecordRun(ctx, "SUCCEEDED", elapsed)
package observability
