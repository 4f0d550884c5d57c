// Package telemetry provides observability for geolog: structured logging
// (zerolog), tracing (OpenTelemetry) and metrics (Prometheus).
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Metrics.Enabled = true
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	if _, err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Tests and embedders that want no output use telemetry.Nop().
//
// # Logging
//
//	logger := tel.Logger.NewComponentLogger("interpreter")
//	logger.WithQuery("member(X, [1,2])").Info("running query")
//
// Log levels: trace, debug, info, warn, error, fatal, disabled.
//
// # Tracing
//
// The interpreter opens one span per boot, consult and query. Consult and
// query go through StartOperation, which also tags the logger with the
// trace and span IDs:
//
//	op := telemetry.StartOperation(tel.WithContext(ctx), "interpreter.query")
//	defer op.End(err)
//
// Supported exporters: otlp (gRPC), stdout (written to stderr), none.
//
// # Metrics
//
// All recording methods are safe on a nil or disabled *Metrics:
//
//	tel.Metrics.RecordQuery(telemetry.OutcomeSolutions, elapsed)
//	tel.Metrics.RecordPredicateCall("geolog", "iterate", "retry", elapsed)
//	tel.Metrics.SetHandles(refs.Len())
//
// Exposed series (namespace "geolog" by default):
//
//	geolog_queries_total{outcome}
//	geolog_query_duration_seconds{outcome}
//	geolog_consults_total{status}
//	geolog_predicate_calls_total{module,name,result}
//	geolog_predicate_call_duration_seconds{module,name}
//	geolog_live_handles
//	geolog_errors_by_class_total{class}
//	geolog_errors_by_code_total{code}
package telemetry
