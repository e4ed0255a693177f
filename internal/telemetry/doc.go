// Package telemetry wires OpenTelemetry tracing and metrics for finplan.
//
// Spans are created around job execution and projection messages; meters
// back the HTTP and job instruments. When telemetry is disabled the global
// no-op providers are returned, so instrumented code never branches on it.
//
//	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	ctx, span := tel.Tracer("finplan.jobs").Start(ctx, "job.run")
//	defer span.End()
//
// Failures to build exporters degrade the instance instead of failing startup.
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
