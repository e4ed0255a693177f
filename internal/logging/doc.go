// Package logging provides structured logging with OpenTelemetry integration.
//
// The package wraps Zap with:
//   - a Trace level (-2, below Debug)
//   - stdout and optional OpenTelemetry log output
//   - automatic context fields (trace_id, span_id, request.id, job.id)
//   - level-aware sampling (errors are never sampled)
//
// Create a logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx = logging.WithJobID(ctx, jobID)
//	logger.Info(ctx, "job completed", zap.Duration("duration", d))
//
// Tests use NewTestLogger, which records entries in memory.
package logging
