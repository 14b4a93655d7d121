// Package logging provides structured logging using uber/zap.
//
// This package offers two modes:
//   - Production: JSON output with ECS-style keys, so trace.id and
//     transaction.id fields line up with the events a reporter ships
//   - Development: Colored console output for human readability
//
// Each tracer component logs through a named sub-logger (tracer, pipeline,
// reporter, runctx, instrumentation). Anomalies the tracer tolerates, such
// as a double End or a malformed inbound header, are logged at debug.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	tracerLog := logger.Component(logging.ComponentTracer)
//	tracerLog.Warn("flush timed out", zap.Duration("timeout", d))
package logging
