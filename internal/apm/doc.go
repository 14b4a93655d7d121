// Package apm is the span and transaction lifecycle engine.
//
// A Tracer starts transactions (one per unit of work, optionally continuing
// an inbound trace) and spans beneath them. The active transaction and span
// travel through the run context manager, so any code holding the returned
// context.Context can start children or correlate logs.
//
// Lifecycle:
//   - Start: the parent is the ChildOf option, the active span, or the
//     active transaction. Unsampled transactions get no spans.
//   - Limits: spans past TransactionMaxSpans are timed but not recorded and
//     land in the transaction's dropped statistics.
//   - Outcome: unknown until decided. Explicit calls and HTTP statuses fix it;
//     recorded errors and a clean End only infer it.
//   - End: each parent buffers one ended exit span. Matching siblings merge
//     into a composite (exact_match or same_kind) while the combined span
//     stays under the configured maximum; anything else pushes the buffer
//     out to the pipeline.
//
// Example Usage:
//
//	ctx, tx := tracer.StartTransaction(ctx, "GET /users", "request")
//	defer tx.End()
//
//	ctx, span := tracer.StartSpan(ctx, "SELECT users", "db",
//		apm.Subtype("postgresql"), apm.WithDestination(apm.Destination{Resource: "postgresql"}))
//	rows, err := query(ctx)
//	span.RecordError(err)
//	span.End()
package apm
