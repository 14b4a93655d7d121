/*
Package reporter ships encoded events to a backend.

# Overview

A Reporter receives one payload per call and may buffer. Flush pushes
whatever is buffered; it is the only call that must block on the network.
Retries and backoff are the reporter's business, never the caller's.

# Sinks

  - HTTP: ndjson intake (metadata line first), gzip, bounded request size,
    rate limited, retried, behind a circuit breaker
  - OTLP: converts payloads to OTLP spans and exports them over gRPC
  - Log: writes each payload as a structured log entry
  - Memory: keeps payloads in memory, for tests
  - Nop: discards everything

# Usage

	r, err := reporter.New(cfg.Reporter, meta, logger, metrics)
	if err != nil {
		return err
	}
	defer r.Flush(ctx)
*/
package reporter
