// Package server assembles the demo HTTP service: configuration, logging,
// Prometheus metrics, the reporter, the tracer and its instrumentation.
//
// Routes:
//
//	GET /         service identity
//	GET /health   liveness plus a tracer metrics snapshot
//	GET /metrics  Prometheus exposition
//	GET /proxy    fetches ?url= through the instrumented client
//	GET /work     issues ?n= compressible database exit spans
package server
