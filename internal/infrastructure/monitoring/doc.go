/*
Package monitoring provides Prometheus metrics for the tracer and its
delivery path.

# Overview

Collectors are registered against an injected prometheus.Registerer, so
several Metrics can coexist (one per test, one per tracer). Every method
is safe on a nil *Metrics.

# Features

- Tracer metrics (transactions, spans started, dropped by reason, compressed)
- Pipeline metrics (in-flight events, send results, flush latency, timeouts)
- Reporter metrics (requests by status, latency, payload bytes)
- HTTP request metrics for the demo service
- JSON snapshot for health endpoints

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(monitoring.Handler(reg)))

	timer := monitoring.NewTimer(metrics, "http")
	// ... send a batch ...
	timer.Stop("success", n)
*/
package monitoring
