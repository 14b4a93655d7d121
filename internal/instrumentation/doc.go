// Package instrumentation connects the tracer to the libraries an
// application uses.
//
// Features:
//   - Gin middleware: one transaction per request, continuing inbound
//     traceparent/tracestate headers and skipping ignored URLs
//   - gRPC interceptors: server transactions from incoming metadata and
//     client exit spans that propagate outgoing metadata
//   - Transport: an http.RoundTripper creating exit spans for outbound calls
//   - Registry: maps target identifiers to transformer functions so a loader
//     can instrument modules as they are created, directly or over an
//     EventBus
//
// Example Usage:
//
//	router := gin.New()
//	router.Use(instrumentation.Middleware(tracer))
//
//	client := &http.Client{Transport: instrumentation.NewTransport(tracer, nil)}
package instrumentation
