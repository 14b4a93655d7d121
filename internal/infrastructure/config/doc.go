// Package config provides layered configuration for the tracer and the demo service.
//
// Configuration is layered: Default, then an optional YAML or TOML file,
// then environment variables. Variables are named APM_<SECTION>_<FIELD>; the
// bare field name (e.g. PORT) is honored as a fallback.
//
// Configuration Sections:
//   - Service: name, version and environment reported with every event
//   - Tracer: sampling, span limits, compression, propagation, flush timeout
//   - Reporter: sink kind, endpoints, timeouts, rate and size limits
//   - Logging: log level and output format
//   - Server, RateLimit: demo HTTP server settings
//
// Example Usage:
//
//	cfg, err := config.Load("apm.yaml")
//	if err != nil {
//		return err
//	}
//	fmt.Println(cfg.Tracer.TransactionSampleRate)
//
// Environment Variables:
//   - APM_TRACER_TRANSACTION_SAMPLE_RATE, APM_TRACER_TRANSACTION_MAX_SPANS
//   - APM_TRACER_SPAN_COMPRESSION_ENABLED, APM_TRACER_CONTEXT_MANAGER
//   - APM_REPORTER_KIND, APM_REPORTER_SERVER_URL, APM_REPORTER_SECRET_TOKEN
//   - APM_LOG_LEVEL, APM_LOG_DEV, APM_SERVER_PORT
package config
