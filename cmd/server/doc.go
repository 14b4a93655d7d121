// Package main runs the apmcore demo service: a gin server traced by the
// apm tracer, reporting through the configured reporter.
//
// Configuration layers defaults, an optional YAML or TOML file, a dotenv
// file and APM_* environment variables, in that order.
//
// Usage:
//
//	# Log reporter, development logging
//	./server --dev
//
//	# Ship to an intake server
//	APM_REPORTER_KIND=http APM_REPORTER_SERVER_URL=http://localhost:8200 ./server -c apm.yaml
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown, flushing buffered events
package main
