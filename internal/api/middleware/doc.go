// Package middleware provides the demo server's HTTP middleware: CORS that
// admits trace propagation headers, and per-client or global rate limiting.
package middleware
