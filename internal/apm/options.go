package apm

import (
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/apmcore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/apmcore/internal/runctx"
	"github.com/GriffinCanCode/apmcore/internal/shared/id"
	"github.com/GriffinCanCode/apmcore/internal/tracecontext"
)

// Option configures a Tracer
type Option func(*Tracer)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *monitoring.Metrics) Option {
	return func(t *Tracer) { t.metrics = m }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(t *Tracer) {
		if now != nil {
			t.now = now
		}
	}
}

// WithRandom replaces the sampler's random source
func WithRandom(random func() float64) Option {
	return func(t *Tracer) { t.random = random }
}

// WithGenerator sets the id generator
func WithGenerator(gen *id.Generator) Option {
	return func(t *Tracer) { t.gen = gen }
}

// WithManager overrides the run context manager chosen by config
func WithManager(m runctx.Manager) Option {
	return func(t *Tracer) { t.manager = m }
}

// ============================================================================
// Start options
// ============================================================================

// Parent is something a span can be started under: a *Transaction or *Span
type Parent interface {
	traceContext() *tracecontext.TraceContext
	owner() *Transaction
	asSpan() *Span
}

// Destination describes the downstream resource of an exit span
type Destination struct {
	Address string
	Port    int
	// Resource groups calls for compression and dropped statistics, e.g. "postgresql"
	Resource string
	// Name optionally identifies the service instance, e.g. a database name
	Name string
}

type startOptions struct {
	start       time.Time
	parent      Parent
	traceparent string
	tracestate  string
	exit        bool
	subtype     string
	action      string
	destination *Destination
}

// StartOption customizes StartTransaction and StartSpan
type StartOption func(*startOptions)

// ChildOf starts the span under p instead of the active span or transaction
func ChildOf(p Parent) StartOption {
	return func(o *startOptions) { o.parent = p }
}

// StartTime backdates the start
func StartTime(t time.Time) StartOption {
	return func(o *startOptions) { o.start = t }
}

// TraceHeaders continues the trace described by inbound headers. Only
// StartTransaction reads it.
func TraceHeaders(traceparent, tracestate string) StartOption {
	return func(o *startOptions) {
		o.traceparent = traceparent
		o.tracestate = tracestate
	}
}

// Exit marks the span as a call leaving the process
func Exit() StartOption {
	return func(o *startOptions) { o.exit = true }
}

// Subtype sets the span subtype, e.g. "postgresql"
func Subtype(subtype string) StartOption {
	return func(o *startOptions) { o.subtype = subtype }
}

// Action sets the span action, e.g. "query"
func Action(action string) StartOption {
	return func(o *startOptions) { o.action = action }
}

// WithDestination attaches downstream details and implies Exit
func WithDestination(d Destination) StartOption {
	return func(o *startOptions) {
		o.destination = &d
		o.exit = true
	}
}

func applyStartOptions(opts []StartOption) startOptions {
	var o startOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
