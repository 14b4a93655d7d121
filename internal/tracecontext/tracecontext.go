package tracecontext

import (
	"math/rand/v2"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/GriffinCanCode/apmcore/internal/shared/id"
)

// Propagation header names
const (
	TraceParentHeader       = "traceparent"
	TraceStateHeader        = "tracestate"
	VendorTraceParentHeader = "elastic-apm-traceparent"
)

// Options configures how contexts are generated
type Options struct {
	// Generator supplies random ids; id.Default() when nil
	Generator *id.Generator
	// MaxTraceStateLength bounds the rendered tracestate header
	MaxTraceStateLength int
}

func (o Options) generator() *id.Generator {
	if o.Generator == nil {
		return id.Default()
	}
	return o.Generator
}

// Sampler makes the root sampling decision
type Sampler struct {
	rate   float64
	random func() float64
}

// NewSampler creates a sampler for rate. random defaults to math/rand/v2.
func NewSampler(rate float64, random func() float64) Sampler {
	if random == nil {
		random = rand.Float64
	}
	return Sampler{rate: RoundSampleRate(rate), random: random}
}

// Rate returns the configured sample rate
func (s Sampler) Rate() float64 { return s.rate }

// Sample samples iff random() <= rate. A zero rate never samples.
func (s Sampler) Sample() bool {
	if s.rate <= 0 {
		return false
	}
	random := s.random
	if random == nil {
		random = rand.Float64
	}
	return random() <= s.rate
}

// TraceContext is the propagable identity of one trace node. It is owned by
// the transaction or span that created it.
type TraceContext struct {
	traceParent TraceParent
	traceState  *TraceState
	remote      bool
	gen         *id.Generator
}

// Start begins a new trace. The sample rate is recorded verbatim in the
// tracestate, or 0 when the trace is not sampled.
func Start(sampled bool, rate float64, opts Options) *TraceContext {
	gen := opts.generator()
	ts := NewTraceState(opts.MaxTraceStateLength)
	if sampled {
		ts.SetSampleRate(rate)
	} else {
		ts.SetSampleRate(0)
	}
	return &TraceContext{
		traceParent: NewRootTraceParent(gen, sampled),
		traceState:  ts,
		gen:         gen,
	}
}

// Resume parses inbound headers into a remote context. A malformed
// traceparent is never an error: a fresh trace is started instead using
// the sampler's decision.
func Resume(traceparent, tracestate string, sampler Sampler, opts Options) *TraceContext {
	tp, err := ParseTraceParent(traceparent)
	if err != nil {
		return Start(sampler.Sample(), sampler.Rate(), opts)
	}
	return &TraceContext{
		traceParent: tp,
		traceState:  ParseTraceState(tracestate, opts.MaxTraceStateLength),
		remote:      true,
		gen:         opts.generator(),
	}
}

// StartOrResume returns the context for a new local root: a child of the
// inbound context when it parses, otherwise a fresh trace.
func StartOrResume(traceparent, tracestate string, sampler Sampler, opts Options) *TraceContext {
	tc := Resume(traceparent, tracestate, sampler, opts)
	if tc.remote {
		return tc.Child()
	}
	return tc
}

// Child derives a context for a direct child node. The tracestate is shared.
func (tc *TraceContext) Child() *TraceContext {
	return &TraceContext{
		traceParent: tc.traceParent.Child(tc.gen),
		traceState:  tc.traceState,
		gen:         tc.gen,
	}
}

// TraceParent returns a copy of the traceparent
func (tc *TraceContext) TraceParent() TraceParent { return tc.traceParent }

// TraceState returns the shared tracestate
func (tc *TraceContext) TraceState() *TraceState { return tc.traceState }

// TraceID returns the trace id
func (tc *TraceContext) TraceID() trace.TraceID { return tc.traceParent.TraceID }

// ID returns this node's id
func (tc *TraceContext) ID() trace.SpanID { return tc.traceParent.ID }

// ParentID returns the parent node's id, invalid for roots
func (tc *TraceContext) ParentID() trace.SpanID { return tc.traceParent.ParentID }

// Sampled reports whether this node is recorded
func (tc *TraceContext) Sampled() bool { return tc.traceParent.Recorded() }

// Remote reports whether the context was parsed from inbound headers
func (tc *TraceContext) Remote() bool { return tc.remote }

// String renders the traceparent header value
func (tc *TraceContext) String() string { return tc.traceParent.String() }

// Inject writes the propagation headers into carrier
func (tc *TraceContext) Inject(carrier Carrier, vendorHeader bool) {
	tp := tc.traceParent.String()
	carrier.Set(TraceParentHeader, tp)
	if vendorHeader {
		carrier.Set(VendorTraceParentHeader, tp)
	}
	if state := tc.traceState.String(); state != "" {
		carrier.Set(TraceStateHeader, state)
	}
}

// ============================================================================
// Carriers
// ============================================================================

// Carrier reads and writes propagation headers
type Carrier interface {
	Get(key string) string
	Set(key, value string)
}

// Extract reads inbound headers, preferring the standard traceparent header
// over the vendor duplicate.
func Extract(carrier Carrier) (traceparent, tracestate string) {
	traceparent = carrier.Get(TraceParentHeader)
	if traceparent == "" {
		traceparent = carrier.Get(VendorTraceParentHeader)
	}
	return traceparent, carrier.Get(TraceStateHeader)
}

// HeaderCarrier adapts http.Header
type HeaderCarrier http.Header

// Get returns the first value for key
func (h HeaderCarrier) Get(key string) string { return http.Header(h).Get(key) }

// Set replaces the value for key
func (h HeaderCarrier) Set(key, value string) { http.Header(h).Set(key, value) }

// MapCarrier adapts a plain map
type MapCarrier map[string]string

// Get returns the value for key
func (m MapCarrier) Get(key string) string { return m[key] }

// Set stores value under key
func (m MapCarrier) Set(key, value string) { m[key] = value }
