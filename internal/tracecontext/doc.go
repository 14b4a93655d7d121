/*
Package tracecontext implements the portable trace identifier carried between
services.

# Overview

A TraceContext is one TraceParent (version, trace id, span id, parent id,
flags) plus a TraceState shared by every node of the local trace tree. The
wire form follows W3C trace-context:

	traceparent: 00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-03
	tracestate:  es=s:0.5,vendor=opaque

# Flags

Two flag bits are tracked:
  - FlagRequested (0x01): the trace root asked for this trace to be recorded
  - FlagRecorded  (0x02): this node is recorded

A child's recorded bit always mirrors its parent's requested bit.

# Usage

	sampler := tracecontext.NewSampler(0.5, nil)
	tc := tracecontext.StartOrResume(req.Header.Get("traceparent"),
		req.Header.Get("tracestate"), sampler, opts)

	child := tc.Child()
	child.Inject(tracecontext.HeaderCarrier(out.Header), false)

Inbound headers are never rejected: a malformed traceparent silently starts a
fresh trace.
*/
package tracecontext
