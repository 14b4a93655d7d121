package runctx

// Transaction is the view of a transaction the store needs
type Transaction interface {
	Ended() bool
}

// Span is the view of a span the store needs
type Span interface {
	Ended() bool
}

// RunContext is an immutable snapshot of the active transaction and the
// stack of active spans. A nil *RunContext behaves like Root().
type RunContext struct {
	trans Transaction
	spans []Span
}

var root = &RunContext{}

// Root returns the empty snapshot
func Root() *RunContext {
	return root
}

// Transaction returns the current transaction, nil if none
func (rc *RunContext) Transaction() Transaction {
	if rc == nil {
		return nil
	}
	return rc.trans
}

// CurrentSpan returns the top-most span that has not ended, nil if none
func (rc *RunContext) CurrentSpan() Span {
	if rc == nil {
		return nil
	}
	for i := len(rc.spans) - 1; i >= 0; i-- {
		if !rc.spans[i].Ended() {
			return rc.spans[i]
		}
	}
	return nil
}

// Spans returns a copy of the span stack, bottom first
func (rc *RunContext) Spans() []Span {
	if rc == nil {
		return nil
	}
	out := make([]Span, len(rc.spans))
	copy(out, rc.spans)
	return out
}

// IsEmpty reports whether neither a transaction nor a span is active
func (rc *RunContext) IsEmpty() bool {
	return rc == nil || (rc.trans == nil && len(rc.spans) == 0)
}

// EnterTrans returns a snapshot with t as the transaction and an empty stack
func (rc *RunContext) EnterTrans(t Transaction) *RunContext {
	return &RunContext{trans: t}
}

// EnterSpan returns a snapshot with s pushed on the stack
func (rc *RunContext) EnterSpan(s Span) *RunContext {
	next := &RunContext{
		trans: rc.Transaction(),
		spans: make([]Span, 0, len(rc.Spans())+1),
	}
	next.spans = append(next.spans, rc.Spans()...)
	next.spans = append(next.spans, s)
	return next
}

// LeaveSpan returns a snapshot with s removed. s is usually the top of the
// stack, but spans may end out of order. When s is not on the stack the
// receiver is returned and changed is false.
func (rc *RunContext) LeaveSpan(s Span) (next *RunContext, changed bool) {
	if rc == nil {
		return root, false
	}

	n := len(rc.spans)
	if n > 0 && rc.spans[n-1] == s {
		// Fast path: s is the current span.
		spans := make([]Span, n-1)
		copy(spans, rc.spans[:n-1])
		return &RunContext{trans: rc.trans, spans: spans}, true
	}

	for i, candidate := range rc.spans {
		if candidate != s {
			continue
		}
		spans := make([]Span, 0, n-1)
		spans = append(spans, rc.spans[:i]...)
		spans = append(spans, rc.spans[i+1:]...)
		return &RunContext{trans: rc.trans, spans: spans}, true
	}
	return rc, false
}

// LeaveTrans returns the empty snapshot
func (rc *RunContext) LeaveTrans() *RunContext {
	return root
}
