package apm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/apmcore/internal/model"
	"github.com/GriffinCanCode/apmcore/internal/tracecontext"
)

// Transaction is the root unit of work of one service in a trace. All
// methods are safe on a nil *Transaction.
//
// mu guards the transaction and the mutable state of every span in it,
// including the compression buffers.
type Transaction struct {
	tracer     *Tracer
	tc         *tracecontext.TraceContext
	typ        string
	start      time.Time
	sampleRate *float64
	startCtx   context.Context

	mu           sync.Mutex
	name         string
	result       string
	outcome      outcomeState
	ended        bool
	duration     time.Duration
	spansStarted int
	spansDropped int
	dropped      droppedStats
	buffered     *Span
	request      *model.Request
	response     *model.Response
	labels       map[string]string
}

func newTransaction(t *Tracer, tc *tracecontext.TraceContext, name, typ string, start time.Time) *Transaction {
	tx := &Transaction{
		tracer:  t,
		tc:      tc,
		typ:     typ,
		start:   start,
		name:    name,
		outcome: newOutcomeState(),
	}
	if rate, ok := tc.TraceState().SampleRate(); ok {
		tx.sampleRate = &rate
	}
	return tx
}

func (tx *Transaction) traceContext() *tracecontext.TraceContext { return tx.tc }
func (tx *Transaction) owner() *Transaction                     { return tx }
func (tx *Transaction) asSpan() *Span                           { return nil }

// TraceContext returns the transaction's trace context
func (tx *Transaction) TraceContext() *tracecontext.TraceContext {
	if tx == nil {
		return nil
	}
	return tx.tc
}

// TraceID returns the hex trace id
func (tx *Transaction) TraceID() string {
	if tx == nil {
		return ""
	}
	return tx.tc.TraceID().String()
}

// ID returns the hex transaction id
func (tx *Transaction) ID() string {
	if tx == nil {
		return ""
	}
	return tx.tc.ID().String()
}

// Type returns the transaction type
func (tx *Transaction) Type() string {
	if tx == nil {
		return ""
	}
	return tx.typ
}

// Sampled reports whether spans are recorded for this transaction
func (tx *Transaction) Sampled() bool {
	return tx != nil && tx.tc.Sampled()
}

// Name returns the current name
func (tx *Transaction) Name() string {
	if tx == nil {
		return ""
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.name
}

// SetName renames the transaction until it ends
func (tx *Transaction) SetName(name string) {
	if tx == nil {
		return
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if !tx.ended {
		tx.name = name
	}
}

// Result returns the result string
func (tx *Transaction) Result() string {
	if tx == nil {
		return ""
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.result
}

// SetResult sets the result, e.g. "HTTP 2xx"
func (tx *Transaction) SetResult(result string) {
	if tx == nil {
		return
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if !tx.ended {
		tx.result = result
	}
}

// SetRequest records the inbound request
func (tx *Transaction) SetRequest(method, url string) {
	if tx == nil {
		return
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.request = &model.Request{Method: method, URL: url}
}

// SetLabel attaches a tag reported with the transaction
func (tx *Transaction) SetLabel(key, value string) {
	if tx == nil {
		return
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.labels == nil {
		tx.labels = make(map[string]string)
	}
	tx.labels[key] = value
}

// Outcome returns the current outcome
func (tx *Transaction) Outcome() Outcome {
	if tx == nil {
		return OutcomeUnknown
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.outcome.value
}

// SetOutcome sets the outcome and stops it being inferred
func (tx *Transaction) SetOutcome(o Outcome) error {
	if tx == nil {
		return nil
	}
	if !o.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOutcome, o)
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.ended {
		return ErrEnded
	}
	tx.outcome.setExplicit(o)
	return nil
}

// SetOutcomeFromHTTPStatus records the response status, derives the result
// and, unless the outcome is already fixed, the outcome
func (tx *Transaction) SetOutcomeFromHTTPStatus(code int) {
	if tx == nil {
		return
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.ended {
		return
	}
	tx.response = &model.Response{StatusCode: code}
	if tx.result == "" {
		tx.result = httpResult(code)
	}
	tx.outcome.setFromHTTPStatus(code)
}

// RecordError marks the outcome as failed unless it is already fixed
func (tx *Transaction) RecordError(err error) {
	if tx == nil || err == nil {
		return
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if !tx.ended {
		tx.outcome.recordError()
	}
}

// Ended reports whether End was called
func (tx *Transaction) Ended() bool {
	if tx == nil {
		return false
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.ended
}

// Duration returns the elapsed time, zero until ended
func (tx *Transaction) Duration() time.Duration {
	if tx == nil {
		return 0
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.duration
}

// SpanCount returns the started and dropped span counters
func (tx *Transaction) SpanCount() (started, dropped int) {
	if tx == nil {
		return 0, 0
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.spansStarted, tx.spansDropped
}

// Inject writes propagation headers for calls made on behalf of the
// transaction
func (tx *Transaction) Inject(carrier tracecontext.Carrier) {
	if tx == nil {
		return
	}
	tx.tc.Inject(carrier, tx.tracer.cfg.UseVendorTraceParentHeader)
}

// End ends the transaction now
func (tx *Transaction) End() {
	if tx == nil {
		return
	}
	tx.EndAt(tx.tracer.now())
}

// EndAt ends the transaction at end. Ending twice is a logged no-op.
func (tx *Transaction) EndAt(end time.Time) {
	if tx == nil {
		return
	}
	t := tx.tracer

	tx.mu.Lock()
	if tx.ended {
		tx.mu.Unlock()
		t.logger.Debug("transaction already ended",
			zap.String("transaction.id", tx.ID()), zap.String("transaction.name", tx.Name()))
		return
	}
	tx.ended = true
	tx.duration = nonNegative(end.Sub(tx.start))
	tx.outcome.onEnd()
	var pending []*Span
	if tx.buffered != nil {
		pending = append(pending, tx.buffered)
		tx.buffered = nil
	}
	tx.mu.Unlock()

	t.forward(tx, pending)

	rc := t.manager.Active(tx.startCtx)
	if cur, ok := rc.Transaction().(*Transaction); ok && cur == tx {
		t.manager.Supersede(tx.startCtx, rc.LeaveTrans())
	}

	if tx.Sampled() || t.cfg.SendUnsampledTransactions {
		t.submit(tx)
	}
}

// ============================================================================
// Span accounting, all called with mu held
// ============================================================================

// admitSpanLocked counts a new span and reports whether it is recorded
func (tx *Transaction) admitSpanLocked() bool {
	limit := tx.tracer.cfg.TransactionMaxSpans
	if limit >= 0 && tx.spansStarted >= limit {
		tx.spansDropped++
		return false
	}
	tx.spansStarted++
	return true
}

// dropSpanLocked moves a recorded span to the dropped counters. A composite
// counts once per member.
func (tx *Transaction) dropSpanLocked(s *Span) {
	count, sum := 1, s.duration
	if c := s.composite; c != nil {
		count, sum = c.count, c.sum
	}
	tx.spansStarted -= count
	tx.spansDropped += count
	tx.dropped.add(s.typ, s.subtype, resourceOf(s), s.outcome.value, count, sum)
}

func (tx *Transaction) recordDroppedLocked(s *Span) {
	tx.dropped.add(s.typ, s.subtype, resourceOf(s), s.outcome.value, 1, s.duration)
}

func httpResult(code int) string {
	if code < 100 || code > 599 {
		return ""
	}
	return fmt.Sprintf("HTTP %dxx", code/100)
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
