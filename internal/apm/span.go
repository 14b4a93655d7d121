package apm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/apmcore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/apmcore/internal/model"
	"github.com/GriffinCanCode/apmcore/internal/tracecontext"
)

// Span is a timed operation inside a transaction. All methods are safe on
// a nil *Span; StartSpan returns nil when nothing would be recorded.
//
// Mutable fields are guarded by the owning transaction's mu.
type Span struct {
	tracer   *Tracer
	tx       *Transaction
	parent   *Span
	tc       *tracecontext.TraceContext
	typ      string
	subtype  string
	action   string
	exit     bool
	start    time.Time
	recorded bool
	startCtx context.Context

	name        string
	ended       bool
	end         time.Time
	duration    time.Duration
	outcome     outcomeState
	discardable bool
	propagated  bool
	destination *Destination
	http        *model.HTTPSpanContext
	labels      map[string]string

	// compression state
	composite *composite
	buffered  *Span
}

func newSpan(t *Tracer, tx *Transaction, parent *Span, tc *tracecontext.TraceContext, name, typ string, start time.Time, o startOptions) *Span {
	s := &Span{
		tracer:      t,
		tx:          tx,
		parent:      parent,
		tc:          tc,
		typ:         typ,
		subtype:     o.subtype,
		action:      o.action,
		exit:        o.exit,
		start:       start,
		name:        name,
		outcome:     newOutcomeState(),
		discardable: o.exit,
		destination: o.destination,
	}

	tx.mu.Lock()
	s.recorded = tx.admitSpanLocked()
	tx.mu.Unlock()

	if s.recorded {
		t.metrics.IncSpansStarted()
	} else {
		t.metrics.IncSpansDropped(monitoring.DropMaxSpans)
	}
	return s
}

func (s *Span) traceContext() *tracecontext.TraceContext { return s.tc }
func (s *Span) asSpan() *Span                           { return s }

func (s *Span) owner() *Transaction {
	if s == nil {
		return nil
	}
	return s.tx
}

// TraceContext returns the span's trace context
func (s *Span) TraceContext() *tracecontext.TraceContext {
	if s == nil {
		return nil
	}
	return s.tc
}

// ID returns the hex span id
func (s *Span) ID() string {
	if s == nil {
		return ""
	}
	return s.tc.ID().String()
}

// TraceID returns the hex trace id
func (s *Span) TraceID() string {
	if s == nil {
		return ""
	}
	return s.tc.TraceID().String()
}

// Transaction returns the owning transaction
func (s *Span) Transaction() *Transaction {
	return s.owner()
}

// Type returns the span type
func (s *Span) Type() string {
	if s == nil {
		return ""
	}
	return s.typ
}

// Subtype returns the span subtype
func (s *Span) Subtype() string {
	if s == nil {
		return ""
	}
	return s.subtype
}

// IsExit reports whether the span represents a call leaving the process
func (s *Span) IsExit() bool {
	return s != nil && s.exit
}

// Recorded reports whether the span was within the transaction's span limit
func (s *Span) Recorded() bool {
	return s != nil && s.recorded
}

// Name returns the current name
func (s *Span) Name() string {
	if s == nil {
		return ""
	}
	s.tx.mu.Lock()
	defer s.tx.mu.Unlock()
	return s.name
}

// SetName renames the span until it ends
func (s *Span) SetName(name string) {
	if s == nil {
		return
	}
	s.tx.mu.Lock()
	defer s.tx.mu.Unlock()
	if !s.ended {
		s.name = name
	}
}

// SetDestination replaces the downstream details
func (s *Span) SetDestination(d Destination) {
	if s == nil {
		return
	}
	s.tx.mu.Lock()
	defer s.tx.mu.Unlock()
	if !s.ended {
		s.destination = &d
	}
}

// SetHTTPRequest records an outbound HTTP request
func (s *Span) SetHTTPRequest(method, url string) {
	if s == nil {
		return
	}
	s.tx.mu.Lock()
	defer s.tx.mu.Unlock()
	if s.http == nil {
		s.http = &model.HTTPSpanContext{}
	}
	s.http.Method = method
	s.http.URL = url
}

// SetLabel attaches a tag reported with the span
func (s *Span) SetLabel(key, value string) {
	if s == nil {
		return
	}
	s.tx.mu.Lock()
	defer s.tx.mu.Unlock()
	if s.labels == nil {
		s.labels = make(map[string]string)
	}
	s.labels[key] = value
}

// Outcome returns the current outcome
func (s *Span) Outcome() Outcome {
	if s == nil {
		return OutcomeUnknown
	}
	s.tx.mu.Lock()
	defer s.tx.mu.Unlock()
	return s.outcome.value
}

// SetOutcome sets the outcome and stops it being inferred
func (s *Span) SetOutcome(o Outcome) error {
	if s == nil {
		return nil
	}
	if !o.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOutcome, o)
	}
	s.tx.mu.Lock()
	defer s.tx.mu.Unlock()
	if s.ended {
		return ErrEnded
	}
	s.outcome.setExplicit(o)
	s.checkDiscardableLocked()
	return nil
}

// SetOutcomeFromHTTPStatus records the response status and, unless the
// outcome is already fixed, derives the outcome from it
func (s *Span) SetOutcomeFromHTTPStatus(code int) {
	if s == nil {
		return
	}
	s.tx.mu.Lock()
	defer s.tx.mu.Unlock()
	if s.ended {
		return
	}
	if s.http == nil {
		s.http = &model.HTTPSpanContext{}
	}
	s.http.StatusCode = code
	s.outcome.setFromHTTPStatus(code)
	s.checkDiscardableLocked()
}

// RecordError marks the outcome as failed unless it is already fixed
func (s *Span) RecordError(err error) {
	if s == nil || err == nil {
		return
	}
	s.tx.mu.Lock()
	defer s.tx.mu.Unlock()
	if s.ended {
		return
	}
	s.outcome.recordError()
	s.checkDiscardableLocked()
}

// Discardable reports whether the span may still be compressed or dropped
func (s *Span) Discardable() bool {
	if s == nil {
		return false
	}
	s.tx.mu.Lock()
	defer s.tx.mu.Unlock()
	return s.discardable
}

// Inject writes propagation headers for an outbound call. A propagated
// span is never compressed or dropped. Ended spans are left untouched.
func (s *Span) Inject(carrier tracecontext.Carrier) {
	if s == nil {
		return
	}
	s.tx.mu.Lock()
	if s.ended {
		s.tx.mu.Unlock()
		s.tracer.logger.Debug("inject on ended span ignored", zap.String("span.id", s.ID()))
		return
	}
	s.propagated = true
	s.discardable = false
	s.tx.mu.Unlock()
	s.tc.Inject(carrier, s.tracer.cfg.UseVendorTraceParentHeader)
}

func (s *Span) checkDiscardableLocked() {
	if s.outcome.value == OutcomeFailure {
		s.discardable = false
	}
}

// Ended reports whether End was called
func (s *Span) Ended() bool {
	if s == nil {
		return false
	}
	s.tx.mu.Lock()
	defer s.tx.mu.Unlock()
	return s.ended
}

// Duration returns the elapsed time, zero until ended. For a composite it
// covers every member.
func (s *Span) Duration() time.Duration {
	if s == nil {
		return 0
	}
	s.tx.mu.Lock()
	defer s.tx.mu.Unlock()
	return s.duration
}

// End ends the span now
func (s *Span) End() {
	if s == nil {
		return
	}
	s.EndAt(s.tracer.now())
}

// EndAt ends the span at end, pops it from the run context and hands it to
// the compression buffer. Ending twice is a logged no-op.
func (s *Span) EndAt(end time.Time) {
	if s == nil {
		return
	}
	t := s.tracer
	tx := s.tx

	tx.mu.Lock()
	if s.ended {
		name := s.name
		tx.mu.Unlock()
		t.logger.Debug("span already ended", zap.String("span.id", s.ID()), zap.String("span.name", name))
		return
	}
	s.ended = true
	if end.Before(s.start) {
		end = s.start
	}
	s.end = end
	s.duration = end.Sub(s.start)
	s.outcome.onEnd()
	s.checkDiscardableLocked()

	var pending []*Span
	if s.recorded {
		pending = tx.compressLocked(s)
	} else {
		if s.buffered != nil {
			pending = append(pending, s.buffered)
			s.buffered = nil
		}
		tx.recordDroppedLocked(s)
	}
	tx.mu.Unlock()

	t.forward(tx, pending)

	rc := t.manager.Active(s.startCtx)
	if next, changed := rc.LeaveSpan(s); changed {
		t.manager.Supersede(s.startCtx, next)
	}
}

// forward applies the exit span minimum duration and submits what is left
func (t *Tracer) forward(tx *Transaction, spans []*Span) {
	if len(spans) == 0 {
		return
	}
	minDuration := t.cfg.ExitSpanMinDuration.Std()

	submit := spans[:0]
	tx.mu.Lock()
	for _, s := range spans {
		if s.discardable && s.duration < minDuration {
			tx.dropSpanLocked(s)
			t.metrics.IncSpansDropped(monitoring.DropExitSpanMinDuration)
			continue
		}
		submit = append(submit, s)
	}
	tx.mu.Unlock()

	for _, s := range submit {
		t.submit(s)
	}
}
