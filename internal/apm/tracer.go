package apm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/apmcore/internal/infrastructure/config"
	"github.com/GriffinCanCode/apmcore/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apmcore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/apmcore/internal/pipeline"
	"github.com/GriffinCanCode/apmcore/internal/reporter"
	"github.com/GriffinCanCode/apmcore/internal/runctx"
	"github.com/GriffinCanCode/apmcore/internal/shared/id"
	"github.com/GriffinCanCode/apmcore/internal/tracecontext"
)

// Tracer creates transactions and spans and forwards ended ones to the
// event pipeline
type Tracer struct {
	cfg      config.TracerConfig
	manager  runctx.Manager
	pipeline *pipeline.Pipeline
	sampler  tracecontext.Sampler
	tcOpts   tracecontext.Options
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	now      func() time.Time
	random   func() float64
	gen      *id.Generator
}

// New creates a Tracer sending to rep
func New(cfg config.TracerConfig, rep reporter.Reporter, opts ...Option) *Tracer {
	t := &Tracer{
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.manager == nil {
		t.manager = runctx.NewManager(runctx.Mode(cfg.ContextManager),
			t.logger.Named(logging.ComponentRunContext))
	}
	if t.cfg.TraceStateMaxLength <= 0 {
		t.cfg.TraceStateMaxLength = tracecontext.DefaultMaxTraceStateLength
	}
	t.sampler = tracecontext.NewSampler(cfg.TransactionSampleRate, t.random)
	t.tcOpts = tracecontext.Options{
		Generator:           t.gen,
		MaxTraceStateLength: t.cfg.TraceStateMaxLength,
	}
	t.pipeline = pipeline.New(rep,
		pipeline.WithLogger(t.logger.Named(logging.ComponentPipeline)),
		pipeline.WithMetrics(t.metrics),
		pipeline.WithFlushTimeout(cfg.FlushTimeout.Std()))

	t.logger.Debug("tracer created",
		zap.Float64("sample_rate", t.sampler.Rate()),
		zap.Int("max_spans", cfg.TransactionMaxSpans),
		zap.Bool("span_compression", cfg.SpanCompressionEnabled),
		zap.String("context_manager", string(t.manager.Mode())))
	return t
}

// Config returns the tracer settings
func (t *Tracer) Config() config.TracerConfig { return t.cfg }

// Manager returns the run context manager
func (t *Tracer) Manager() runctx.Manager { return t.manager }

// ============================================================================
// Starting
// ============================================================================

// StartTransaction begins a transaction and makes it active in the returned
// context. Inbound headers given with TraceHeaders are continued; malformed
// ones start a fresh trace.
func (t *Tracer) StartTransaction(ctx context.Context, name, transactionType string, opts ...StartOption) (context.Context, *Transaction) {
	if ctx == nil {
		ctx = context.Background()
	}
	o := applyStartOptions(opts)

	var tc *tracecontext.TraceContext
	if o.traceparent != "" {
		tc = tracecontext.StartOrResume(o.traceparent, o.tracestate, t.sampler, t.tcOpts)
	} else {
		tc = tracecontext.Start(t.sampler.Sample(), t.sampler.Rate(), t.tcOpts)
	}

	start := o.start
	if start.IsZero() {
		start = t.now()
	}
	tx := newTransaction(t, tc, name, transactionType, start)
	t.metrics.IncTransactionsStarted(tx.Sampled())

	ctx = t.manager.Enter(ctx, t.manager.Active(ctx).EnterTrans(tx))
	tx.startCtx = ctx
	return ctx, tx
}

// StartSpan begins a span under the ChildOf parent, else the active span,
// else the active transaction. It returns a nil *Span, which is safe to use,
// when there is no transaction or the transaction is not sampled.
func (t *Tracer) StartSpan(ctx context.Context, name, spanType string, opts ...StartOption) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	o := applyStartOptions(opts)

	parent := o.parent
	if parent == nil || parent.owner() == nil {
		parent = t.activeParent(ctx)
	}
	if parent == nil {
		t.logger.Debug("no active transaction, span not created", zap.String("span", name))
		return ctx, nil
	}
	tx := parent.owner()
	if !tx.Sampled() {
		t.metrics.IncSpansDropped(monitoring.DropUnsampled)
		return ctx, nil
	}

	start := o.start
	if start.IsZero() {
		start = t.now()
	}
	s := newSpan(t, tx, parent.asSpan(), parent.traceContext().Child(), name, spanType, start, o)

	ctx = t.manager.Enter(ctx, t.manager.Active(ctx).EnterSpan(s))
	s.startCtx = ctx
	return ctx, s
}

func (t *Tracer) activeParent(ctx context.Context) Parent {
	rc := t.manager.Active(ctx)
	if s, ok := rc.CurrentSpan().(*Span); ok && s != nil {
		return s
	}
	if tx := t.CurrentTransaction(ctx); tx != nil {
		return tx
	}
	return nil
}

// CurrentTransaction returns the active transaction or nil. A context
// derived before the transaction ended still names it, so ended
// transactions are skipped.
func (t *Tracer) CurrentTransaction(ctx context.Context) *Transaction {
	tx, _ := t.manager.Active(ctx).Transaction().(*Transaction)
	if tx == nil || tx.Ended() {
		return nil
	}
	return tx
}

// CurrentSpan returns the innermost active span that has not ended, or nil
func (t *Tracer) CurrentSpan(ctx context.Context) *Span {
	s, _ := t.manager.Active(ctx).CurrentSpan().(*Span)
	return s
}

// Inject writes propagation headers for the active span or transaction.
// It reports false when nothing is active.
func (t *Tracer) Inject(ctx context.Context, carrier tracecontext.Carrier) bool {
	if s := t.CurrentSpan(ctx); s != nil {
		s.Inject(carrier)
		return true
	}
	if tx := t.CurrentTransaction(ctx); tx != nil {
		tx.Inject(carrier)
		return true
	}
	return false
}

// ============================================================================
// Delivery
// ============================================================================

// Flush waits for every event forwarded so far, bounded by the flush
// timeout, then flushes the reporter
func (t *Tracer) Flush(ctx context.Context) error {
	return t.pipeline.Flush(ctx)
}

// FlushFunc is the callback form of Flush
func (t *Tracer) FlushFunc(cb func(error)) {
	t.pipeline.FlushFunc(cb)
}

// Close flushes and closes the reporter; later events are discarded
func (t *Tracer) Close(ctx context.Context) error {
	return t.pipeline.Close(ctx)
}

func (t *Tracer) submit(ev pipeline.Encoder) {
	if err := t.pipeline.Submit(ev); err != nil {
		t.logger.Debug("event discarded", zap.Error(err))
	}
}
