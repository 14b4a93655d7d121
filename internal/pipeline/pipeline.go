package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/apmcore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/apmcore/internal/model"
	"github.com/GriffinCanCode/apmcore/internal/reporter"
)

// DefaultFlushTimeout bounds how long Flush waits for in-flight events
const DefaultFlushTimeout = time.Second

var (
	// ErrFlushTimeout is returned when Flush stopped waiting for in-flight events
	ErrFlushTimeout = errors.New("flush timed out waiting for in-flight events")
	// ErrClosed is returned by Submit after Close
	ErrClosed = errors.New("pipeline closed")
)

// Encoder produces the payload for one event. It runs on the send goroutine.
type Encoder interface {
	Encode() (model.Event, error)
}

// EncoderFunc adapts a function to Encoder
type EncoderFunc func() (model.Event, error)

// Encode calls f
func (f EncoderFunc) Encode() (model.Event, error) { return f() }

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithFlushTimeout bounds the wait for in-flight events
func WithFlushTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.flushTimeout = d
		}
	}
}

// Pipeline dispatches encode+send for each event and tracks what is in flight
type Pipeline struct {
	reporter     reporter.Reporter
	logger       *zap.Logger
	metrics      *monitoring.Metrics
	flushTimeout time.Duration

	mu       sync.Mutex
	seq      uint64
	inflight map[uint64]chan struct{}
	closed   bool
}

// New creates a Pipeline sending to rep
func New(rep reporter.Reporter, opts ...Option) *Pipeline {
	if rep == nil {
		rep = reporter.Nop{}
	}
	p := &Pipeline{
		reporter:     rep,
		logger:       zap.NewNop(),
		flushTimeout: DefaultFlushTimeout,
		inflight:     make(map[uint64]chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit registers ev as in flight and starts its encode+send
func (p *Pipeline) Submit(ev Encoder) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.seq++
	seq := p.seq
	done := make(chan struct{})
	p.inflight[seq] = done
	p.mu.Unlock()

	p.metrics.IncInFlight()
	go p.process(seq, done, ev)
	return nil
}

// InFlight returns the number of events not yet released
func (p *Pipeline) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}

func (p *Pipeline) process(seq uint64, done chan struct{}, ev Encoder) {
	defer p.release(seq, done)

	payload, err := encode(ev)
	if err != nil {
		p.metrics.RecordEvent("unknown", "encode_error")
		p.logger.Error("failed to encode event, dropping it", zap.Error(err))
		return
	}

	kind := string(payload.Kind())
	if err := reporter.Send(context.Background(), p.reporter, payload); err != nil {
		p.metrics.RecordEvent(kind, "send_error")
		p.logger.Warn("reporter failed to accept event",
			zap.String("kind", kind), zap.String("id", payload.ID()), zap.Error(err))
		return
	}
	p.metrics.RecordEvent(kind, "success")
}

// encode runs the encoder and validates its output. A panicking encoder
// counts as an encode failure.
func encode(ev Encoder) (payload model.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("encoder panicked: %v", r)
		}
	}()

	payload, err = ev.Encode()
	if err != nil {
		return model.Event{}, err
	}
	if err := payload.Validate(); err != nil {
		return model.Event{}, err
	}
	return payload, nil
}

func (p *Pipeline) release(seq uint64, done chan struct{}) {
	p.mu.Lock()
	delete(p.inflight, seq)
	p.mu.Unlock()

	close(done)
	p.metrics.DecInFlight()
}

// snapshot returns the done channels of everything in flight right now
func (p *Pipeline) snapshot() []chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	waits := make([]chan struct{}, 0, len(p.inflight))
	for _, done := range p.inflight {
		waits = append(waits, done)
	}
	return waits
}

// Flush waits for the events in flight at call time, bounded by the flush
// timeout, then flushes the reporter. A timeout is logged and reported as
// ErrFlushTimeout but the reporter is flushed regardless.
func (p *Pipeline) Flush(ctx context.Context) error {
	return p.flush(ctx, p.snapshot())
}

// FlushFunc is the callback form of Flush. The set of events to wait for is
// fixed before FlushFunc returns.
func (p *Pipeline) FlushFunc(cb func(error)) {
	waits := p.snapshot()
	go func() {
		err := p.flush(context.Background(), waits)
		if cb != nil {
			cb(err)
		}
	}()
}

func (p *Pipeline) flush(ctx context.Context, waits []chan struct{}) error {
	start := time.Now()

	timedOut, err := p.wait(ctx, waits)
	if err != nil {
		return err
	}
	if timedOut {
		p.logger.Warn("flush timed out, continuing without pending events",
			zap.Duration("timeout", p.flushTimeout), zap.Int("pending", p.InFlight()))
	}

	flushErr := p.reporter.Flush(ctx)
	p.metrics.RecordFlush(time.Since(start), timedOut)
	if flushErr != nil {
		flushErr = fmt.Errorf("reporter flush: %w", flushErr)
	}

	var timeoutErr error
	if timedOut {
		timeoutErr = ErrFlushTimeout
	}
	return errors.Join(timeoutErr, flushErr)
}

func (p *Pipeline) wait(ctx context.Context, waits []chan struct{}) (timedOut bool, err error) {
	if len(waits) == 0 {
		return false, nil
	}

	timer := time.NewTimer(p.flushTimeout)
	defer timer.Stop()

	for _, done := range waits {
		select {
		case <-done:
		case <-timer.C:
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return false, nil
}

// Close rejects further events, flushes, and closes the reporter
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.Flush(ctx)
	if cerr := reporter.Close(ctx, p.reporter); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}
