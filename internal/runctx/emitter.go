package runctx

import (
	"context"

	"github.com/kataras/go-events"
)

// Listener receives an event with the bound snapshot active in ctx
type Listener func(ctx context.Context, payload ...interface{})

// BoundEmitter is an event emitter whose listeners observe a fixed
// RunContext, whichever goroutine emits
type BoundEmitter struct {
	mgr Manager
	rc  *RunContext
	ee  events.EventEmmiter
}

func newBoundEmitter(mgr Manager, rc *RunContext, ee events.EventEmmiter) *BoundEmitter {
	if ee == nil {
		ee = events.New()
	}
	return &BoundEmitter{mgr: mgr, rc: orRoot(rc), ee: ee}
}

func (b *BoundEmitter) wrap(l Listener) events.Listener {
	return func(payload ...interface{}) {
		b.mgr.With(context.Background(), b.rc, func(ctx context.Context) {
			l(ctx, payload...)
		})
	}
}

// On registers a listener for name
func (b *BoundEmitter) On(name string, l Listener) {
	b.ee.On(events.EventName(name), b.wrap(l))
}

// Once registers a listener removed after its first call
func (b *BoundEmitter) Once(name string, l Listener) {
	b.ee.Once(events.EventName(name), b.wrap(l))
}

// Emit fires name on the underlying emitter
func (b *BoundEmitter) Emit(name string, payload ...interface{}) {
	b.ee.Emit(events.EventName(name), payload...)
}

// ListenerCount returns the number of listeners registered for name
func (b *BoundEmitter) ListenerCount(name string) int {
	return b.ee.ListenerCount(events.EventName(name))
}

// RunContext returns the bound snapshot
func (b *BoundEmitter) RunContext() *RunContext { return b.rc }

// Emitter returns the wrapped emitter
func (b *BoundEmitter) Emitter() events.EventEmmiter { return b.ee }
