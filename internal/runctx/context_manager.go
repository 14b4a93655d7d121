package runctx

import (
	"context"
	"sync/atomic"

	"github.com/kataras/go-events"
)

// cell holds the active snapshot for one logical task
type cell struct {
	rc atomic.Pointer[RunContext]
}

type cellKey struct{}

func cellFrom(ctx context.Context) *cell {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(cellKey{}).(*cell)
	return c
}

func withCell(ctx context.Context, rc *RunContext) context.Context {
	c := &cell{}
	c.rc.Store(orRoot(rc))
	return context.WithValue(orBackground(ctx), cellKey{}, c)
}

// ContextManager keeps the active snapshot in a cell carried by
// context.Context. Tasks that share a context share the cell; With, Bind
// and Go give the callee a cell of its own.
type ContextManager struct{}

// NewContextManager creates a context-carried manager
func NewContextManager() *ContextManager {
	return &ContextManager{}
}

// Mode returns ModeContext
func (m *ContextManager) Mode() Mode { return ModeContext }

// Root returns the empty snapshot
func (m *ContextManager) Root() *RunContext { return root }

// Active returns the snapshot in ctx's cell, Root when there is none
func (m *ContextManager) Active(ctx context.Context) *RunContext {
	if c := cellFrom(ctx); c != nil {
		if rc := c.rc.Load(); rc != nil {
			return rc
		}
	}
	return root
}

// Supersede stores rc into ctx's cell. When ctx has no cell yet a derived
// context carrying a new one is returned.
func (m *ContextManager) Supersede(ctx context.Context, rc *RunContext) context.Context {
	if c := cellFrom(ctx); c != nil {
		c.rc.Store(orRoot(rc))
		return ctx
	}
	return withCell(ctx, rc)
}

// Enter derives a context with a cell of its own seeded with rc. Tasks
// that started from the same ctx do not see each other's spans.
func (m *ContextManager) Enter(ctx context.Context, rc *RunContext) context.Context {
	return withCell(ctx, rc)
}

// With runs fn with a fresh cell seeded with rc. The caller's cell is
// never touched, so nothing needs restoring.
func (m *ContextManager) With(ctx context.Context, rc *RunContext, fn func(ctx context.Context)) {
	fn(withCell(ctx, rc))
}

// Bind wraps fn so it runs with rc active
func (m *ContextManager) Bind(rc *RunContext, fn func(ctx context.Context)) func(ctx context.Context) {
	return bind(m, rc, fn)
}

// BindEmitter wraps ee so its listeners run with rc active
func (m *ContextManager) BindEmitter(rc *RunContext, ee events.EventEmmiter) *BoundEmitter {
	return newBoundEmitter(m, rc, ee)
}

// Go runs fn on a new goroutine in its own cell
func (m *ContextManager) Go(ctx context.Context, fn func(ctx context.Context)) {
	spawn(m, ctx, fn)
}
