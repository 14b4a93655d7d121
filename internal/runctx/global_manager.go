package runctx

import (
	"context"
	"sync/atomic"

	"github.com/kataras/go-events"
)

// GlobalManager keeps one process-wide active snapshot. Callbacks bound
// through it swap their snapshot in and restore the previous one after,
// so it is only correct while bound callbacks do not overlap.
type GlobalManager struct {
	current atomic.Pointer[RunContext]
}

// NewGlobalManager creates a process-wide manager starting at Root
func NewGlobalManager() *GlobalManager {
	m := &GlobalManager{}
	m.current.Store(root)
	return m
}

// Mode returns ModeGlobal
func (m *GlobalManager) Mode() Mode { return ModeGlobal }

// Root returns the empty snapshot
func (m *GlobalManager) Root() *RunContext { return root }

// Active returns the process-wide snapshot; ctx is ignored
func (m *GlobalManager) Active(_ context.Context) *RunContext {
	if rc := m.current.Load(); rc != nil {
		return rc
	}
	return root
}

// Supersede swaps the process-wide snapshot and returns ctx unchanged
func (m *GlobalManager) Supersede(ctx context.Context, rc *RunContext) context.Context {
	m.current.Store(orRoot(rc))
	return orBackground(ctx)
}

// Enter is Supersede: there is only one snapshot to replace
func (m *GlobalManager) Enter(ctx context.Context, rc *RunContext) context.Context {
	return m.Supersede(ctx, rc)
}

// With swaps rc in for the duration of fn
func (m *GlobalManager) With(ctx context.Context, rc *RunContext, fn func(ctx context.Context)) {
	prev := m.current.Swap(orRoot(rc))
	defer m.current.Store(prev)
	fn(orBackground(ctx))
}

// Bind wraps fn so it runs with rc active
func (m *GlobalManager) Bind(rc *RunContext, fn func(ctx context.Context)) func(ctx context.Context) {
	return bind(m, rc, fn)
}

// BindEmitter wraps ee so its listeners run with rc active
func (m *GlobalManager) BindEmitter(rc *RunContext, ee events.EventEmmiter) *BoundEmitter {
	return newBoundEmitter(m, rc, ee)
}

// Go runs fn on a new goroutine with the current snapshot swapped in
func (m *GlobalManager) Go(ctx context.Context, fn func(ctx context.Context)) {
	spawn(m, ctx, fn)
}
