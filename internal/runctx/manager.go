package runctx

import (
	"context"
	"strings"

	"github.com/kataras/go-events"
	"go.uber.org/zap"
)

// Mode selects where the active snapshot lives
type Mode string

const (
	// ModeContext carries the active snapshot inside context.Context
	ModeContext Mode = "context"
	// ModeGlobal keeps one process-wide active snapshot
	ModeGlobal Mode = "global"
)

// Manager makes the active RunContext observable from any continuation
type Manager interface {
	// Mode reports the strategy in use
	Mode() Mode

	// Root returns the empty snapshot
	Root() *RunContext

	// Active returns the snapshot current for ctx, never nil
	Active(ctx context.Context) *RunContext

	// Enter returns a context on which rc is active, leaving ctx's own
	// snapshot as it was
	Enter(ctx context.Context, rc *RunContext) context.Context

	// Supersede atomically replaces the active snapshot. The returned
	// context must be used by the caller from here on.
	Supersede(ctx context.Context, rc *RunContext) context.Context

	// With runs fn with rc active and restores the previous snapshot after
	With(ctx context.Context, rc *RunContext, fn func(ctx context.Context))

	// Bind wraps fn so that invoking it first re-establishes rc
	Bind(rc *RunContext, fn func(ctx context.Context)) func(ctx context.Context)

	// BindEmitter wraps an event emitter so listeners run with rc active
	BindEmitter(rc *RunContext, ee events.EventEmmiter) *BoundEmitter

	// Go runs fn on a new goroutine with the snapshot active now
	Go(ctx context.Context, fn func(ctx context.Context))
}

// NewManager creates a Manager for mode, falling back to ModeContext when
// mode is unknown
func NewManager(mode Mode, logger *zap.Logger) Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch Mode(strings.ToLower(string(mode))) {
	case ModeGlobal:
		return NewGlobalManager()
	case ModeContext, "":
		return NewContextManager()
	default:
		logger.Warn("unknown context manager, using context",
			zap.String("requested", string(mode)))
		return NewContextManager()
	}
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func orRoot(rc *RunContext) *RunContext {
	if rc == nil {
		return root
	}
	return rc
}

// bind is shared by both strategies: fn observes rc for its whole duration
func bind(m Manager, rc *RunContext, fn func(ctx context.Context)) func(ctx context.Context) {
	rc = orRoot(rc)
	return func(ctx context.Context) {
		m.With(ctx, rc, fn)
	}
}

func spawn(m Manager, ctx context.Context, fn func(ctx context.Context)) {
	rc := m.Active(ctx)
	run := bind(m, rc, fn)
	go run(orBackground(ctx))
}
