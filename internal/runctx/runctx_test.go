package runctx

import (
	"context"
	"sync"
	"testing"

	"github.com/kataras/go-events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeNode struct {
	name  string
	ended bool
}

func (f *fakeNode) Ended() bool { return f.ended }

func TestRunContextStack(t *testing.T) {
	tx := &fakeNode{name: "tx"}
	a := &fakeNode{name: "a"}
	b := &fakeNode{name: "b"}

	rc0 := Root().EnterTrans(tx)
	rc1 := rc0.EnterSpan(a)
	rc2 := rc1.EnterSpan(b)

	assert.Equal(t, tx, rc2.Transaction())
	assert.Equal(t, b, rc2.CurrentSpan())
	assert.Nil(t, rc0.CurrentSpan())

	// Snapshots are never edited in place.
	assert.Len(t, rc1.Spans(), 1)
	assert.Len(t, rc2.Spans(), 2)
	assert.True(t, Root().IsEmpty())
}

func TestLeaveSpan(t *testing.T) {
	tx := &fakeNode{}
	a := &fakeNode{name: "a"}
	b := &fakeNode{name: "b"}
	c := &fakeNode{name: "c"}
	rc := Root().EnterTrans(tx).EnterSpan(a).EnterSpan(b).EnterSpan(c)

	t.Run("top of stack", func(t *testing.T) {
		next, changed := rc.LeaveSpan(c)
		require.True(t, changed)
		assert.Equal(t, []Span{a, b}, next.Spans())
	})

	t.Run("out of order", func(t *testing.T) {
		next, changed := rc.LeaveSpan(a)
		require.True(t, changed)
		assert.Equal(t, []Span{b, c}, next.Spans())
		assert.Equal(t, c, next.CurrentSpan())
		assert.Len(t, rc.Spans(), 3)
	})

	t.Run("unknown span", func(t *testing.T) {
		next, changed := rc.LeaveSpan(&fakeNode{})
		assert.False(t, changed)
		assert.Same(t, rc, next)
	})

	t.Run("ended spans are skipped", func(t *testing.T) {
		ended := &fakeNode{ended: true}
		withEnded := rc.EnterSpan(ended)
		assert.Equal(t, c, withEnded.CurrentSpan())
	})
}

func TestNilRunContextActsAsRoot(t *testing.T) {
	var rc *RunContext
	assert.Nil(t, rc.Transaction())
	assert.Nil(t, rc.CurrentSpan())
	assert.True(t, rc.IsEmpty())

	next, changed := rc.LeaveSpan(&fakeNode{})
	assert.False(t, changed)
	assert.Same(t, Root(), next)
	assert.Len(t, rc.EnterSpan(&fakeNode{}).Spans(), 1)
}

func TestNewManager(t *testing.T) {
	tests := []struct {
		mode Mode
		want Mode
	}{
		{ModeContext, ModeContext},
		{ModeGlobal, ModeGlobal},
		{"GLOBAL", ModeGlobal},
		{"", ModeContext},
		{"async_hooks", ModeContext},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			assert.Equal(t, tt.want, NewManager(tt.mode, zap.NewNop()).Mode())
		})
	}
}

func TestContextManagerSupersede(t *testing.T) {
	m := NewContextManager()
	tx := &fakeNode{}

	ctx := context.Background()
	assert.Same(t, Root(), m.Active(ctx))

	ctx = m.Supersede(ctx, m.Active(ctx).EnterTrans(tx))
	assert.Equal(t, tx, m.Active(ctx).Transaction())

	// A second supersede on the same context writes the same cell.
	same := m.Supersede(ctx, m.Active(ctx).EnterSpan(&fakeNode{}))
	assert.Equal(t, ctx, same)
	assert.Len(t, m.Active(ctx).Spans(), 1)
}

func TestContextManagerEnter(t *testing.T) {
	m := NewContextManager()
	tx := &fakeNode{}
	base := m.Enter(context.Background(), Root().EnterTrans(tx))

	a := &fakeNode{name: "a"}
	b := &fakeNode{name: "b"}
	aCtx := m.Enter(base, m.Active(base).EnterSpan(a))
	bCtx := m.Enter(base, m.Active(base).EnterSpan(b))

	assert.Equal(t, a, m.Active(aCtx).CurrentSpan())
	assert.Equal(t, b, m.Active(bCtx).CurrentSpan())
	assert.Nil(t, m.Active(base).CurrentSpan(), "entering never writes the parent cell")

	// Leaving a writes only a's cell.
	next, _ := m.Active(aCtx).LeaveSpan(a)
	m.Supersede(aCtx, next)
	assert.Nil(t, m.Active(aCtx).CurrentSpan())
	assert.Equal(t, b, m.Active(bCtx).CurrentSpan())
}

func TestGlobalManagerEnter(t *testing.T) {
	m := NewGlobalManager()
	tx := &fakeNode{}
	ctx := m.Enter(context.Background(), Root().EnterTrans(tx))
	assert.Equal(t, context.Background(), ctx)
	assert.Equal(t, tx, m.Active(context.Background()).Transaction())
}

func TestContextManagerWithIsolates(t *testing.T) {
	m := NewContextManager()
	tx := &fakeNode{}
	ctx := m.Supersede(context.Background(), Root().EnterTrans(tx))

	span := &fakeNode{}
	m.With(ctx, m.Active(ctx), func(inner context.Context) {
		m.Supersede(inner, m.Active(inner).EnterSpan(span))
		assert.Equal(t, span, m.Active(inner).CurrentSpan())
	})

	assert.Nil(t, m.Active(ctx).CurrentSpan(), "callee cell must not leak into caller")
}

func TestBind(t *testing.T) {
	for _, m := range []Manager{NewContextManager(), NewGlobalManager()} {
		t.Run(string(m.Mode()), func(t *testing.T) {
			tx := &fakeNode{}
			bound := m.Bind(Root().EnterTrans(tx), func(ctx context.Context) {
				assert.Equal(t, tx, m.Active(ctx).Transaction())
			})

			other := &fakeNode{}
			ctx := m.Supersede(context.Background(), Root().EnterTrans(other))
			bound(ctx)

			assert.Equal(t, other, m.Active(ctx).Transaction(), "previous snapshot restored")
		})
	}
}

func TestGo(t *testing.T) {
	for _, m := range []Manager{NewContextManager(), NewGlobalManager()} {
		t.Run(string(m.Mode()), func(t *testing.T) {
			tx := &fakeNode{}
			ctx := m.Supersede(context.Background(), Root().EnterTrans(tx))

			var got Transaction
			var wg sync.WaitGroup
			wg.Add(1)
			m.Go(ctx, func(ctx context.Context) {
				defer wg.Done()
				got = m.Active(ctx).Transaction()
			})
			wg.Wait()

			assert.Equal(t, tx, got)
		})
	}
}

func TestContextManagerConcurrentTasks(t *testing.T) {
	m := NewContextManager()
	base := context.Background()

	const tasks = 32
	var wg sync.WaitGroup
	errs := make(chan string, tasks)

	for i := 0; i < tasks; i++ {
		wg.Add(1)
		tx := &fakeNode{}
		m.Go(m.Supersede(base, Root().EnterTrans(tx)), func(ctx context.Context) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				span := &fakeNode{}
				ctx = m.Supersede(ctx, m.Active(ctx).EnterSpan(span))
				if m.Active(ctx).Transaction() != tx || m.Active(ctx).CurrentSpan() != span {
					errs <- "snapshot crossed tasks"
					return
				}
				next, _ := m.Active(ctx).LeaveSpan(span)
				ctx = m.Supersede(ctx, next)
			}
		})
	}
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}
}

func TestBindEmitter(t *testing.T) {
	for _, m := range []Manager{NewContextManager(), NewGlobalManager()} {
		t.Run(string(m.Mode()), func(t *testing.T) {
			tx := &fakeNode{}
			be := m.BindEmitter(Root().EnterTrans(tx), events.New())

			var calls int
			var seen Transaction
			be.On("data", func(ctx context.Context, payload ...interface{}) {
				calls++
				seen = m.Active(ctx).Transaction()
				assert.Equal(t, []interface{}{"chunk"}, payload)
			})
			be.Once("end", func(ctx context.Context, _ ...interface{}) {
				calls++
			})

			be.Emit("data", "chunk")
			be.Emit("end")
			be.Emit("end")

			assert.Equal(t, 2, calls)
			assert.Equal(t, tx, seen)
			assert.Equal(t, 1, be.ListenerCount("data"))
			assert.Same(t, Root(), m.Active(context.Background()), "emit restores the previous snapshot")
		})
	}
}
