package apm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/apmcore/internal/infrastructure/config"
	"github.com/GriffinCanCode/apmcore/internal/model"
	"github.com/GriffinCanCode/apmcore/internal/tracecontext"
)

type member struct {
	name     string
	resource string
	start    float64
	end      float64
}

func dbCall(name string, start, end float64) member {
	return member{name: name, resource: "postgresql", start: start, end: end}
}

// runSiblings ends each member under one open transaction, then ends the
// transaction and returns what was sent
func runSiblings(t *testing.T, mutate func(*config.TracerConfig), members ...member) []*model.Span {
	t.Helper()
	tracer, mem := newTestTracer(t, mutate)

	ctx, tx := tracer.StartTransaction(context.Background(), "job", "worker", StartTime(at(0)))
	for _, m := range members {
		_, span := tracer.StartSpan(ctx, m.name, "db",
			Subtype("postgresql"),
			WithDestination(Destination{Resource: m.resource}),
			StartTime(at(m.start)))
		require.NotNil(t, span)
		span.EndAt(at(m.end))
	}
	tx.EndAt(at(1000))
	flush(t, tracer)
	return mem.Spans()
}

func TestCompressionThreshold(t *testing.T) {
	tests := []struct {
		name      string
		secondEnd float64
		wantSpans int
	}{
		{"combined span at the maximum does not merge", 50, 2},
		{"combined span just below the maximum merges", 49.999, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans := runSiblings(t, nil,
				dbCall("SELECT", 0, 10),
				dbCall("SELECT", 20, tt.secondEnd))
			require.Len(t, spans, tt.wantSpans)
			if tt.wantSpans == 1 {
				require.NotNil(t, spans[0].Composite)
				assert.Equal(t, model.StrategyExactMatch, spans[0].Composite.CompressionStrategy)
				assert.Equal(t, 2, spans[0].Composite.Count)
			} else {
				for _, s := range spans {
					assert.Nil(t, s.Composite)
				}
			}
		})
	}
}

func TestCompressionCount(t *testing.T) {
	spans := runSiblings(t, nil,
		dbCall("SELECT", 0, 2),
		dbCall("SELECT", 2, 5),
		dbCall("SELECT", 5, 9))

	require.Len(t, spans, 1)
	got := spans[0]
	require.NotNil(t, got.Composite)
	assert.Equal(t, 3, got.Composite.Count)
	assert.InDelta(t, 9.0, got.Composite.Sum, 1e-9)
	assert.Equal(t, at(0).UnixMicro(), got.Timestamp)
	assert.InDelta(t, 9.0, got.Duration, 1e-9)
	assert.Equal(t, "SELECT", got.Name)
}

func TestCompressionSameKind(t *testing.T) {
	t.Run("disabled by a zero maximum", func(t *testing.T) {
		spans := runSiblings(t, nil,
			dbCall("SELECT a", 0, 2),
			dbCall("SELECT b", 2, 4))
		assert.Len(t, spans, 2)
	})

	t.Run("merges under the maximum", func(t *testing.T) {
		spans := runSiblings(t, func(c *config.TracerConfig) {
			c.SameKindMaxDuration = config.Milliseconds(100)
		},
			dbCall("SELECT a", 0, 2),
			dbCall("SELECT b", 2, 4),
			dbCall("SELECT c", 4, 7))

		require.Len(t, spans, 1)
		got := spans[0]
		require.NotNil(t, got.Composite)
		assert.Equal(t, model.StrategySameKind, got.Composite.CompressionStrategy)
		assert.Equal(t, 3, got.Composite.Count)
		assert.Equal(t, "Calls to postgresql", got.Name)
	})

	t.Run("composite keeps taking same kind siblings", func(t *testing.T) {
		spans := runSiblings(t, func(c *config.TracerConfig) {
			c.SameKindMaxDuration = config.Milliseconds(100)
		},
			dbCall("SELECT a", 0, 2),
			dbCall("SELECT b", 2, 4),
			dbCall("SELECT a", 4, 6))

		require.Len(t, spans, 1)
		got := spans[0]
		require.NotNil(t, got.Composite)
		assert.Equal(t, model.StrategySameKind, got.Composite.CompressionStrategy)
		assert.Equal(t, 3, got.Composite.Count)
		assert.Equal(t, "Calls to postgresql", got.Name)
	})

	t.Run("strategy change flushes the composite", func(t *testing.T) {
		spans := runSiblings(t, func(c *config.TracerConfig) {
			c.SameKindMaxDuration = config.Milliseconds(100)
		},
			dbCall("SELECT a", 0, 2),
			dbCall("SELECT a", 2, 4),
			dbCall("SELECT b", 4, 6))

		require.Len(t, spans, 2)
		byName := spansByName(spans)
		require.NotNil(t, byName["SELECT a"].Composite)
		assert.Equal(t, model.StrategyExactMatch, byName["SELECT a"].Composite.CompressionStrategy)
		assert.Nil(t, byName["SELECT b"].Composite)
	})
}

func TestCompressionIncompatibleSibling(t *testing.T) {
	spans := runSiblings(t, nil,
		dbCall("SELECT", 0, 1),
		member{name: "GET", resource: "redis", start: 1, end: 2},
		dbCall("SELECT", 2, 3))

	// the single slot holds one span, so the redis call splits the selects
	require.Len(t, spans, 3)
	for _, s := range spans {
		assert.Nil(t, s.Composite)
	}
}

func TestCompressionIneligible(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.TracerConfig)
		touch  func(*Span)
		exit   bool
	}{
		{
			name:   "compression disabled",
			mutate: func(c *config.TracerConfig) { c.SpanCompressionEnabled = false },
			exit:   true,
		},
		{
			name:  "failed outcome",
			touch: func(s *Span) { s.RecordError(assert.AnError) },
			exit:  true,
		},
		{
			name:  "propagated",
			touch: func(s *Span) { s.Inject(tracecontext.MapCarrier{}) },
			exit:  true,
		},
		{
			name: "not an exit span",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, mem := newTestTracer(t, tt.mutate)
			ctx, tx := tracer.StartTransaction(context.Background(), "job", "worker", StartTime(at(0)))

			for i := 0; i < 2; i++ {
				opts := []StartOption{Subtype("postgresql"), StartTime(at(float64(i)))}
				if tt.exit {
					opts = append(opts, WithDestination(Destination{Resource: "postgresql"}))
				}
				_, span := tracer.StartSpan(ctx, "SELECT", "db", opts...)
				if tt.touch != nil {
					tt.touch(span)
				}
				span.EndAt(at(float64(i) + 1))
			}
			tx.EndAt(at(10))
			flush(t, tracer)

			spans := mem.Spans()
			require.Len(t, spans, 2)
			for _, s := range spans {
				assert.Nil(t, s.Composite)
			}
		})
	}
}

func TestCompressionParentEnded(t *testing.T) {
	tracer, mem := newTestTracer(t, nil)
	ctx, tx := tracer.StartTransaction(context.Background(), "job", "worker", StartTime(at(0)))

	_, first := tracer.StartSpan(ctx, "SELECT", "db", WithDestination(Destination{Resource: "postgresql"}), StartTime(at(0)))
	_, second := tracer.StartSpan(ctx, "SELECT", "db", WithDestination(Destination{Resource: "postgresql"}), StartTime(at(1)))

	first.EndAt(at(2))
	tx.EndAt(at(3))
	second.EndAt(at(4))
	flush(t, tracer)

	spans := mem.Spans()
	require.Len(t, spans, 2)
	for _, s := range spans {
		assert.Nil(t, s.Composite)
	}
}

func TestCompressionUnderParentSpan(t *testing.T) {
	tracer, mem := newTestTracer(t, nil)
	ctx, tx := tracer.StartTransaction(context.Background(), "job", "worker", StartTime(at(0)))
	parentCtx, parent := tracer.StartSpan(ctx, "load users", "custom", StartTime(at(0)))

	for i := 0; i < 4; i++ {
		_, span := tracer.StartSpan(parentCtx, "SELECT", "db",
			WithDestination(Destination{Resource: "postgresql"}), StartTime(at(float64(i))))
		span.EndAt(at(float64(i) + 1))
	}
	parent.EndAt(at(5))
	tx.EndAt(at(6))
	flush(t, tracer)

	spans := spansByName(mem.Spans())
	require.Len(t, spans, 2)
	require.NotNil(t, spans["SELECT"].Composite)
	assert.Equal(t, 4, spans["SELECT"].Composite.Count)
	assert.Equal(t, parent.ID(), spans["SELECT"].ParentID)

	started, _ := tx.SpanCount()
	assert.Equal(t, 5, started)
}

func TestCompressionInjectAfterEnd(t *testing.T) {
	tracer, mem := newTestTracer(t, nil)
	ctx, tx := tracer.StartTransaction(context.Background(), "job", "worker", StartTime(at(0)))

	start := func(name string, from float64) *Span {
		_, span := tracer.StartSpan(ctx, name, "db", Subtype("postgresql"),
			WithDestination(Destination{Resource: "postgresql"}), StartTime(at(from)))
		require.NotNil(t, span)
		return span
	}

	first := start("SELECT", 0)
	first.EndAt(at(2))

	carrier := tracecontext.MapCarrier{}
	first.Inject(carrier)
	assert.Empty(t, carrier, "ended span does not propagate")
	assert.True(t, first.Discardable())

	second := start("SELECT", 2)
	second.EndAt(at(4))
	tx.EndAt(at(10))
	flush(t, tracer)

	spans := mem.Spans()
	require.Len(t, spans, 1)
	require.NotNil(t, spans[0].Composite)
	assert.Equal(t, 2, spans[0].Composite.Count)
}
