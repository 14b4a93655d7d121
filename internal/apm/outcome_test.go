package apm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeFromHTTPStatus(t *testing.T) {
	tests := []struct {
		code int
		want Outcome
	}{
		{200, OutcomeSuccess},
		{302, OutcomeSuccess},
		{399, OutcomeSuccess},
		{400, OutcomeFailure},
		{404, OutcomeFailure},
		{503, OutcomeFailure},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, OutcomeFromHTTPStatus(tt.code))
		})
	}
}

func TestSpanOutcome(t *testing.T) {
	tests := []struct {
		name  string
		steps func(t *testing.T, s *Span)
		want  Outcome
	}{
		{
			name:  "clean end is success",
			steps: func(t *testing.T, s *Span) { s.End() },
			want:  OutcomeSuccess,
		},
		{
			name: "error then end is failure",
			steps: func(t *testing.T, s *Span) {
				s.RecordError(assert.AnError)
				s.End()
			},
			want: OutcomeFailure,
		},
		{
			name: "explicit success survives an error",
			steps: func(t *testing.T, s *Span) {
				require.NoError(t, s.SetOutcome(OutcomeSuccess))
				s.RecordError(assert.AnError)
				s.End()
			},
			want: OutcomeSuccess,
		},
		{
			name: "explicit call overrides http status",
			steps: func(t *testing.T, s *Span) {
				s.SetOutcomeFromHTTPStatus(500)
				require.NoError(t, s.SetOutcome(OutcomeSuccess))
				s.End()
			},
			want: OutcomeSuccess,
		},
		{
			name: "http status does not override explicit call",
			steps: func(t *testing.T, s *Span) {
				require.NoError(t, s.SetOutcome(OutcomeSuccess))
				s.SetOutcomeFromHTTPStatus(500)
				s.End()
			},
			want: OutcomeSuccess,
		},
		{
			name: "http status survives an error",
			steps: func(t *testing.T, s *Span) {
				s.SetOutcomeFromHTTPStatus(200)
				s.RecordError(assert.AnError)
				s.End()
			},
			want: OutcomeSuccess,
		},
		{
			name: "explicit call after end is rejected",
			steps: func(t *testing.T, s *Span) {
				s.SetOutcomeFromHTTPStatus(404)
				s.End()
				assert.ErrorIs(t, s.SetOutcome(OutcomeSuccess), ErrEnded)
			},
			want: OutcomeFailure,
		},
		{
			name: "invalid outcome is rejected",
			steps: func(t *testing.T, s *Span) {
				assert.ErrorIs(t, s.SetOutcome("maybe"), ErrInvalidOutcome)
				s.End()
			},
			want: OutcomeSuccess,
		},
		{
			name: "explicit unknown stays unknown",
			steps: func(t *testing.T, s *Span) {
				require.NoError(t, s.SetOutcome(OutcomeUnknown))
				s.End()
			},
			want: OutcomeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, _ := newTestTracer(t, nil)
			ctx, _ := tracer.StartTransaction(context.Background(), "job", "worker")
			_, span := tracer.StartSpan(ctx, "call", "external", Exit())
			require.NotNil(t, span)

			tt.steps(t, span)
			assert.Equal(t, tt.want, span.Outcome())
		})
	}
}

func TestTransactionOutcome(t *testing.T) {
	tracer, _ := newTestTracer(t, nil)

	_, tx := tracer.StartTransaction(context.Background(), "GET /", "request")
	assert.Equal(t, OutcomeUnknown, tx.Outcome())
	tx.SetOutcomeFromHTTPStatus(201)
	tx.RecordError(assert.AnError)
	assert.Equal(t, OutcomeSuccess, tx.Outcome())
	assert.Equal(t, "HTTP 2xx", tx.Result())

	_, failed := tracer.StartTransaction(context.Background(), "GET /", "request")
	failed.RecordError(assert.AnError)
	failed.End()
	assert.Equal(t, OutcomeFailure, failed.Outcome())
	assert.ErrorIs(t, failed.SetOutcome(OutcomeSuccess), ErrEnded)
}

func TestDiscardable(t *testing.T) {
	tracer, _ := newTestTracer(t, nil)
	ctx, _ := tracer.StartTransaction(context.Background(), "job", "worker")

	_, internal := tracer.StartSpan(ctx, "work", "custom")
	assert.False(t, internal.Discardable())

	_, exit := tracer.StartSpan(ctx, "call", "external", Exit())
	assert.True(t, exit.Discardable())
	require.NoError(t, exit.SetOutcome(OutcomeFailure))
	assert.False(t, exit.Discardable())

	// irreversible
	require.NoError(t, exit.SetOutcome(OutcomeSuccess))
	assert.False(t, exit.Discardable())
}

func TestSetNameUntilEnded(t *testing.T) {
	tracer, _ := newTestTracer(t, nil)
	ctx, tx := tracer.StartTransaction(context.Background(), "initial", "request")
	_, span := tracer.StartSpan(ctx, "initial", "custom")

	tx.SetName("renamed")
	span.SetName("renamed")
	span.End()
	tx.End()
	tx.SetName("too late")
	span.SetName("too late")

	assert.Equal(t, "renamed", tx.Name())
	assert.Equal(t, "renamed", span.Name())
}

func TestDroppedStatsCap(t *testing.T) {
	var stats droppedStats
	for i := 0; i < maxDroppedSpanStats+10; i++ {
		stats.add("db", fmt.Sprintf("sub%d", i), "", OutcomeSuccess, 1, time.Millisecond)
	}
	assert.Equal(t, maxDroppedSpanStats, stats.len())

	// existing keys keep counting past the cap
	stats.add("db", "sub0", "", OutcomeSuccess, 1, time.Millisecond)
	payload := stats.payload()
	require.Len(t, payload, maxDroppedSpanStats)
	assert.Equal(t, "sub0", payload[0].ServiceTargetType)
	assert.Equal(t, 2, payload[0].Duration.Count)
	assert.Equal(t, int64(2000), payload[0].Duration.Sum.US)
}
