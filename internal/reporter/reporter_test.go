package reporter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/apmcore/internal/infrastructure/config"
	"github.com/GriffinCanCode/apmcore/internal/model"
)

func TestNewSelectsSink(t *testing.T) {
	tests := []struct {
		kind    string
		want    interface{}
		wantErr bool
	}{
		{config.ReporterLog, &Log{}, false},
		{config.ReporterNone, Nop{}, false},
		{"", Nop{}, false},
		{config.ReporterHTTP, &HTTP{}, false},
		{config.ReporterOTLP, &OTLP{}, false},
		{"kafka", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			cfg := config.Default().Reporter
			cfg.Kind = tt.kind

			r, err := New(cfg, testMetadata, nil, nil)
			if tt.wantErr {
				assert.ErrorIs(t, err, config.ErrUnknownReporter)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, r)
			_ = Close(context.Background(), r)
		})
	}
}

func TestSendDispatchesByKind(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	require.NoError(t, Send(ctx, mem, model.Event{Transaction: sampleTransaction()}))
	require.NoError(t, Send(ctx, mem, model.Event{Span: sampleSpan()}))

	assert.Len(t, mem.Transactions(), 1)
	assert.Len(t, mem.Spans(), 1)
}

func TestMemoryHook(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	mem.SetHook(func(_ context.Context, ev model.Event) error {
		if ev.Kind() == model.KindSpan {
			return boom
		}
		return nil
	})

	assert.ErrorIs(t, mem.SendSpan(ctx, sampleSpan()), boom)
	require.NoError(t, mem.SendTransaction(ctx, sampleTransaction()))
	require.NoError(t, mem.Flush(ctx))

	assert.Empty(t, mem.Spans())
	assert.Len(t, mem.Transactions(), 1)
	assert.Equal(t, 1, mem.Flushes())

	mem.Reset()
	assert.Empty(t, mem.Transactions())
	assert.Zero(t, mem.Flushes())
}

func TestNewMetadata(t *testing.T) {
	meta := NewMetadata(config.ServiceConfig{Name: "checkout", Environment: "prod"})
	assert.Equal(t, "checkout", meta.Service.Name)
	assert.Equal(t, AgentName, meta.Service.Agent.Name)
	assert.NotEmpty(t, meta.Service.Agent.EphemeralID)
	assert.NotZero(t, meta.Process.PID)
}

func TestLogAndNopNeverFail(t *testing.T) {
	ctx := context.Background()
	for _, r := range []Reporter{NewLog(nil), Nop{}} {
		assert.NoError(t, r.SendTransaction(ctx, sampleTransaction()))
		assert.NoError(t, r.SendSpan(ctx, sampleSpan()))
		assert.NoError(t, r.Flush(ctx))
	}
}
