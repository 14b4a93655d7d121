package reporter

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/apmcore/internal/model"
)

// Log writes every event as one structured log entry
type Log struct {
	logger *zap.Logger
}

// NewLog creates a log sink
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// SendTransaction logs tx
func (l *Log) SendTransaction(_ context.Context, tx *model.Transaction) error {
	l.logger.Info("transaction",
		zap.String("trace.id", tx.TraceID),
		zap.String("transaction.id", tx.ID),
		zap.String("transaction.name", tx.Name),
		zap.String("transaction.type", tx.Type),
		zap.String("transaction.result", tx.Result),
		zap.String("event.outcome", tx.Outcome),
		zap.Bool("transaction.sampled", tx.Sampled),
		zap.Float64("duration_ms", tx.Duration),
		zap.Int("span_count.started", tx.SpanCount.Started),
		zap.Int("span_count.dropped", tx.SpanCount.Dropped),
	)
	return nil
}

// SendSpan logs span
func (l *Log) SendSpan(_ context.Context, span *model.Span) error {
	fields := []zap.Field{
		zap.String("trace.id", span.TraceID),
		zap.String("transaction.id", span.TransactionID),
		zap.String("span.id", span.ID),
		zap.String("parent.id", span.ParentID),
		zap.String("span.name", span.Name),
		zap.String("span.type", span.Type),
		zap.String("span.subtype", span.Subtype),
		zap.String("event.outcome", span.Outcome),
		zap.Float64("duration_ms", span.Duration),
	}
	if c := span.Composite; c != nil {
		fields = append(fields,
			zap.String("span.composite.compression_strategy", c.CompressionStrategy),
			zap.Int("span.composite.count", c.Count),
			zap.Float64("span.composite.sum", c.Sum),
		)
	}
	l.logger.Info("span", fields...)
	return nil
}

// Flush syncs the underlying logger
func (l *Log) Flush(context.Context) error {
	// Sync fails on stdout/stderr on some platforms; that is not a delivery failure
	_ = l.logger.Sync()
	return nil
}
