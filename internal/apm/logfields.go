package apm

import (
	"context"

	"go.uber.org/zap"
)

// LogFields returns ECS correlation fields for the active transaction and
// span, or nothing when no transaction is active
func (t *Tracer) LogFields(ctx context.Context) []zap.Field {
	tx := t.CurrentTransaction(ctx)
	if tx == nil {
		return nil
	}
	fields := []zap.Field{
		zap.String("trace.id", tx.TraceID()),
		zap.String("transaction.id", tx.ID()),
	}
	if s := t.CurrentSpan(ctx); s != nil {
		fields = append(fields, zap.String("span.id", s.ID()))
	}
	return fields
}

// Logger returns logger with the correlation fields of ctx attached
func (t *Tracer) Logger(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if fields := t.LogFields(ctx); len(fields) > 0 {
		return logger.With(fields...)
	}
	return logger
}
