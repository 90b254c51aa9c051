package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxIDLen = 128

type batchCtxKey struct{}
type rowCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if batchID := BatchIDFromContext(ctx); batchID != "" {
		fields = append(fields, zap.String("batch.id", batchID))
	}
	if row, ok := RowIndexFromContext(ctx); ok {
		fields = append(fields, zap.Int("row.index", row))
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

// WithBatchID tags ctx with the pipeline batch being processed.
// Empty or oversized IDs leave ctx unchanged.
func WithBatchID(ctx context.Context, batchID string) context.Context {
	if batchID == "" || len(batchID) > maxIDLen {
		return ctx
	}
	return context.WithValue(ctx, batchCtxKey{}, batchID)
}

// BatchIDFromContext extracts the batch ID from context.
func BatchIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(batchCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithRowIndex tags ctx with the zero-based row of the current transaction.
func WithRowIndex(ctx context.Context, row int) context.Context {
	if row < 0 {
		return ctx
	}
	return context.WithValue(ctx, rowCtxKey{}, row)
}

// RowIndexFromContext extracts the row index from context.
func RowIndexFromContext(ctx context.Context) (int, bool) {
	row, ok := ctx.Value(rowCtxKey{}).(int)
	return row, ok
}

// WithRequestID tags ctx with an HTTP request ID.
// Empty or oversized IDs leave ctx unchanged.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" || len(requestID) > maxIDLen {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
