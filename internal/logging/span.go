package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span represents a logical unit of work tied to a request trace.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
}

// StartSpan derives a child span from the provided context. The returned
// context carries a logger tagged with trace and span identifiers.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := FromContext(ctx)

	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
		ctx = WithTraceID(ctx, traceID)
		logger = logger.With(slog.String("trace_id", traceID))
	}

	spanID := uuid.NewString()
	attrs := []any{slog.String("span_id", spanID), slog.String("span_name", name)}
	if parent := SpanIDFromContext(ctx); parent != "" {
		attrs = append(attrs, slog.String("parent_span_id", parent))
	}
	logger = logger.With(attrs...)

	ctx = WithSpanID(WithLogger(ctx, logger), spanID)
	return ctx, &Span{name: name, logger: logger, start: time.Now()}
}

// End finalizes the span and emits a completion log entry.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.logger.Info("span completed", slog.Duration("duration", time.Since(s.start)))
}

// EndErr finalizes the span, logging at error level when err is non-nil.
func (s *Span) EndErr(err error) {
	if s == nil {
		return
	}
	if err == nil {
		s.End()
		return
	}
	s.logger.Error("span failed", slog.Duration("duration", time.Since(s.start)), slog.Any("error", err))
}
