package logger

import (
	"context"
	"time"
)

type logContextKey struct{}

// LogContext carries request-scoped fields. The *Ctx logging functions put
// them in front of the call's own fields.
type LogContext struct {
	TraceID   string
	SpanID    string
	Operation string // get, set, bulk_set, transact, ...
	TenantID  string
	Schema    string // effective schema
	Table     string // effective table
	StartTime time.Time
}

// NewLogContext starts a LogContext for op, timed from now.
func NewLogContext(op string) *LogContext {
	return &LogContext{Operation: op, StartTime: time.Now()}
}

// WithContext returns a copy of ctx carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey{}, lc)
}

// FromContext returns the LogContext in ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey{}).(*LogContext)
	return lc
}

// WithLocation returns a copy with the tenant and effective location set.
func (lc *LogContext) WithLocation(tenantID, schema, table string) *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	c.TenantID, c.Schema, c.Table = tenantID, schema, table
	return &c
}

// WithTrace returns a copy with the span identifiers set.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	c.TraceID, c.SpanID = traceID, spanID
	return &c
}

// DurationMs returns the milliseconds elapsed since StartTime.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return Since(lc.StartTime)
}

// withContextFields prepends the non-empty fields of the LogContext in ctx.
func withContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	fields := [...]struct{ key, val string }{
		{KeyTraceID, lc.TraceID},
		{KeySpanID, lc.SpanID},
		{KeyOperation, lc.Operation},
		{KeyTenantID, lc.TenantID},
		{KeySchema, lc.Schema},
		{KeyTable, lc.Table},
	}

	merged := make([]any, 0, 2*len(fields)+len(args))
	for _, f := range fields {
		if f.val != "" {
			merged = append(merged, f.key, f.val)
		}
	}
	return append(merged, args...)
}
