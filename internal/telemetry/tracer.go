package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for state store operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Database attributes (OpenTelemetry semconv)
	// ========================================================================
	AttrDBSystem    = "db.system"
	AttrDBOperation = "db.operation"
	AttrDBSchema    = "db.sql.schema"
	AttrDBTable     = "db.sql.table"

	// ========================================================================
	// RPC attributes
	// ========================================================================
	AttrRPCSystem  = "rpc.system"
	AttrRPCService = "rpc.service"
	AttrRPCMethod  = "rpc.method"

	// ========================================================================
	// State store attributes
	// ========================================================================
	AttrStateOperation   = "state.operation" // get, set, delete, bulk_set, transact, ...
	AttrStateKey         = "state.key"
	AttrStateTenantID    = "state.tenant_id"
	AttrStateItems       = "state.items"
	AttrStateAttempt     = "state.attempt"
	AttrStateConditional = "state.conditional" // etag supplied
)

// Span names for operations.
// Format: <component>.<operation>
const (
	// Root span for coordinator operations
	SpanStatePrefix = "state."

	// Record store spans
	SpanStoreEnsure  = "store.ensure"
	SpanStoreRecover = "store.recover"

	// gRPC adapter span prefix
	SpanRPCPrefix = "rpc."
)

// ============================================================================
// Attribute helpers
// ============================================================================

// StateOperation returns an attribute for the state operation name.
func StateOperation(op string) attribute.KeyValue {
	return attribute.String(AttrStateOperation, op)
}

// StateKey returns an attribute for a state key.
func StateKey(key string) attribute.KeyValue {
	return attribute.String(AttrStateKey, key)
}

// TenantID returns an attribute for the tenant identifier.
func TenantID(id string) attribute.KeyValue {
	return attribute.String(AttrStateTenantID, id)
}

// Items returns an attribute for the number of items in a batch.
func Items(n int) attribute.KeyValue {
	return attribute.Int(AttrStateItems, n)
}

// Attempt returns an attribute for the recovery attempt number.
func Attempt(n int) attribute.KeyValue {
	return attribute.Int(AttrStateAttempt, n)
}

// Conditional returns an attribute telling whether an etag was supplied.
func Conditional(c bool) attribute.KeyValue {
	return attribute.Bool(AttrStateConditional, c)
}

// DBSchema returns an attribute for the effective schema.
func DBSchema(schema string) attribute.KeyValue {
	return attribute.String(AttrDBSchema, schema)
}

// DBTable returns an attribute for the effective table.
func DBTable(table string) attribute.KeyValue {
	return attribute.String(AttrDBTable, table)
}

// RPCMethod returns an attribute for a gRPC method.
func RPCMethod(method string) attribute.KeyValue {
	return attribute.String(AttrRPCMethod, method)
}

// ============================================================================
// Span helpers
// ============================================================================

// StartStateSpan starts a span for a coordinator operation.
func StartStateSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{
		attribute.String(AttrDBSystem, "postgresql"),
		StateOperation(operation),
	}, attrs...)

	return Tracer().Start(ctx, SpanStatePrefix+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(allAttrs...),
	)
}

// StartStoreSpan starts a client span for a record store step.
func StartStoreSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{
		attribute.String(AttrDBSystem, "postgresql"),
	}, attrs...)

	return Tracer().Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(allAttrs...),
	)
}

// StartRPCSpan starts a server span for an inbound gRPC call.
func StartRPCSpan(ctx context.Context, service, method string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, SpanRPCPrefix+method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String(AttrRPCSystem, "grpc"),
			attribute.String(AttrRPCService, service),
			RPCMethod(method),
		),
	)
}
