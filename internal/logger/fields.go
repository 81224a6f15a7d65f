package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that logs from the
// gRPC adapter, the coordinator and the record store can be correlated.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Request
	// ========================================================================
	KeyOperation = "operation" // State operation: get, set, delete, bulk_set, transact, ...
	KeyMethod    = "method"    // Full gRPC method name
	KeyComponent = "component" // Pluggable component name
	KeyKey       = "key"       // State key
	KeyItems     = "items"     // Number of items in a bulk or transactional request
	KeyIndex     = "index"     // Position of an item inside a bulk or transactional request
	KeyStatus    = "status"    // gRPC status code

	// ========================================================================
	// Location & Tenancy
	// ========================================================================
	KeySchema   = "schema"    // Effective schema name
	KeyTable    = "table"     // Effective table name
	KeyTenantID = "tenant_id" // Tenant identifier from per-request metadata
	KeyTenancy  = "tenancy"   // Tenancy mode: none, schema, table

	// ========================================================================
	// Recovery
	// ========================================================================
	KeyAttempt     = "attempt"      // Current attempt of the missing-object recovery loop
	KeyMaxAttempts = "max_attempts" // Configured attempt bound

	// ========================================================================
	// Transport
	// ========================================================================
	KeySocket = "socket" // Unix domain socket path
	KeyAddr   = "addr"   // Listen address for HTTP endpoints

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // StoreError code name
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Operation returns a slog.Attr for the state operation name
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Method returns a slog.Attr for a gRPC method
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// Component returns a slog.Attr for the component name
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Key returns a slog.Attr for a state key
func Key(k string) slog.Attr {
	return slog.String(KeyKey, k)
}

// Items returns a slog.Attr for a batch size
func Items(n int) slog.Attr {
	return slog.Int(KeyItems, n)
}

// Index returns a slog.Attr for an item position inside a batch
func Index(i int) slog.Attr {
	return slog.Int(KeyIndex, i)
}

// Status returns a slog.Attr for a gRPC status code
func Status(code string) slog.Attr {
	return slog.String(KeyStatus, code)
}

// Schema returns a slog.Attr for the effective schema
func Schema(name string) slog.Attr {
	return slog.String(KeySchema, name)
}

// Table returns a slog.Attr for the effective table
func Table(name string) slog.Attr {
	return slog.String(KeyTable, name)
}

// TenantID returns a slog.Attr for the tenant identifier
func TenantID(id string) slog.Attr {
	return slog.String(KeyTenantID, id)
}

// Tenancy returns a slog.Attr for the tenancy mode
func Tenancy(mode string) slog.Attr {
	return slog.String(KeyTenancy, mode)
}

// Attempt returns a slog.Attr for the recovery attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxAttempts returns a slog.Attr for the recovery attempt bound
func MaxAttempts(n int) slog.Attr {
	return slog.Int(KeyMaxAttempts, n)
}

// Socket returns a slog.Attr for a unix socket path
func Socket(path string) slog.Attr {
	return slog.String(KeySocket, path)
}

// Addr returns a slog.Attr for a listen address
func Addr(addr string) slog.Attr {
	return slog.String(KeyAddr, addr)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a StoreError code name
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}
