package dapr

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/marmos91/pgstate/internal/logger"
	"github.com/marmos91/pgstate/internal/telemetry"
	"github.com/marmos91/pgstate/pkg/metrics"
)

// splitMethod turns "/pkg.Service/Method" into ("pkg.Service", "Method").
func splitMethod(fullMethod string) (service, method string) {
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndex(fullMethod, "/"); i >= 0 {
		return fullMethod[:i], fullMethod[i+1:]
	}
	return "unknown", fullMethod
}

// observeInterceptor wraps every call in a server span, records RPC metrics
// and logs the outcome.
func observeInterceptor(m metrics.RPCMetrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		service, method := splitMethod(info.FullMethod)

		ctx, span := telemetry.StartRPCSpan(ctx, service, method)
		defer span.End()

		if m != nil {
			m.RecordRequestStart(method)
			defer m.RecordRequestEnd(method)
		}

		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start)

		code := status.Code(err)
		if m != nil {
			m.RecordRequest(method, code.String(), elapsed)
		}

		durationMs := float64(elapsed.Microseconds()) / 1000.0
		switch {
		case err == nil:
			logger.DebugCtx(ctx, "gRPC request completed",
				logger.Method(method), logger.DurationMs(durationMs))
		case code == grpccodes.Internal || code == grpccodes.Unknown:
			span.SetStatus(codes.Error, err.Error())
			logger.ErrorCtx(ctx, "gRPC request failed",
				logger.Method(method), logger.Status(code.String()), logger.DurationMs(durationMs), logger.Err(err))
		default:
			span.SetStatus(codes.Error, code.String())
			logger.DebugCtx(ctx, "gRPC request rejected",
				logger.Method(method), logger.Status(code.String()), logger.Err(err))
		}

		return resp, err
	}
}

// recoveryInterceptor turns a handler panic into an Internal status.
func recoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorCtx(ctx, "gRPC panic recovered",
					logger.Method(info.FullMethod),
					"panic", r,
					"stack", string(debug.Stack()),
				)
				err = status.Error(grpccodes.Internal, "internal server error")
			}
		}()

		return handler(ctx, req)
	}
}
