package dapr

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/marmos91/pgstate/pkg/state"
)

// etagField is the BadRequest field the sidecar inspects to recognise
// etag errors.
const etagField = "etag"

// toStatus converts a coordinator error into a gRPC status error.
//
//	EtagMismatch                        -> FailedPrecondition (+ etag field violation)
//	InvalidArgument, Validation         -> InvalidArgument
//	Configuration, NotInitialized       -> FailedPrecondition
//	context cancellation / deadline     -> Canceled / DeadlineExceeded
//	anything else                       -> Internal
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var se *state.StoreError
	if !errors.As(err, &se) {
		switch {
		case errors.Is(err, context.Canceled):
			return status.Error(codes.Canceled, err.Error())
		case errors.Is(err, context.DeadlineExceeded):
			return status.Error(codes.DeadlineExceeded, err.Error())
		}
		return status.Error(codes.Internal, err.Error())
	}

	switch se.Code {
	case state.ErrEtagMismatch:
		return withEtagViolation(codes.FailedPrecondition, se)
	case state.ErrInvalidArgument, state.ErrValidation:
		return status.Error(codes.InvalidArgument, se.Error())
	case state.ErrConfiguration, state.ErrNotInitialized:
		return status.Error(codes.FailedPrecondition, se.Error())
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			return status.Error(codes.DeadlineExceeded, se.Error())
		}
		return status.Error(codes.Internal, se.Error())
	}
}

func withEtagViolation(code codes.Code, se *state.StoreError) error {
	st := status.New(code, se.Error())
	detailed, err := st.WithDetails(&errdetails.BadRequest{
		FieldViolations: []*errdetails.BadRequest_FieldViolation{{
			Field:       etagField,
			Description: se.Message,
		}},
	})
	if err != nil {
		return st.Err()
	}
	return detailed.Err()
}
