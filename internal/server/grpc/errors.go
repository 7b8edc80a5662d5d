package grpcserver

import (
	"errors"

	"github.com/and161185/collabvault/internal/errs"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// statusCode maps a domain error to its gRPC code.
func statusCode(err error) codes.Code {
	switch {
	case errors.Is(err, errs.ErrAuthenticationFailed):
		return codes.Unauthenticated
	case errors.Is(err, errs.ErrAuthorizationFailed):
		return codes.PermissionDenied
	case errors.Is(err, errs.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, errs.ErrInvalidState):
		return codes.FailedPrecondition
	case errors.Is(err, errs.ErrAlreadyExists), errors.Is(err, errs.ErrConflict):
		return codes.AlreadyExists
	case errors.Is(err, errs.ErrValidation):
		return codes.InvalidArgument
	case errors.Is(err, errs.ErrRateLimited):
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}

// toStatus converts err into a gRPC status error. Internal failures hide their detail.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := statusCode(err)
	if code == codes.Internal {
		return status.Error(codes.Internal, "internal")
	}
	return status.Error(code, err.Error())
}
