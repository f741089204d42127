package errors

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// internalClientMessage is the generic message returned to callers for
// internal failures. Diagnostic detail stays server-side.
const internalClientMessage = "a transient internal error occurred, retry the operation"

// HandleError converts domain errors to gRPC status for client responses.
//
// Client-actionable codes (Unauthenticated, PermissionDenied, NotFound,
// InvalidArgument, FailedPrecondition) are surfaced verbatim with their
// code preserved. Internal errors are masked behind a generic retryable
// message so operator diagnostics never leak to callers.
func HandleError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Code.GRPCCode() == codes.Internal {
			return status.Error(codes.Internal, internalClientMessage)
		}
		return appErr.ToGRPCStatus()
	}

	// Unknown error - return internal with generic message.
	return status.Error(codes.Internal, internalClientMessage)
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}
