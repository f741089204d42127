package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Identity errors
	CodeCallerIdentityMissing Code = "CALLER_IDENTITY_MISSING"

	// Permission errors
	CodeNotGroupOwner       Code = "NOT_GROUP_OWNER"
	CodeNotGroupMember      Code = "NOT_GROUP_MEMBER"
	CodeParticipantMismatch Code = "PARTICIPANT_MISMATCH"

	// Lookup errors
	CodeGroupNotFound  Code = "GROUP_NOT_FOUND"
	CodeMemberNotFound Code = "MEMBER_NOT_FOUND"

	// Validation errors
	CodeGroupIDRequired       Code = "GROUP_ID_REQUIRED"
	CodeParticipantIDRequired Code = "PARTICIPANT_ID_REQUIRED"
	CodeGroupTooSmall         Code = "GROUP_TOO_SMALL"
	CodeRequestBodyInvalid    Code = "REQUEST_BODY_INVALID"

	// State errors
	CodeDrawAlreadyStarted    Code = "DRAW_ALREADY_STARTED"
	CodeDrawNotStarted        Code = "DRAW_NOT_STARTED"
	CodeNoAvailableRecipients Code = "NO_AVAILABLE_RECIPIENTS"
	CodeAssignmentMissing     Code = "ASSIGNMENT_MISSING"

	// Invariant violations and operational failures
	CodeDerangementExhausted   Code = "DERANGEMENT_EXHAUSTED"
	CodeCriticalCycleViolation Code = "CRITICAL_CYCLE_VIOLATION"
	CodeSelfAssignmentDetected Code = "SELF_ASSIGNMENT_DETECTED"
	CodeTxConflictExhausted    Code = "TX_CONFLICT_EXHAUSTED"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// Unauthenticated - no caller identity provided
	case CodeCallerIdentityMissing:
		return codes.Unauthenticated

	// PermissionDenied - caller is not allowed to act on the target
	case CodeNotGroupOwner,
		CodeNotGroupMember,
		CodeParticipantMismatch:
		return codes.PermissionDenied

	// NotFound - resource doesn't exist
	case CodeGroupNotFound,
		CodeMemberNotFound:
		return codes.NotFound

	// InvalidArgument - validation failures, bad input
	case CodeGroupIDRequired,
		CodeParticipantIDRequired,
		CodeGroupTooSmall,
		CodeRequestBodyInvalid:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeDrawAlreadyStarted,
		CodeDrawNotStarted,
		CodeNoAvailableRecipients,
		CodeAssignmentMissing:
		return codes.FailedPrecondition

	default:
		return codes.Internal
	}
}
