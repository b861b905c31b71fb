// Package errors provides the typed failures returned by the review core.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	CodeValidation        Code = "VALIDATION_ERROR"
	CodePermissionDenied  Code = "PERMISSION_DENIED"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeConflict          Code = "CONFLICT"
	CodeNotFound          Code = "NOT_FOUND"

	// Merge errors
	CodeTextNotFound         Code = "TEXT_NOT_FOUND"
	CodeAlreadyApplied       Code = "ALREADY_APPLIED"
	CodeStructuralCorruption Code = "STRUCTURAL_CORRUPTION"
	CodeMergeIncomplete      Code = "MERGE_INCOMPLETE"
	CodeRewriteFailed        Code = "REWRITE_FAILED"

	CodeInternal Code = "INTERNAL"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeAlreadyApplied, CodeMergeIncomplete:
		return http.StatusConflict
	case CodeInvalidTransition, CodeTextNotFound, CodeStructuralCorruption:
		return http.StatusUnprocessableEntity
	case CodeRewriteFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RollsBack reports whether a failure with this code discards partial content mutation.
func (c Code) RollsBack() bool {
	return c == CodeTextNotFound || c == CodeStructuralCorruption
}
