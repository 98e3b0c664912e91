// Package errors provides structured error handling for the abtest service.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeExperimentIDEmpty   Code = "EXPERIMENT_ID_EMPTY"
	CodeExperimentIDInvalid Code = "EXPERIMENT_ID_INVALID"
	CodeContentRefInvalid   Code = "CONTENT_REF_INVALID"
	CodeVariantInvalid      Code = "VARIANT_INVALID"
	CodeVariantMissing      Code = "VARIANT_MISSING"
	CodeEventKindInvalid    Code = "EVENT_KIND_INVALID"
	CodePayloadInvalid      Code = "PAYLOAD_INVALID"

	// Authorization errors
	CodeTrackingUnauthorized Code = "TRACKING_UNAUTHORIZED"
	CodeEditorUnauthorized   Code = "EDITOR_UNAUTHORIZED"

	// Lifecycle errors
	CodeInvalidStateTransition  Code = "EXPERIMENT_INVALID_STATE_TRANSITION"
	CodeVariantsIncomplete      Code = "EXPERIMENT_VARIANTS_INCOMPLETE"
	CodeConversionSourceMissing Code = "EXPERIMENT_CONVERSION_SOURCE_MISSING"
	CodeWinnerNotDecided        Code = "EXPERIMENT_WINNER_NOT_DECIDED"

	// Storage errors
	CodeNotFound          Code = "NOT_FOUND"
	CodeExperimentUnknown Code = "EXPERIMENT_UNKNOWN_ON_CONTENT"
	CodeStorageFault      Code = "STORAGE_FAULT"

	// Milestone errors
	CodeMilestoneUnknown Code = "MILESTONE_UNKNOWN"

	// Soft conditions. RateLimited is internal bookkeeping: the gateway
	// accepts and drops over-limit requests, it never surfaces this code to
	// callers. InsufficientData is carried on neutral evaluator decisions.
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeInsufficientData Code = "INSUFFICIENT_DATA"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, malformed input
	case CodeExperimentIDEmpty,
		CodeExperimentIDInvalid,
		CodeContentRefInvalid,
		CodeVariantInvalid,
		CodeVariantMissing,
		CodeEventKindInvalid,
		CodePayloadInvalid,
		CodeMilestoneUnknown:
		return http.StatusBadRequest

	// Unauthorized - auth failed, reason withheld from the response body
	case CodeTrackingUnauthorized,
		CodeEditorUnauthorized:
		return http.StatusUnauthorized

	// Conflict - state doesn't allow the operation
	case CodeInvalidStateTransition,
		CodeVariantsIncomplete,
		CodeConversionSourceMissing,
		CodeWinnerNotDecided:
		return http.StatusConflict

	// Not found - resource doesn't exist
	case CodeNotFound,
		CodeExperimentUnknown:
		return http.StatusNotFound

	case CodeRateLimited:
		return http.StatusTooManyRequests

	case CodeInsufficientData:
		return http.StatusOK

	default:
		return http.StatusInternalServerError
	}
}
