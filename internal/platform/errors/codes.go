// Package errors provides structured domain errors with machine-readable
// codes and HTTP status mapping.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Profile errors
	CodeProfileNameEmpty          Code = "PROFILE_NAME_EMPTY"
	CodeProfileInvalidAge         Code = "PROFILE_INVALID_AGE"
	CodeProfileInvalidSupport     Code = "PROFILE_INVALID_SUPPORT_LEVEL"
	CodeProfileInvalidSensitivity Code = "PROFILE_INVALID_SENSITIVITY"

	// Session errors
	CodeSessionClosed       Code = "SESSION_CLOSED"
	CodeActiveSessionExists Code = "ACTIVE_SESSION_EXISTS"

	// Telemetry errors
	CodeSampleOutOfRange Code = "SAMPLE_OUT_OF_RANGE"

	// Observation errors
	CodeUnknownCategory Code = "UNKNOWN_BEHAVIOR_CATEGORY"
	CodeUnknownState    Code = "UNKNOWN_EMOTIONAL_STATE"
	CodeSkillNameEmpty  Code = "SKILL_NAME_EMPTY"

	// Request errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeInvalidPayload  Code = "INVALID_PAYLOAD"

	// Storage errors
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, bad input
	case CodeProfileNameEmpty,
		CodeProfileInvalidAge,
		CodeProfileInvalidSupport,
		CodeProfileInvalidSensitivity,
		CodeSampleOutOfRange,
		CodeUnknownCategory,
		CodeUnknownState,
		CodeSkillNameEmpty,
		CodeInvalidArgument,
		CodeInvalidPayload:
		return http.StatusBadRequest

	// Conflict - state doesn't allow the operation
	case CodeSessionClosed,
		CodeActiveSessionExists,
		CodeAlreadyExists:
		return http.StatusConflict

	case CodeNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}
