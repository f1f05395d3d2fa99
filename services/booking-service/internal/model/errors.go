package model

import "fmt"

type ErrorCode string

const (
	CodeProviderNotFound        ErrorCode = "PROVIDER_NOT_FOUND"
	CodeClientNotFound          ErrorCode = "CLIENT_NOT_FOUND"
	CodeAppointmentNotFound     ErrorCode = "APPOINTMENT_NOT_FOUND"
	CodeServiceNotOffered       ErrorCode = "SERVICE_NOT_OFFERED"
	CodeMissingConsent          ErrorCode = "MISSING_CONSENT"
	CodeContraindication        ErrorCode = "CONTRAINDICATION"
	CodeProviderUnavailable     ErrorCode = "PROVIDER_UNAVAILABLE"
	CodeProviderAtCapacity      ErrorCode = "PROVIDER_AT_CAPACITY"
	CodeClientConflict          ErrorCode = "CLIENT_CONFLICT"
	CodeBlockedTime             ErrorCode = "BLOCKED_TIME"
	CodeOutsideWorkingHours     ErrorCode = "OUTSIDE_WORKING_HOURS"
	CodeInvalidTimeRange        ErrorCode = "INVALID_TIME_RANGE"
	CodeInvalidStatusTransition ErrorCode = "INVALID_STATUS_TRANSITION"
	CodeRescheduleLimitReached  ErrorCode = "RESCHEDULE_LIMIT_REACHED"
	CodeRescheduleTooLate       ErrorCode = "RESCHEDULE_TOO_LATE"
	CodeInvalidException        ErrorCode = "INVALID_EXCEPTION"
	CodeExceptionNotFound       ErrorCode = "EXCEPTION_NOT_FOUND"
)

// Conflict reports whether the code stems from a scheduling collision.
func (c ErrorCode) Conflict() bool {
	switch c {
	case CodeProviderUnavailable, CodeProviderAtCapacity, CodeClientConflict,
		CodeBlockedTime, CodeOutsideWorkingHours:
		return true
	}
	return false
}

func (c ErrorCode) NotFound() bool {
	switch c {
	case CodeProviderNotFound, CodeClientNotFound, CodeAppointmentNotFound, CodeExceptionNotFound:
		return true
	}
	return false
}

// BookingError is a business-rule failure reported in a result, not a Go error.
type BookingError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
}

func (e BookingError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
