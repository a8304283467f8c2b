package scheduling

import (
	"errors"
	"fmt"
)

// ConflictReason explains why a proposed booking was rejected. Reason
// codes are always surfaced to the caller so it can show a specific
// message.
type ConflictReason string

const (
	ReasonHolidayConflict     ConflictReason = "HOLIDAY_CONFLICT"
	ReasonOutsideAvailability ConflictReason = "OUTSIDE_AVAILABILITY"
	ReasonTimeConflict        ConflictReason = "TIME_CONFLICT"
	ReasonInvalidTransition   ConflictReason = "INVALID_TRANSITION"
)

// ConflictError is a recoverable rejection: the caller may retry with
// different input.
type ConflictError struct {
	Reason ConflictReason
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("scheduling: conflict: %s", e.Reason)
}

// AsConflict unwraps a ConflictError if err carries one.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Not-found sentinels. An entity owned by another tenant yields the
// same error as an absent one.
var (
	ErrAppointmentNotFound  = errors.New("scheduling: appointment not found")
	ErrPatientNotFound      = errors.New("scheduling: patient not found")
	ErrPsychologistNotFound = errors.New("scheduling: psychologist not found")
)

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAppointmentNotFound) ||
		errors.Is(err, ErrPatientNotFound) ||
		errors.Is(err, ErrPsychologistNotFound)
}

// ValidationError marks malformed input, distinct from business
// conflicts and infrastructure failures.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scheduling: invalid %s: %s", e.Field, e.Msg)
}

// AsValidation unwraps a ValidationError if err carries one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
