package scheduling

// Lifecycle: SCHEDULED is the only state with outgoing transitions.
//
//	SCHEDULED -> CANCELLED_BY_PATIENT
//	SCHEDULED -> CANCELLED_BY_PROFESSIONAL
//	SCHEDULED -> COMPLETED
//
// Terminal states absorb: a second cancel on an already-cancelled
// appointment fails with INVALID_TRANSITION rather than succeeding
// idempotently.

// CancelStatus maps the cancelling actor to the terminal status.
func CancelStatus(actor Actor) (Status, error) {
	switch actor {
	case ActorPatient:
		return StatusCancelledByPatient, nil
	case ActorProfessional:
		return StatusCancelledByProfessional, nil
	default:
		return "", &ValidationError{Field: "actor", Msg: "must be patient or professional"}
	}
}

// Transition validates a status change and returns the new status.
func Transition(current, next Status) (Status, error) {
	if current != StatusScheduled {
		return current, &ConflictError{Reason: ReasonInvalidTransition}
	}
	switch next {
	case StatusCancelledByPatient, StatusCancelledByProfessional, StatusCompleted:
		return next, nil
	default:
		return current, &ConflictError{Reason: ReasonInvalidTransition}
	}
}

// CanReschedule reports whether date/duration changes are permitted in
// the current state.
func CanReschedule(current Status) bool {
	return current == StatusScheduled
}
