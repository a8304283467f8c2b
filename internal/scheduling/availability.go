package scheduling

import (
	"context"
	"time"
)

// AvailabilityStore is the read-only query surface the checker needs.
// All lookups are tenant-scoped through the ambient context by the
// data gateway underneath.
type AvailabilityStore interface {
	// IsHoliday reports whether the calendar date is blocked for the
	// tenant.
	IsHoliday(ctx context.Context, day time.Time) (bool, error)
	// HasCoveringSlot reports whether a published available slot fully
	// contains [start, end).
	HasCoveringSlot(ctx context.Context, psychologistID string, start, end time.Time) (bool, error)
	// HasOverlap reports whether any non-cancelled appointment for the
	// psychologist intersects [start, end), ignoring excludeID if set.
	HasOverlap(ctx context.Context, psychologistID string, start, end time.Time, excludeID string) (bool, error)
}

// CheckRequest is a proposed booking window.
type CheckRequest struct {
	PsychologistID string
	StartTime      time.Time
	Duration       int
	// ExcludeAppointmentID lets an update-in-place skip collision with
	// itself.
	ExcludeAppointmentID string
}

// Decision is the checker's verdict. Reason is set only when blocked.
type Decision struct {
	Free   bool
	Reason ConflictReason
}

// Checker is a pure predicate over a proposed booking: it reads, never
// writes, and short-circuits on the first failing rule.
type Checker struct {
	store AvailabilityStore
}

func NewChecker(store AvailabilityStore) *Checker {
	if store == nil {
		panic("scheduling: availability store required")
	}
	return &Checker{store: store}
}

// Check runs the three rules in order: holiday, published availability
// window, overlap with existing bookings.
func (c *Checker) Check(ctx context.Context, req CheckRequest) (Decision, error) {
	if req.Duration <= 0 {
		return Decision{}, &ValidationError{Field: "duration", Msg: "must be positive"}
	}
	end := EndTimeFor(req.StartTime, req.Duration)

	holiday, err := c.store.IsHoliday(ctx, req.StartTime)
	if err != nil {
		return Decision{}, err
	}
	if holiday {
		return Decision{Reason: ReasonHolidayConflict}, nil
	}

	covered, err := c.store.HasCoveringSlot(ctx, req.PsychologistID, req.StartTime, end)
	if err != nil {
		return Decision{}, err
	}
	if !covered {
		return Decision{Reason: ReasonOutsideAvailability}, nil
	}

	overlap, err := c.store.HasOverlap(ctx, req.PsychologistID, req.StartTime, end, req.ExcludeAppointmentID)
	if err != nil {
		return Decision{}, err
	}
	if overlap {
		return Decision{Reason: ReasonTimeConflict}, nil
	}

	return Decision{Free: true}, nil
}
