// Package scheduling decides whether a proposed appointment time is
// free, governs the appointment lifecycle, and orchestrates booking
// operations under the tenant scope.
package scheduling

import "time"

// Status is the appointment lifecycle state. SCHEDULED is the only
// non-terminal state; every other status absorbs.
type Status string

const (
	StatusScheduled               Status = "SCHEDULED"
	StatusCancelledByPatient      Status = "CANCELLED_BY_PATIENT"
	StatusCancelledByProfessional Status = "CANCELLED_BY_PROFESSIONAL"
	StatusCompleted               Status = "COMPLETED"
)

// Terminal reports whether no further transitions are defined.
func (s Status) Terminal() bool {
	return s == StatusCancelledByPatient || s == StatusCancelledByProfessional || s == StatusCompleted
}

// Cancelled reports whether the appointment was called off by either
// side. Cancelled rows never participate in overlap checks.
func (s Status) Cancelled() bool {
	return s == StatusCancelledByPatient || s == StatusCancelledByProfessional
}

// Actor identifies who is acting on an appointment.
type Actor string

const (
	ActorPatient      Actor = "patient"
	ActorProfessional Actor = "professional"
)

// Appointment occupies the half-open interval [StartTime, EndTime) of
// one psychologist's calendar. EndTime is derived from StartTime and
// Duration and is never accepted as independent input.
type Appointment struct {
	ID             string    `db:"id"`
	TenantID       string    `db:"tenant_id"`
	PatientID      string    `db:"patient_id"`
	PsychologistID string    `db:"psychologist_id"`
	StartTime      time.Time `db:"date_time"`
	Duration       int       `db:"duration"`
	EndTime        time.Time `db:"end_time"`
	Status         Status    `db:"status"`
	ValueCents     int64     `db:"value_cents"`
	Notes          string    `db:"notes"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// AvailableSlot is a published window during which a psychologist may
// be booked. Maintained elsewhere; read-only here.
type AvailableSlot struct {
	ID             string    `db:"id"`
	TenantID       string    `db:"tenant_id"`
	PsychologistID string    `db:"psychologist_id"`
	StartTime      time.Time `db:"start_time"`
	EndTime        time.Time `db:"end_time"`
	IsAvailable    bool      `db:"is_available"`
}

// Holiday is a tenant-wide non-bookable day. Date-only granularity.
type Holiday struct {
	ID          string    `db:"id"`
	TenantID    string    `db:"tenant_id"`
	Day         time.Time `db:"day"`
	Description string    `db:"description"`
}

// EndTimeFor derives the exclusive end of an appointment interval.
func EndTimeFor(start time.Time, durationMinutes int) time.Time {
	return start.Add(time.Duration(durationMinutes) * time.Minute)
}
