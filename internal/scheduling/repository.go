package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/psicare/platform/internal/gateway"
)

var appointmentColumns = []string{
	"id", "tenant_id", "patient_id", "psychologist_id", "date_time",
	"duration", "end_time", "status", "value_cents", "notes",
	"created_at", "updated_at",
}

var slotColumns = []string{
	"id", "tenant_id", "psychologist_id", "start_time", "end_time", "is_available",
}

var holidayColumns = []string{"id", "tenant_id", "day", "description"}

const notCancelled = "status NOT IN ('CANCELLED_BY_PATIENT', 'CANCELLED_BY_PROFESSIONAL')"

// Repository persists appointments and reads slots and holidays, all
// through the tenant-scoped gateway. It also implements
// AvailabilityStore for the checker.
type Repository struct {
	appointments *gateway.Entity[Appointment]
	slots        *gateway.Entity[AvailableSlot]
	holidays     *gateway.Entity[Holiday]
}

func NewRepository(db gateway.DB) *Repository {
	return &Repository{
		appointments: gateway.NewEntity[Appointment](db, "appointments", appointmentColumns),
		slots:        gateway.NewEntity[AvailableSlot](db, "available_slots", slotColumns),
		holidays:     gateway.NewEntity[Holiday](db, "holidays", holidayColumns),
	}
}

// ListFilter narrows List results. Zero values are ignored.
type ListFilter struct {
	PsychologistID string
	PatientID      string
	Status         Status
	From           time.Time
	To             time.Time
}

// Create inserts a new appointment row. A row that loses the race
// against the exclusion constraint comes back as TIME_CONFLICT, not as
// a double booking.
func (r *Repository) Create(ctx context.Context, a *Appointment) (*Appointment, error) {
	now := time.Now().UTC()
	values := map[string]any{
		"id":              uuid.NewString(),
		"patient_id":      a.PatientID,
		"psychologist_id": a.PsychologistID,
		"date_time":       a.StartTime,
		"duration":        a.Duration,
		"end_time":        a.EndTime,
		"status":          string(a.Status),
		"value_cents":     a.ValueCents,
		"notes":           a.Notes,
		"created_at":      now,
		"updated_at":      now,
	}
	row, err := r.appointments.Create(ctx, values)
	if err != nil {
		if isOverlapViolation(err) {
			return nil, &ConflictError{Reason: ReasonTimeConflict}
		}
		return nil, err
	}
	return row, nil
}

// Get loads one appointment scoped to the current tenant.
func (r *Repository) Get(ctx context.Context, id string) (*Appointment, error) {
	row, err := r.appointments.FindOne(ctx, gateway.Filter{"id": id})
	if errors.Is(err, gateway.ErrNotFound) {
		return nil, ErrAppointmentNotFound
	}
	return row, err
}

// UpdateTimes moves an appointment. The status filter makes the write
// atomic against a concurrent transition: a row no longer SCHEDULED is
// not touched.
func (r *Repository) UpdateTimes(ctx context.Context, id string, start time.Time, duration int, end time.Time) (*Appointment, error) {
	row, err := r.appointments.Update(ctx,
		gateway.Filter{"id": id, "status": string(StatusScheduled)},
		map[string]any{
			"date_time":  start,
			"duration":   duration,
			"end_time":   end,
			"updated_at": time.Now().UTC(),
		})
	if err != nil {
		if isOverlapViolation(err) {
			return nil, &ConflictError{Reason: ReasonTimeConflict}
		}
		if errors.Is(err, gateway.ErrNotFound) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return row, nil
}

// UpdateStatus transitions an appointment from one status to another
// atomically; no row matches when the appointment is absent, foreign,
// or already transitioned.
func (r *Repository) UpdateStatus(ctx context.Context, id string, from, to Status) (*Appointment, error) {
	row, err := r.appointments.Update(ctx,
		gateway.Filter{"id": id, "status": string(from)},
		map[string]any{
			"status":     string(to),
			"updated_at": time.Now().UTC(),
		})
	if errors.Is(err, gateway.ErrNotFound) {
		return nil, ErrAppointmentNotFound
	}
	return row, err
}

// List returns appointments for the current tenant, newest first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Appointment, error) {
	filter := gateway.Filter{}
	if f.PsychologistID != "" {
		filter["psychologist_id"] = f.PsychologistID
	}
	if f.PatientID != "" {
		filter["patient_id"] = f.PatientID
	}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}

	var cond string
	var args []any
	switch {
	case !f.From.IsZero() && !f.To.IsZero():
		cond, args = "date_time >= $1 AND date_time <= $2", []any{f.From, f.To}
	case !f.From.IsZero():
		cond, args = "date_time >= $1", []any{f.From}
	case !f.To.IsZero():
		cond, args = "date_time <= $1", []any{f.To}
	}

	return r.appointments.FindManyWhere(ctx, cond, args, filter,
		&gateway.ListOptions{OrderBy: "date_time", Desc: true})
}

// FindConflicts returns the non-cancelled appointments of a
// psychologist intersecting the half-open window [from, to).
func (r *Repository) FindConflicts(ctx context.Context, psychologistID string, from, to time.Time) ([]Appointment, error) {
	cond := fmt.Sprintf("date_time < $1 AND end_time > $2 AND %s", notCancelled)
	return r.appointments.FindManyWhere(ctx, cond, []any{to, from},
		gateway.Filter{"psychologist_id": psychologistID},
		&gateway.ListOptions{OrderBy: "date_time"})
}

// IsHoliday implements AvailabilityStore. Holiday matching is by
// calendar date (UTC) only.
func (r *Repository) IsHoliday(ctx context.Context, day time.Time) (bool, error) {
	return r.holidays.ExistsWhere(ctx, "day = $1",
		[]any{day.UTC().Format("2006-01-02")}, nil)
}

// HasCoveringSlot implements AvailabilityStore: some published,
// available slot must fully contain [start, end).
func (r *Repository) HasCoveringSlot(ctx context.Context, psychologistID string, start, end time.Time) (bool, error) {
	return r.slots.ExistsWhere(ctx, "start_time <= $1 AND end_time >= $2",
		[]any{start, end},
		gateway.Filter{"psychologist_id": psychologistID, "is_available": true})
}

// HasOverlap implements AvailabilityStore using the half-open interval
// model: an existing row conflicts iff it starts before the proposed
// end and ends after the proposed start.
func (r *Repository) HasOverlap(ctx context.Context, psychologistID string, start, end time.Time, excludeID string) (bool, error) {
	cond := fmt.Sprintf("date_time < $1 AND end_time > $2 AND %s", notCancelled)
	args := []any{end, start}
	if excludeID != "" {
		cond += " AND id <> $3"
		args = append(args, excludeID)
	}
	return r.appointments.ExistsWhere(ctx, cond, args,
		gateway.Filter{"psychologist_id": psychologistID})
}

// isOverlapViolation detects the exclusion (or unique) constraint on
// overlapping SCHEDULED intervals.
func isOverlapViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23P01" || pgErr.Code == "23505"
}
