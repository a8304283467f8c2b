package scheduling

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/psicare/platform/internal/observability/metrics"
	"github.com/psicare/platform/internal/tenancy"
	"github.com/psicare/platform/pkg/logging"
)

var schedulingTracer = otel.Tracer("psicare.internal.scheduling")

// Directory answers existence and tenant-membership questions about
// the people involved in a booking.
type Directory interface {
	PatientExists(ctx context.Context, tenantID, patientID string) (bool, error)
	PsychologistExists(ctx context.Context, tenantID, psychologistID string) (bool, error)
}

// Notifier delivers appointment notifications. Implementations are
// best-effort: the booking is already committed when they run.
type Notifier interface {
	AppointmentBooked(ctx context.Context, appt *Appointment) error
	AppointmentRescheduled(ctx context.Context, appt *Appointment) error
	AppointmentCancelled(ctx context.Context, appt *Appointment) error
}

// PaymentCreator opens a charge for a booked appointment, outside the
// booking's transactional boundary.
type PaymentCreator interface {
	CreateCharge(ctx context.Context, appt *Appointment) error
}

// Store is the persistence surface the service writes through.
// *Repository is the production implementation.
type Store interface {
	Create(ctx context.Context, a *Appointment) (*Appointment, error)
	Get(ctx context.Context, id string) (*Appointment, error)
	UpdateTimes(ctx context.Context, id string, start time.Time, duration int, end time.Time) (*Appointment, error)
	UpdateStatus(ctx context.Context, id string, from, to Status) (*Appointment, error)
	List(ctx context.Context, f ListFilter) ([]Appointment, error)
	FindConflicts(ctx context.Context, psychologistID string, from, to time.Time) ([]Appointment, error)
}

// Service orchestrates the booking operations: tenant verification,
// existence checks, availability, lifecycle, persistence, and the
// asynchronous side effects.
type Service struct {
	repo     Store
	checker  *Checker
	dir      Directory
	notifier Notifier
	payments PaymentCreator
	cache    *ListCache
	locks    *keyedMutex
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger
}

// Config wires a Service. Repo, Checker and Directory are required;
// the rest degrade gracefully when absent.
type Config struct {
	Repo      Store
	Checker   *Checker
	Directory Directory
	Notifier  Notifier
	Payments  PaymentCreator
	Cache     *ListCache
	Metrics   *metrics.SchedulingMetrics
	Logger    *logging.Logger
}

func NewService(cfg Config) *Service {
	if cfg.Repo == nil {
		panic("scheduling: repository required")
	}
	if cfg.Checker == nil {
		panic("scheduling: checker required")
	}
	if cfg.Directory == nil {
		panic("scheduling: directory required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Service{
		repo:     cfg.Repo,
		checker:  cfg.Checker,
		dir:      cfg.Directory,
		notifier: cfg.Notifier,
		payments: cfg.Payments,
		cache:    cfg.Cache,
		locks:    newKeyedMutex(),
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

// CreateRequest describes a proposed booking.
type CreateRequest struct {
	TenantID       string
	PatientID      string
	PsychologistID string
	StartTime      time.Time
	Duration       int
	ValueCents     int64
	Notes          string
}

// Create books a new appointment. The check-then-act sequence is
// serialized per (tenant, psychologist); nothing is persisted when any
// step rejects.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.create")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveLatency("create", time.Since(start).Seconds()) }()

	tenantID, err := s.verifyTenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("psicare.tenant_id", tenantID),
		attribute.String("psicare.psychologist_id", req.PsychologistID),
	)

	if err := validateCreate(req); err != nil {
		return nil, err
	}

	if err := s.checkParticipants(ctx, tenantID, req.PatientID, req.PsychologistID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(lockKey(tenantID, req.PsychologistID))
	defer unlock()

	decision, err := s.checker.Check(ctx, CheckRequest{
		PsychologistID: req.PsychologistID,
		StartTime:      req.StartTime,
		Duration:       req.Duration,
	})
	if err != nil {
		return nil, err
	}
	if !decision.Free {
		s.metrics.ObserveBooking("create", "conflict")
		s.metrics.ObserveConflict(string(decision.Reason))
		return nil, &ConflictError{Reason: decision.Reason}
	}

	appt, err := s.repo.Create(ctx, &Appointment{
		PatientID:      req.PatientID,
		PsychologistID: req.PsychologistID,
		StartTime:      req.StartTime,
		Duration:       req.Duration,
		EndTime:        EndTimeFor(req.StartTime, req.Duration),
		Status:         StatusScheduled,
		ValueCents:     req.ValueCents,
		Notes:          req.Notes,
	})
	if err != nil {
		if ce, ok := AsConflict(err); ok {
			s.metrics.ObserveBooking("create", "conflict")
			s.metrics.ObserveConflict(string(ce.Reason))
		}
		return nil, err
	}

	s.metrics.ObserveBooking("create", "scheduled")
	s.cache.Invalidate(ctx, tenantID)
	s.logger.Info("appointment booked",
		"tenant_id", tenantID,
		"appointment_id", appt.ID,
		"psychologist_id", appt.PsychologistID,
		"start", appt.StartTime,
	)

	s.dispatch(ctx, func(ctx context.Context) {
		if s.notifier != nil {
			if err := s.notifier.AppointmentBooked(ctx, appt); err != nil {
				s.logger.Error("booking notification failed", "error", err, "appointment_id", appt.ID)
			}
		}
		if s.payments != nil {
			if err := s.payments.CreateCharge(ctx, appt); err != nil {
				s.logger.Error("payment creation failed", "error", err, "appointment_id", appt.ID)
			}
		}
	})

	return appt, nil
}

// RescheduleRequest moves an appointment. StartTime and Duration are
// independently optional; the end time is always recomputed from the
// effective pair.
type RescheduleRequest struct {
	ID        string
	TenantID  string
	StartTime *time.Time
	Duration  *int
}

// Reschedule re-runs the full availability check against the new time,
// excluding the appointment itself.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) (*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.reschedule")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveLatency("reschedule", time.Since(start).Seconds()) }()

	tenantID, err := s.verifyTenant(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if req.StartTime == nil && req.Duration == nil {
		return nil, &ValidationError{Field: "reschedule", Msg: "nothing to change"}
	}

	current, err := s.repo.Get(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if !CanReschedule(current.Status) {
		return nil, &ConflictError{Reason: ReasonInvalidTransition}
	}

	newStart := current.StartTime
	if req.StartTime != nil {
		newStart = *req.StartTime
	}
	newDuration := current.Duration
	if req.Duration != nil {
		newDuration = *req.Duration
	}
	if newDuration <= 0 {
		return nil, &ValidationError{Field: "duration", Msg: "must be positive"}
	}

	unlock := s.locks.Lock(lockKey(tenantID, current.PsychologistID))
	defer unlock()

	decision, err := s.checker.Check(ctx, CheckRequest{
		PsychologistID:       current.PsychologistID,
		StartTime:            newStart,
		Duration:             newDuration,
		ExcludeAppointmentID: current.ID,
	})
	if err != nil {
		return nil, err
	}
	if !decision.Free {
		s.metrics.ObserveBooking("reschedule", "conflict")
		s.metrics.ObserveConflict(string(decision.Reason))
		return nil, &ConflictError{Reason: decision.Reason}
	}

	appt, err := s.repo.UpdateTimes(ctx, current.ID, newStart, newDuration, EndTimeFor(newStart, newDuration))
	if err != nil {
		if IsNotFound(err) {
			// Loaded moments ago but gone from SCHEDULED now: a
			// concurrent transition won.
			return nil, &ConflictError{Reason: ReasonInvalidTransition}
		}
		return nil, err
	}

	s.metrics.ObserveBooking("reschedule", "scheduled")
	s.cache.Invalidate(ctx, tenantID)
	s.logger.Info("appointment rescheduled",
		"tenant_id", tenantID, "appointment_id", appt.ID, "start", appt.StartTime)

	s.dispatch(ctx, func(ctx context.Context) {
		if s.notifier != nil {
			if err := s.notifier.AppointmentRescheduled(ctx, appt); err != nil {
				s.logger.Error("reschedule notification failed", "error", err, "appointment_id", appt.ID)
			}
		}
	})

	return appt, nil
}

// Cancel moves a SCHEDULED appointment to the cancelled status for the
// actor. Cancelling twice fails with INVALID_TRANSITION.
func (s *Service) Cancel(ctx context.Context, id, tenantID string, actor Actor) (*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.cancel")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveLatency("cancel", time.Since(start).Seconds()) }()

	tenant, err := s.verifyTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	target, err := CancelStatus(actor)
	if err != nil {
		return nil, err
	}
	appt, err := s.transition(ctx, id, target)
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveBooking("cancel", string(target))
	s.cache.Invalidate(ctx, tenant)
	s.logger.Info("appointment cancelled",
		"tenant_id", tenant, "appointment_id", appt.ID, "actor", string(actor))

	s.dispatch(ctx, func(ctx context.Context) {
		if s.notifier != nil {
			if err := s.notifier.AppointmentCancelled(ctx, appt); err != nil {
				s.logger.Error("cancel notification failed", "error", err, "appointment_id", appt.ID)
			}
		}
	})

	return appt, nil
}

// Complete marks a SCHEDULED appointment as held.
func (s *Service) Complete(ctx context.Context, id, tenantID string) (*Appointment, error) {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.complete")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveLatency("complete", time.Since(start).Seconds()) }()

	tenant, err := s.verifyTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	appt, err := s.transition(ctx, id, StatusCompleted)
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveBooking("complete", string(StatusCompleted))
	s.cache.Invalidate(ctx, tenant)
	return appt, nil
}

// Get returns one appointment, tenant-scoped.
func (s *Service) Get(ctx context.Context, id, tenantID string) (*Appointment, error) {
	if _, err := s.verifyTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// List returns tenant appointments, served from cache when possible.
func (s *Service) List(ctx context.Context, tenantID string, f ListFilter) ([]Appointment, error) {
	tenant, err := s.verifyTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if rows, ok := s.cache.Get(ctx, tenant, f); ok {
		return rows, nil
	}
	rows, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, tenant, f, rows)
	return rows, nil
}

// FindConflicts lists the psychologist's non-cancelled appointments
// intersecting [from, to). Read-only, no side effects.
func (s *Service) FindConflicts(ctx context.Context, tenantID, psychologistID string, from, to time.Time) ([]Appointment, error) {
	if _, err := s.verifyTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.repo.FindConflicts(ctx, psychologistID, from, to)
}

// transition loads the appointment (not-found covers foreign tenants)
// and applies the lifecycle change atomically.
func (s *Service) transition(ctx context.Context, id string, target Status) (*Appointment, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := Transition(current.Status, target); err != nil {
		return nil, err
	}
	appt, err := s.repo.UpdateStatus(ctx, id, StatusScheduled, target)
	if err != nil {
		if IsNotFound(err) {
			// Lost a race against another transition.
			return nil, &ConflictError{Reason: ReasonInvalidTransition}
		}
		return nil, err
	}
	return appt, nil
}

func (s *Service) verifyTenant(ctx context.Context, explicit string) (string, error) {
	if err := tenancy.Verify(ctx, explicit); err != nil {
		return "", err
	}
	return tenancy.RequireTenantID(ctx)
}

func (s *Service) checkParticipants(ctx context.Context, tenantID, patientID, psychologistID string) error {
	ok, err := s.dir.PatientExists(ctx, tenantID, patientID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPatientNotFound
	}
	ok, err = s.dir.PsychologistExists(ctx, tenantID, psychologistID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPsychologistNotFound
	}
	return nil
}

// dispatch runs side effects after the booking is committed. The
// detached context keeps the tenant scope but not the caller's
// cancellation: aborting the request no longer affects the outcome.
func (s *Service) dispatch(ctx context.Context, fn func(context.Context)) {
	detached := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(detached, 30*time.Second)
		defer cancel()
		fn(ctx)
	}()
}

func validateCreate(req CreateRequest) error {
	if req.PatientID == "" {
		return &ValidationError{Field: "patient_id", Msg: "required"}
	}
	if req.PsychologistID == "" {
		return &ValidationError{Field: "psychologist_id", Msg: "required"}
	}
	if req.StartTime.IsZero() {
		return &ValidationError{Field: "start_time", Msg: "required"}
	}
	if req.Duration <= 0 {
		return &ValidationError{Field: "duration", Msg: "must be positive"}
	}
	if req.ValueCents < 0 {
		return &ValidationError{Field: "value_cents", Msg: "must not be negative"}
	}
	return nil
}
