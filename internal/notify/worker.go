package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/psicare/platform/internal/directory"
	"github.com/psicare/platform/internal/tenancy"
	"github.com/psicare/platform/pkg/logging"
)

// ContactDirectory resolves event participants to people with email
// addresses. Lookups return nil when the record is unknown to the
// event's tenant.
type ContactDirectory interface {
	GetPatient(ctx context.Context, tenantID, id string) (*directory.Patient, error)
	GetPsychologist(ctx context.Context, tenantID, id string) (*directory.Psychologist, error)
}

// Worker consumes appointment events and sends the corresponding
// emails. A message is deleted only after it was handled; on the SQS
// transport a failed message becomes visible again for redelivery,
// while the in-memory queue is best effort within the process.
type Worker struct {
	queue    Queue
	email    EmailSender
	contacts ContactDirectory
	workers  int
	logger   *logging.Logger
}

type WorkerConfig struct {
	Queue    Queue
	Email    EmailSender
	Contacts ContactDirectory
	Workers  int
	Logger   *logging.Logger
}

func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Queue == nil {
		panic("notify: queue required")
	}
	if cfg.Contacts == nil {
		panic("notify: contact directory required")
	}
	if cfg.Email == nil {
		cfg.Email = NewStubEmailSender(cfg.Logger)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Worker{
		queue:    cfg.Queue,
		email:    cfg.Email,
		contacts: cfg.Contacts,
		workers:  cfg.Workers,
		logger:   cfg.Logger,
	}
}

// NewInlineWorker wires a worker over an in-memory queue for single
// process deployments. The returned publisher feeds the worker.
func NewInlineWorker(email EmailSender, contacts ContactDirectory, logger *logging.Logger) (*Publisher, *Worker) {
	q := NewMemoryQueue(256)
	return NewPublisher(q, logger), NewWorker(WorkerConfig{
		Queue:    q,
		Email:    email,
		Contacts: contacts,
		Logger:   logger,
	})
}

// Run blocks, consuming events until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("notification worker starting", "workers", w.workers)

	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.consume(ctx)
		}()
	}
	wg.Wait()
	w.logger.Info("notification worker stopped")
	return ctx.Err()
}

func (w *Worker) consume(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		msgs, err := w.queue.Receive(ctx, 10, 20)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("notification receive failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			if err := w.handle(ctx, msg); err != nil {
				w.logger.Error("notification handling failed", "error", err, "message_id", msg.ID)
				continue
			}
			if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
				w.logger.Error("notification delete failed", "error", err, "message_id", msg.ID)
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg QueueMessage) error {
	evt, err := decodeEvent(msg.Body)
	if err != nil {
		return err
	}
	// Restore the tenant scope the event was published under.
	ctx = tenancy.WithTenantID(ctx, evt.TenantID)

	patient, err := w.contacts.GetPatient(ctx, evt.TenantID, evt.PatientID)
	if err != nil {
		return fmt.Errorf("notify: lookup patient: %w", err)
	}
	psych, err := w.contacts.GetPsychologist(ctx, evt.TenantID, evt.PsychologistID)
	if err != nil {
		return fmt.Errorf("notify: lookup psychologist: %w", err)
	}

	for _, msg := range composeEmails(evt, patient, psych) {
		if err := w.email.Send(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// composeEmails builds one message per reachable participant. Missing
// or address-less participants are skipped, never an error: the event
// is still consumed.
func composeEmails(evt appointmentEvent, patient *directory.Patient, psych *directory.Psychologist) []EmailMessage {
	psychName := "your psychologist"
	if psych != nil && psych.Name != "" {
		psychName = psych.Name
	}
	patientName := "A patient"
	if patient != nil && patient.Name != "" {
		patientName = patient.Name
	}
	when := evt.StartTime.Format("Monday, January 2 at 3:04 PM")

	var subject, patientBody, psychBody string
	switch evt.Kind {
	case kindBooked:
		subject = fmt.Sprintf("Appointment confirmed - %s", when)
		patientBody = fmt.Sprintf(`Your appointment with %s is confirmed.

When: %s
Duration: %d minutes

If you need to change it, please reschedule through your clinic.`,
			psychName, when, evt.Duration)
		psychBody = fmt.Sprintf(`%s booked an appointment with you.

When: %s
Duration: %d minutes`, patientName, when, evt.Duration)
	case kindRescheduled:
		subject = fmt.Sprintf("Appointment rescheduled - %s", when)
		patientBody = fmt.Sprintf(`Your appointment with %s has been moved.

New time: %s
Duration: %d minutes`, psychName, when, evt.Duration)
		psychBody = fmt.Sprintf(`The appointment with %s has been moved.

New time: %s
Duration: %d minutes`, patientName, when, evt.Duration)
	case kindCancelled:
		subject = fmt.Sprintf("Appointment cancelled - %s", when)
		patientBody = fmt.Sprintf("Your appointment with %s on %s has been cancelled.", psychName, when)
		psychBody = fmt.Sprintf("The appointment with %s on %s has been cancelled.", patientName, when)
	default:
		return nil
	}

	var out []EmailMessage
	if patient != nil && patient.Email != "" {
		out = append(out, EmailMessage{
			To:      patient.Email,
			ToName:  patient.Name,
			Subject: subject,
			Body:    patientBody,
		})
	}
	if psych != nil && psych.Email != "" {
		out = append(out, EmailMessage{
			To:      psych.Email,
			ToName:  psych.Name,
			Subject: subject,
			Body:    psychBody,
		})
	}
	return out
}
