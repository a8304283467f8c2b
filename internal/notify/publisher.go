package notify

import (
	"context"
	"fmt"

	"github.com/psicare/platform/internal/scheduling"
	"github.com/psicare/platform/internal/tenancy"
	"github.com/psicare/platform/pkg/logging"
)

// Publisher turns booking outcomes into queue events. It implements the
// scheduling notifier so the booking core never sees the queue.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("notify: queue required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

func (p *Publisher) AppointmentBooked(ctx context.Context, appt *scheduling.Appointment) error {
	return p.publish(ctx, kindBooked, appt)
}

func (p *Publisher) AppointmentRescheduled(ctx context.Context, appt *scheduling.Appointment) error {
	return p.publish(ctx, kindRescheduled, appt)
}

func (p *Publisher) AppointmentCancelled(ctx context.Context, appt *scheduling.Appointment) error {
	return p.publish(ctx, kindCancelled, appt)
}

func (p *Publisher) publish(ctx context.Context, kind eventKind, appt *scheduling.Appointment) error {
	tenantID, err := tenancy.RequireTenantID(ctx)
	if err != nil {
		return err
	}
	body, err := encodeEvent(newEvent(kind, tenantID, appt))
	if err != nil {
		return err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("notify: publish %s: %w", kind, err)
	}
	p.logger.Debug("notification event published",
		"kind", string(kind), "tenant_id", tenantID, "appointment_id", appt.ID)
	return nil
}

var _ scheduling.Notifier = (*Publisher)(nil)
