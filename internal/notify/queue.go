// Package notify delivers appointment notifications. Booking operations
// publish events to a queue; a worker consumes them, resolves the
// recipients through the directory, and sends email. Delivery is
// best-effort and always happens after the booking is committed.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/psicare/platform/internal/scheduling"
)

// Queue is the transport between publisher and worker.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// QueueMessage is one received queue entry.
type QueueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type eventKind string

const (
	kindBooked      eventKind = "appointment.booked.v1"
	kindRescheduled eventKind = "appointment.rescheduled.v1"
	kindCancelled   eventKind = "appointment.cancelled.v1"
)

// appointmentEvent is the queue payload: a flat snapshot of the
// appointment at publish time, plus the tenant so the worker can
// restore scope before touching the directory.
type appointmentEvent struct {
	ID             string    `json:"id"`
	Kind           eventKind `json:"kind"`
	TenantID       string    `json:"tenant_id"`
	AppointmentID  string    `json:"appointment_id"`
	PatientID      string    `json:"patient_id"`
	PsychologistID string    `json:"psychologist_id"`
	StartTime      time.Time `json:"start_time"`
	Duration       int       `json:"duration"`
	EndTime        time.Time `json:"end_time"`
	Status         string    `json:"status"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func newEvent(kind eventKind, tenantID string, appt *scheduling.Appointment) appointmentEvent {
	return appointmentEvent{
		ID:             uuid.NewString(),
		Kind:           kind,
		TenantID:       tenantID,
		AppointmentID:  appt.ID,
		PatientID:      appt.PatientID,
		PsychologistID: appt.PsychologistID,
		StartTime:      appt.StartTime,
		Duration:       appt.Duration,
		EndTime:        appt.EndTime,
		Status:         string(appt.Status),
		OccurredAt:     time.Now().UTC(),
	}
}

func encodeEvent(evt appointmentEvent) (string, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return "", fmt.Errorf("notify: failed to encode event: %w", err)
	}
	return string(body), nil
}

func decodeEvent(body string) (appointmentEvent, error) {
	var evt appointmentEvent
	if err := json.Unmarshal([]byte(body), &evt); err != nil {
		return appointmentEvent{}, fmt.Errorf("notify: failed to decode event: %w", err)
	}
	return evt, nil
}
