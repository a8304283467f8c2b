// Package handlers exposes the booking operations over HTTP. Handlers
// translate between the wire format and the scheduling service; all
// business rules live below.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/psicare/platform/internal/http/middleware"
	"github.com/psicare/platform/internal/scheduling"
	"github.com/psicare/platform/internal/tenancy"
	"github.com/psicare/platform/pkg/logging"
)

// AppointmentsHandler serves the appointment booking endpoints.
type AppointmentsHandler struct {
	service *scheduling.Service
	logger  *logging.Logger
}

func NewAppointmentsHandler(service *scheduling.Service, logger *logging.Logger) *AppointmentsHandler {
	if service == nil {
		panic("handlers: scheduling service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{service: service, logger: logger}
}

type createAppointmentRequest struct {
	PatientID      string    `json:"patient_id"`
	PsychologistID string    `json:"psychologist_id"`
	DateTime       time.Time `json:"date_time"`
	Duration       int       `json:"duration"`
	ValueCents     int64     `json:"value_cents"`
	Notes          string    `json:"notes"`
}

type rescheduleAppointmentRequest struct {
	DateTime *time.Time `json:"date_time"`
	Duration *int       `json:"duration"`
}

type cancelAppointmentRequest struct {
	Actor string `json:"actor"`
}

type appointmentResponse struct {
	ID             string    `json:"id"`
	PatientID      string    `json:"patient_id"`
	PsychologistID string    `json:"psychologist_id"`
	DateTime       time.Time `json:"date_time"`
	Duration       int       `json:"duration"`
	EndTime        time.Time `json:"end_time"`
	Status         string    `json:"status"`
	ValueCents     int64     `json:"value_cents"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toResponse(a *scheduling.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:             a.ID,
		PatientID:      a.PatientID,
		PsychologistID: a.PsychologistID,
		DateTime:       a.StartTime,
		Duration:       a.Duration,
		EndTime:        a.EndTime,
		Status:         string(a.Status),
		ValueCents:     a.ValueCents,
		Notes:          a.Notes,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

// Create handles POST /api/appointments.
func (h *AppointmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenancy.RequireTenantID(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	appt, err := h.service.Create(r.Context(), scheduling.CreateRequest{
		TenantID:       tenantID,
		PatientID:      req.PatientID,
		PsychologistID: req.PsychologistID,
		StartTime:      req.DateTime,
		Duration:       req.Duration,
		ValueCents:     req.ValueCents,
		Notes:          req.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(appt))
}

// Get handles GET /api/appointments/{id}.
func (h *AppointmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenancy.RequireTenantID(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	appt, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), tenantID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

// List handles GET /api/appointments with optional filters.
func (h *AppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenancy.RequireTenantID(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	filter := scheduling.ListFilter{
		PsychologistID: r.URL.Query().Get("psychologist_id"),
		PatientID:      r.URL.Query().Get("patient_id"),
		Status:         scheduling.Status(r.URL.Query().Get("status")),
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from timestamp"})
			return
		}
		filter.From = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to timestamp"})
			return
		}
		filter.To = t
	}

	rows, err := h.service.List(r.Context(), tenantID, filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]appointmentResponse, 0, len(rows))
	for i := range rows {
		out = append(out, toResponse(&rows[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

// Reschedule handles PATCH /api/appointments/{id}.
func (h *AppointmentsHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenancy.RequireTenantID(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req rescheduleAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	appt, err := h.service.Reschedule(r.Context(), scheduling.RescheduleRequest{
		ID:        chi.URLParam(r, "id"),
		TenantID:  tenantID,
		StartTime: req.DateTime,
		Duration:  req.Duration,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

// Cancel handles POST /api/appointments/{id}/cancel. The acting party
// comes from the session token when present, otherwise from the body.
func (h *AppointmentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenancy.RequireTenantID(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	actor := ""
	if claims, ok := middleware.SessionClaimsFromContext(r.Context()); ok {
		actor = claims.Role
	}
	if actor == "" {
		var req cancelAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			actor = req.Actor
		}
	}
	if actor != string(scheduling.ActorPatient) && actor != string(scheduling.ActorProfessional) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "actor must be patient or professional"})
		return
	}

	appt, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), tenantID, scheduling.Actor(actor))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

// Complete handles POST /api/appointments/{id}/complete.
func (h *AppointmentsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenancy.RequireTenantID(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	appt, err := h.service.Complete(r.Context(), chi.URLParam(r, "id"), tenantID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

// Conflicts handles GET /api/psychologists/{id}/conflicts?from=&to=.
func (h *AppointmentsHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenancy.RequireTenantID(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from timestamp"})
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to timestamp"})
		return
	}

	rows, err := h.service.FindConflicts(r.Context(), tenantID, chi.URLParam(r, "id"), from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]appointmentResponse, 0, len(rows))
	for i := range rows {
		out = append(out, toResponse(&rows[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": out})
}

// writeError maps service errors onto the HTTP surface. Tenant plumbing
// failures are programmer errors and stay opaque to the client.
func (h *AppointmentsHandler) writeError(w http.ResponseWriter, err error) {
	if ve, ok := scheduling.AsValidation(err); ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": ve.Msg,
			"field": ve.Field,
		})
		return
	}
	if ce, ok := scheduling.AsConflict(err); ok {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  "booking conflict",
			"reason": string(ce.Reason),
		})
		return
	}
	if scheduling.IsNotFound(err) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if errors.Is(err, tenancy.ErrMissingTenant) || errors.Is(err, tenancy.ErrTenantMismatch) {
		h.logger.Error("tenant plumbing error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	h.logger.Error("appointment request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
