package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psicare/platform/internal/scheduling"
	"github.com/psicare/platform/internal/tenancy"
	"github.com/psicare/platform/pkg/logging"
)

type stubStore struct {
	appts map[string]*scheduling.Appointment
}

func (s *stubStore) Create(_ context.Context, a *scheduling.Appointment) (*scheduling.Appointment, error) {
	stored := *a
	stored.ID = "appt-1"
	stored.TenantID = "clinic-a"
	s.appts[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (s *stubStore) Get(_ context.Context, id string) (*scheduling.Appointment, error) {
	a, ok := s.appts[id]
	if !ok {
		return nil, scheduling.ErrAppointmentNotFound
	}
	out := *a
	return &out, nil
}

func (s *stubStore) UpdateTimes(_ context.Context, id string, start time.Time, duration int, end time.Time) (*scheduling.Appointment, error) {
	a, ok := s.appts[id]
	if !ok || a.Status != scheduling.StatusScheduled {
		return nil, scheduling.ErrAppointmentNotFound
	}
	a.StartTime, a.Duration, a.EndTime = start, duration, end
	out := *a
	return &out, nil
}

func (s *stubStore) UpdateStatus(_ context.Context, id string, from, to scheduling.Status) (*scheduling.Appointment, error) {
	a, ok := s.appts[id]
	if !ok || a.Status != from {
		return nil, scheduling.ErrAppointmentNotFound
	}
	a.Status = to
	out := *a
	return &out, nil
}

func (s *stubStore) List(_ context.Context, _ scheduling.ListFilter) ([]scheduling.Appointment, error) {
	var out []scheduling.Appointment
	for _, a := range s.appts {
		out = append(out, *a)
	}
	return out, nil
}

func (s *stubStore) FindConflicts(_ context.Context, _ string, _, _ time.Time) ([]scheduling.Appointment, error) {
	return nil, nil
}

type stubAvail struct {
	holiday bool
	covered bool
	overlap bool
}

func (s *stubAvail) IsHoliday(context.Context, time.Time) (bool, error) { return s.holiday, nil }
func (s *stubAvail) HasCoveringSlot(context.Context, string, time.Time, time.Time) (bool, error) {
	return s.covered, nil
}
func (s *stubAvail) HasOverlap(context.Context, string, time.Time, time.Time, string) (bool, error) {
	return s.overlap, nil
}

type okDirectory struct{}

func (okDirectory) PatientExists(context.Context, string, string) (bool, error) { return true, nil }
func (okDirectory) PsychologistExists(context.Context, string, string) (bool, error) {
	return true, nil
}

func newTestRouter(t *testing.T, avail *stubAvail) (http.Handler, *stubStore) {
	t.Helper()
	store := &stubStore{appts: make(map[string]*scheduling.Appointment)}
	svc := scheduling.NewService(scheduling.Config{
		Repo:      store,
		Checker:   scheduling.NewChecker(avail),
		Directory: okDirectory{},
		Logger:    logging.Default(),
	})
	h := NewAppointmentsHandler(svc, logging.Default())

	r := chi.NewRouter()
	r.Route("/api", func(api chi.Router) {
		api.Use(tenancy.Middleware())
		api.Post("/appointments", h.Create)
		api.Get("/appointments", h.List)
		api.Get("/appointments/{id}", h.Get)
		api.Patch("/appointments/{id}", h.Reschedule)
		api.Post("/appointments/{id}/cancel", h.Cancel)
		api.Post("/appointments/{id}/complete", h.Complete)
		api.Get("/psychologists/{id}/conflicts", h.Conflicts)
	})
	return r, store
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Tenant-ID", "clinic-a")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const createBody = `{
	"patient_id": "pat-1",
	"psychologist_id": "doc-1",
	"date_time": "2025-06-02T09:00:00Z",
	"duration": 60,
	"value_cents": 15000
}`

func TestCreateAppointmentEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &stubAvail{covered: true})

	rec := doRequest(t, router, http.MethodPost, "/api/appointments", createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp appointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "appt-1", resp.ID)
	assert.Equal(t, "SCHEDULED", resp.Status)
	assert.Equal(t, "2025-06-02T10:00:00Z", resp.EndTime.Format(time.RFC3339))
}

func TestCreateWithoutTenantHeaderRejected(t *testing.T) {
	router, _ := newTestRouter(t, &stubAvail{covered: true})

	req := httptest.NewRequest(http.MethodPost, "/api/appointments", strings.NewReader(createBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateConflictSurfacesReason(t *testing.T) {
	router, _ := newTestRouter(t, &stubAvail{covered: true, overlap: true})

	rec := doRequest(t, router, http.MethodPost, "/api/appointments", createBody)
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "TIME_CONFLICT", resp["reason"])
}

func TestCreateOnHolidayConflict(t *testing.T) {
	router, _ := newTestRouter(t, &stubAvail{covered: true, holiday: true})

	rec := doRequest(t, router, http.MethodPost, "/api/appointments", createBody)
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "HOLIDAY_CONFLICT", resp["reason"])
}

func TestCreateValidationError(t *testing.T) {
	router, _ := newTestRouter(t, &stubAvail{covered: true})

	body := `{"patient_id": "pat-1", "psychologist_id": "doc-1", "date_time": "2025-06-02T09:00:00Z", "duration": -5}`
	rec := doRequest(t, router, http.MethodPost, "/api/appointments", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "duration", resp["field"])
}

func TestGetUnknownAppointment(t *testing.T) {
	router, _ := newTestRouter(t, &stubAvail{covered: true})

	rec := doRequest(t, router, http.MethodGet, "/api/appointments/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &stubAvail{covered: true})

	rec := doRequest(t, router, http.MethodPost, "/api/appointments", createBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/appointments/appt-1/cancel", `{"actor": "patient"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp appointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "CANCELLED_BY_PATIENT", resp.Status)

	// Second cancel is an invalid transition, not a repeat success.
	rec = doRequest(t, router, http.MethodPost, "/api/appointments/appt-1/cancel", `{"actor": "patient"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	var conflict map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflict))
	assert.Equal(t, "INVALID_TRANSITION", conflict["reason"])
}

func TestCancelRejectsUnknownActor(t *testing.T) {
	router, _ := newTestRouter(t, &stubAvail{covered: true})

	rec := doRequest(t, router, http.MethodPost, "/api/appointments/appt-1/cancel", `{"actor": "receptionist"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRescheduleEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &stubAvail{covered: true})

	rec := doRequest(t, router, http.MethodPost, "/api/appointments", createBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, router, http.MethodPatch, "/api/appointments/appt-1", `{"duration": 90}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp appointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 90, resp.Duration)
	assert.Equal(t, "2025-06-02T10:30:00Z", resp.EndTime.Format(time.RFC3339))
}

func TestRescheduleWithEmptyBody(t *testing.T) {
	router, _ := newTestRouter(t, &stubAvail{covered: true})

	rec := doRequest(t, router, http.MethodPost, "/api/appointments", createBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, router, http.MethodPatch, "/api/appointments/appt-1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConflictsRequiresWindow(t *testing.T) {
	router, _ := newTestRouter(t, &stubAvail{covered: true})

	rec := doRequest(t, router, http.MethodGet, "/api/psychologists/doc-1/conflicts", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet,
		"/api/psychologists/doc-1/conflicts?from=2025-06-02T00:00:00Z&to=2025-06-03T00:00:00Z", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &stubAvail{covered: true})

	rec := doRequest(t, router, http.MethodPost, "/api/appointments", createBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/appointments?psychologist_id=doc-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Appointments []appointmentResponse `json:"appointments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Appointments, 1)
}
