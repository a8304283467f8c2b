package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psicare/platform/internal/http/handlers"
	"github.com/psicare/platform/internal/scheduling"
	"github.com/psicare/platform/pkg/logging"
)

type nopStore struct{}

func (nopStore) Create(context.Context, *scheduling.Appointment) (*scheduling.Appointment, error) {
	return nil, scheduling.ErrAppointmentNotFound
}

func (nopStore) Get(context.Context, string) (*scheduling.Appointment, error) {
	return nil, scheduling.ErrAppointmentNotFound
}

func (nopStore) UpdateTimes(context.Context, string, time.Time, int, time.Time) (*scheduling.Appointment, error) {
	return nil, scheduling.ErrAppointmentNotFound
}

func (nopStore) UpdateStatus(context.Context, string, scheduling.Status, scheduling.Status) (*scheduling.Appointment, error) {
	return nil, scheduling.ErrAppointmentNotFound
}

func (nopStore) List(context.Context, scheduling.ListFilter) ([]scheduling.Appointment, error) {
	return nil, nil
}

func (nopStore) FindConflicts(context.Context, string, time.Time, time.Time) ([]scheduling.Appointment, error) {
	return nil, nil
}

type nopAvail struct{}

func (nopAvail) IsHoliday(context.Context, time.Time) (bool, error) { return false, nil }
func (nopAvail) HasCoveringSlot(context.Context, string, time.Time, time.Time) (bool, error) {
	return true, nil
}
func (nopAvail) HasOverlap(context.Context, string, time.Time, time.Time, string) (bool, error) {
	return false, nil
}

type nopDirectory struct{}

func (nopDirectory) PatientExists(context.Context, string, string) (bool, error) { return true, nil }
func (nopDirectory) PsychologistExists(context.Context, string, string) (bool, error) {
	return true, nil
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	svc := scheduling.NewService(scheduling.Config{
		Repo:      nopStore{},
		Checker:   scheduling.NewChecker(nopAvail{}),
		Directory: nopDirectory{},
		Logger:    logging.Default(),
	})
	return &Config{
		Logger:       logging.Default(),
		Appointments: handlers.NewAppointmentsHandler(svc, logging.Default()),
	}
}

func TestHealthEndpoint(t *testing.T) {
	r := New(testConfig(t))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpointMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	cfg := testConfig(t)
	cfg.MetricsHandler = metrics
	r := New(cfg)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresSessionTokenWhenConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.SessionJWTSecret = "secret"
	r := New(cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
	req.Header.Set("X-Tenant-ID", "clinic-a")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIRequiresTenantHeader(t *testing.T) {
	r := New(testConfig(t))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/appointments", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// With the tenant header set and no session secret configured, the
// request passes the middleware chain and reaches the handler.
func TestAPIReachableWithTenantHeader(t *testing.T) {
	r := New(testConfig(t))

	req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
	req.Header.Set("X-Tenant-ID", "clinic-a")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
