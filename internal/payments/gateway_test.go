package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psicare/platform/internal/scheduling"
	"github.com/psicare/platform/internal/tenancy"
	"github.com/psicare/platform/pkg/logging"
)

func paidAppt() *scheduling.Appointment {
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	return &scheduling.Appointment{
		ID:             "appt-1",
		TenantID:       "clinic-a",
		PatientID:      "pat-1",
		PsychologistID: "doc-1",
		StartTime:      start,
		Duration:       60,
		EndTime:        start.Add(time.Hour),
		Status:         scheduling.StatusScheduled,
		ValueCents:     15000,
	}
}

func TestCreateChargePostsToGateway(t *testing.T) {
	var got chargeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/charges", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(chargeResponse{ID: "ch_1", Status: "pending"})
	}))
	defer srv.Close()

	client := NewGatewayClient(srv.URL, "sk_test", logging.Default())
	ctx := tenancy.WithTenantID(context.Background(), "clinic-a")

	require.NoError(t, client.CreateCharge(ctx, paidAppt()))
	assert.Equal(t, "clinic-a", got.TenantID)
	assert.Equal(t, "appt-1", got.AppointmentID)
	assert.Equal(t, int64(15000), got.AmountCents)
	assert.Equal(t, "appt-appt-1", got.IdempotencyKey)
}

func TestCreateChargeSkipsFreeSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("gateway must not be called for free sessions")
	}))
	defer srv.Close()

	client := NewGatewayClient(srv.URL, "sk_test", logging.Default())
	appt := paidAppt()
	appt.ValueCents = 0

	ctx := tenancy.WithTenantID(context.Background(), "clinic-a")
	assert.NoError(t, client.CreateCharge(ctx, appt))
}

func TestCreateChargeSurfacesGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"card declined"}`, http.StatusPaymentRequired)
	}))
	defer srv.Close()

	client := NewGatewayClient(srv.URL, "sk_test", logging.Default())
	ctx := tenancy.WithTenantID(context.Background(), "clinic-a")

	err := client.CreateCharge(ctx, paidAppt())
	assert.ErrorContains(t, err, "status 402")
}

func TestCreateChargeRequiresTenant(t *testing.T) {
	client := NewGatewayClient("http://localhost:0", "sk_test", logging.Default())

	err := client.CreateCharge(context.Background(), paidAppt())
	assert.ErrorIs(t, err, tenancy.ErrMissingTenant)
}

func TestDryRunSkipsGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("gateway must not be called in dry-run mode")
	}))
	defer srv.Close()

	client := NewGatewayClient(srv.URL, "sk_test", logging.Default()).WithDryRun(true)
	ctx := tenancy.WithTenantID(context.Background(), "clinic-a")
	assert.NoError(t, client.CreateCharge(ctx, paidAppt()))
}

func TestNilWhenUnconfigured(t *testing.T) {
	assert.Nil(t, NewGatewayClient("", "key", nil))
}
