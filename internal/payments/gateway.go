// Package payments opens charges for booked appointments against an
// external payment gateway. Charges are created outside the booking's
// transactional boundary; a gateway failure never unwinds a booking.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/psicare/platform/internal/scheduling"
	"github.com/psicare/platform/internal/tenancy"
	"github.com/psicare/platform/pkg/logging"
)

var paymentsTracer = otel.Tracer("psicare.internal.payments")

// GatewayClient creates charges over the payment gateway's HTTP API.
type GatewayClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
	dryRun     bool
}

// NewGatewayClient creates a payment gateway client. Returns nil when
// no base URL is configured, which callers treat as payments disabled.
func NewGatewayClient(baseURL, apiKey string, logger *logging.Logger) *GatewayClient {
	if baseURL == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &GatewayClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithDryRun enables dry-run mode (logs the charge without calling the
// gateway).
func (c *GatewayClient) WithDryRun(enabled bool) *GatewayClient {
	c.dryRun = enabled
	return c
}

type chargeRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	TenantID       string `json:"tenant_id"`
	AppointmentID  string `json:"appointment_id"`
	PatientID      string `json:"patient_id"`
	AmountCents    int64  `json:"amount_cents"`
	Currency       string `json:"currency"`
}

type chargeResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateCharge opens a charge for the appointment's value. Appointments
// without a value are free sessions and create no charge.
func (c *GatewayClient) CreateCharge(ctx context.Context, appt *scheduling.Appointment) error {
	ctx, span := paymentsTracer.Start(ctx, "payments.create_charge")
	defer span.End()

	if appt.ValueCents <= 0 {
		return nil
	}

	tenantID, err := tenancy.RequireTenantID(ctx)
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.String("psicare.tenant_id", tenantID),
		attribute.String("psicare.appointment_id", appt.ID),
		attribute.Int64("psicare.amount_cents", appt.ValueCents),
	)

	if c.dryRun {
		c.logger.Info("payments dry run: skipping charge",
			"tenant_id", tenantID, "appointment_id", appt.ID, "amount_cents", appt.ValueCents)
		return nil
	}

	body, err := json.Marshal(chargeRequest{
		// The appointment id keys the charge so a redelivered event
		// cannot double-charge.
		IdempotencyKey: "appt-" + appt.ID,
		TenantID:       tenantID,
		AppointmentID:  appt.ID,
		PatientID:      appt.PatientID,
		AmountCents:    appt.ValueCents,
		Currency:       "BRL",
	})
	if err != nil {
		return fmt.Errorf("payments: encode charge: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("payments: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payments: gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("payment gateway rejected charge",
			"status", resp.StatusCode, "body", string(raw), "appointment_id", appt.ID)
		return fmt.Errorf("payments: gateway returned status %d", resp.StatusCode)
	}

	var out chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("payments: decode charge response: %w", err)
	}

	c.logger.Info("charge created",
		"tenant_id", tenantID, "appointment_id", appt.ID,
		"charge_id", out.ID, "status", out.Status)
	return nil
}

// StubCreator logs charges without creating them, for development and
// deployments without a payment gateway.
type StubCreator struct {
	logger *logging.Logger
}

func NewStubCreator(logger *logging.Logger) *StubCreator {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubCreator{logger: logger}
}

func (s *StubCreator) CreateCharge(ctx context.Context, appt *scheduling.Appointment) error {
	s.logger.Info("stub payments: would create charge",
		"appointment_id", appt.ID, "amount_cents", appt.ValueCents)
	return nil
}

var _ scheduling.PaymentCreator = (*GatewayClient)(nil)
var _ scheduling.PaymentCreator = (*StubCreator)(nil)
