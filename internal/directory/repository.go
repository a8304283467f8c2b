package directory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Repository reads the patient and psychologist directory.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PatientExists reports whether the patient exists and belongs to the
// tenant. A patient owned by another tenant does not exist as far as
// callers are concerned.
func (r *Repository) PatientExists(ctx context.Context, tenantID, patientID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM patients WHERE id = $1 AND tenant_id = $2`,
		patientID, tenantID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("directory: patient lookup: %w", err)
	}
	return true, nil
}

// PsychologistExists reports whether the psychologist exists and
// belongs to the tenant.
func (r *Repository) PsychologistExists(ctx context.Context, tenantID, psychologistID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM psychologists WHERE id = $1 AND tenant_id = $2`,
		psychologistID, tenantID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("directory: psychologist lookup: %w", err)
	}
	return true, nil
}

// GetPatient returns patient contact details for notification
// rendering, or nil when absent (or foreign tenant).
func (r *Repository) GetPatient(ctx context.Context, tenantID, patientID string) (*Patient, error) {
	var p Patient
	err := r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, email, phone FROM patients WHERE id = $1 AND tenant_id = $2`,
		patientID, tenantID).Scan(&p.ID, &p.TenantID, &p.Name, &p.Email, &p.Phone)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("directory: patient select: %w", err)
	}
	return &p, nil
}

// GetPsychologist returns psychologist details, or nil when absent
// (or foreign tenant).
func (r *Repository) GetPsychologist(ctx context.Context, tenantID, psychologistID string) (*Psychologist, error) {
	var p Psychologist
	err := r.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, email, clinic_id, specialties
		 FROM psychologists WHERE id = $1 AND tenant_id = $2`,
		psychologistID, tenantID).Scan(&p.ID, &p.TenantID, &p.Name, &p.Email, &p.ClinicID, pq.Array(&p.Specialties))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("directory: psychologist select: %w", err)
	}
	if p.Specialties == nil {
		p.Specialties = []string{}
	}
	return &p, nil
}
