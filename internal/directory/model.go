// Package directory answers existence and tenant-membership questions
// about patients and psychologists. The booking core never trusts a
// client-supplied id without asking here first.
package directory

// Patient is the subset of the patient record the booking core needs.
type Patient struct {
	ID       string
	TenantID string
	Name     string
	Email    string
	Phone    string
}

// Psychologist is the subset of the psychologist record the booking
// core needs. A psychologist has at most one clinic affiliation.
type Psychologist struct {
	ID          string
	TenantID    string
	Name        string
	Email       string
	ClinicID    *string
	Specialties []string
}
