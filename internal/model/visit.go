package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type VisitStatus string

const (
	VisitStatusDraft     VisitStatus = "draft"
	VisitStatusCompleted VisitStatus = "completed"
	VisitStatusCancelled VisitStatus = "cancelled"
)

// PatientVisit is one encounter between a doctor and a patient. Dates are
// carried as YYYY-MM-DD strings.
type PatientVisit struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	PatientID      uuid.UUID   `json:"patient_id" db:"patient_id"`
	DoctorID       uuid.UUID   `json:"doctor_id" db:"doctor_id"`
	VisitDate      string      `json:"visit_date" db:"visit_date"`
	ChiefComplaint *string     `json:"chief_complaint" db:"chief_complaint"`
	Diagnosis      string      `json:"diagnosis" db:"diagnosis"`
	NamasteCode    *string     `json:"namaste_code" db:"namaste_code"`
	ICD11Code      *string     `json:"icd11_code" db:"icd11_code"`
	TreatmentPlan  *string     `json:"treatment_plan" db:"treatment_plan"`
	Prescription   *string     `json:"prescription" db:"prescription"`
	Notes          *string     `json:"notes" db:"notes"`
	HospitalName   *string     `json:"hospital_name" db:"hospital_name"`
	FollowUpDate   *string     `json:"follow_up_date" db:"follow_up_date"`
	Status         VisitStatus `json:"status" db:"status"`
	Version        int         `json:"version" db:"version"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`

	// joined, read-only
	DoctorName   *string `json:"doctor_name,omitempty" db:"doctor_name"`
	DoctorEmail  *string `json:"doctor_email,omitempty" db:"doctor_email"`
	PatientName  *string `json:"patient_name,omitempty" db:"patient_name"`
	PatientEmail *string `json:"patient_email,omitempty" db:"patient_email"`
	NamasteLabel *string `json:"namaste_label,omitempty" db:"namaste_label"`
	ICD11Label   *string `json:"icd11_label,omitempty" db:"icd11_label"`
	Category     *string `json:"category,omitempty" db:"category"`
	AyushSystem  *string `json:"ayush_system,omitempty" db:"ayush_system"`
}

// Snapshot is the stored form of a visit version: the visit's own columns
// without the joined display fields.
func (v *PatientVisit) Snapshot() PatientVisit {
	s := *v
	s.DoctorName, s.DoctorEmail, s.PatientName, s.PatientEmail = nil, nil, nil, nil
	s.NamasteLabel, s.ICD11Label, s.Category, s.AyushSystem = nil, nil, nil, nil
	return s
}

type CreateVisitRequest struct {
	PatientID      string      `json:"patient_id" binding:"required,uuid"`
	VisitDate      string      `json:"visit_date" binding:"omitempty,dateonly"`
	ChiefComplaint string      `json:"chief_complaint"`
	Diagnosis      string      `json:"diagnosis" binding:"required"`
	NamasteCode    string      `json:"namaste_code"`
	TreatmentPlan  string      `json:"treatment_plan"`
	Prescription   string      `json:"prescription"`
	Notes          string      `json:"notes"`
	HospitalName   string      `json:"hospital_name"`
	FollowUpDate   string      `json:"follow_up_date" binding:"omitempty,dateonly"`
	Status         VisitStatus `json:"status" binding:"omitempty,oneof=draft completed"`
}

// VisitUpdate is a partial update. NamasteCode set to "" clears both codes.
// Version, when present, must match the stored version.
type VisitUpdate struct {
	VisitDate      *string      `json:"visit_date" binding:"omitempty,dateonly"`
	ChiefComplaint *string      `json:"chief_complaint"`
	Diagnosis      *string      `json:"diagnosis"`
	NamasteCode    *string      `json:"namaste_code"`
	TreatmentPlan  *string      `json:"treatment_plan"`
	Prescription   *string      `json:"prescription"`
	Notes          *string      `json:"notes"`
	HospitalName   *string      `json:"hospital_name"`
	FollowUpDate   *string      `json:"follow_up_date" binding:"omitempty,dateonly"`
	Status         *VisitStatus `json:"status" binding:"omitempty,visit_status"`
	Version        *int         `json:"version"`
}

func (u VisitUpdate) IsEmpty() bool {
	return u.VisitDate == nil && u.ChiefComplaint == nil && u.Diagnosis == nil &&
		u.NamasteCode == nil && u.TreatmentPlan == nil && u.Prescription == nil &&
		u.Notes == nil && u.HospitalName == nil && u.FollowUpDate == nil && u.Status == nil
}

type VisitFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    VisitStatus
	Limit     int
	Offset    int
}

// VisitVersion is an immutable snapshot written on every visit change.
type VisitVersion struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	VisitID    uuid.UUID       `json:"visit_id" db:"visit_id"`
	Version    int             `json:"version" db:"version"`
	ChangeType string          `json:"change_type" db:"change_type"`
	Snapshot   json.RawMessage `json:"snapshot" db:"snapshot"`
	ChangedBy  *uuid.UUID      `json:"changed_by" db:"changed_by"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

type VisitStats struct {
	Total         int            `json:"total"`
	Completed     int            `json:"completed"`
	Draft         int            `json:"draft"`
	Cancelled     int            `json:"cancelled"`
	ByCategory    map[string]int `json:"by_category"`
	ByAyushSystem map[string]int `json:"by_ayush_system"`
	Period        DateRange      `json:"period"`
}

// ProvisionVisitRequest creates a visit for a patient who may not have an
// account yet.
type ProvisionVisitRequest struct {
	PatientName    string `json:"patient_name" binding:"required"`
	PatientEmail   string `json:"patient_email" binding:"omitempty,email"`
	PatientPhone   string `json:"patient_phone"`
	VisitDate      string `json:"visit_date" binding:"omitempty,dateonly"`
	ChiefComplaint string `json:"chief_complaint"`
	Diagnosis      string `json:"diagnosis" binding:"required"`
	NamasteCode    string `json:"namaste_code"`
	TreatmentPlan  string `json:"treatment_plan"`
	Prescription   string `json:"prescription"`
	Notes          string `json:"notes"`
	HospitalName   string `json:"hospital_name"`
	FollowUpDate   string `json:"follow_up_date" binding:"omitempty,dateonly"`
}

type ProvisionResult struct {
	Visit          *PatientVisit `json:"visit"`
	PatientID      uuid.UUID     `json:"patient_id"`
	PatientCreated bool          `json:"patient_created"`
}
