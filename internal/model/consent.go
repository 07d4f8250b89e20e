package model

import (
	"time"

	"github.com/google/uuid"
)

type ConsentStatus string

const (
	ConsentStatusActive         ConsentStatus = "active"
	ConsentStatusInactive       ConsentStatus = "inactive"
	ConsentStatusEnteredInError ConsentStatus = "entered-in-error"
)

type ConsentProvision string

const (
	ConsentPermit ConsentProvision = "permit"
	ConsentDeny   ConsentProvision = "deny"
)

// Consent records a patient's data sharing decision. Every change bumps
// Version.
type Consent struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	PatientID   uuid.UUID        `json:"patient_id" db:"patient_id"`
	Scope       string           `json:"scope" db:"scope"`
	Provision   ConsentProvision `json:"provision" db:"provision"`
	Purpose     *string          `json:"purpose" db:"purpose"`
	GranteeID   *uuid.UUID       `json:"grantee_id" db:"grantee_id"`
	PeriodStart *time.Time       `json:"period_start" db:"period_start"`
	PeriodEnd   *time.Time       `json:"period_end" db:"period_end"`
	Status      ConsentStatus    `json:"status" db:"status"`
	Version     int              `json:"version" db:"version"`
	RecordedBy  uuid.UUID        `json:"recorded_by" db:"recorded_by"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}

// ActiveAt reports whether the consent is in force at t.
func (c *Consent) ActiveAt(t time.Time) bool {
	if c.Status != ConsentStatusActive {
		return false
	}
	if c.PeriodStart != nil && t.Before(*c.PeriodStart) {
		return false
	}
	if c.PeriodEnd != nil && t.After(*c.PeriodEnd) {
		return false
	}
	return true
}

type CreateConsentRequest struct {
	Scope       string           `json:"scope" binding:"required"`
	Provision   ConsentProvision `json:"provision" binding:"required,consent_provision"`
	Purpose     string           `json:"purpose"`
	GranteeID   string           `json:"grantee_id" binding:"omitempty,uuid"`
	PeriodStart *time.Time       `json:"period_start"`
	PeriodEnd   *time.Time       `json:"period_end"`
}

type ConsentUpdate struct {
	Provision   *ConsentProvision `json:"provision" binding:"omitempty,consent_provision"`
	Purpose     *string           `json:"purpose"`
	PeriodStart *time.Time        `json:"period_start"`
	PeriodEnd   *time.Time        `json:"period_end"`
	Status      *ConsentStatus    `json:"status" binding:"omitempty,consent_status"`
}

func (u ConsentUpdate) IsEmpty() bool {
	return u.Provision == nil && u.Purpose == nil && u.PeriodStart == nil &&
		u.PeriodEnd == nil && u.Status == nil
}

// Apply returns a copy of c with the update applied.
func (u ConsentUpdate) Apply(c Consent) Consent {
	if u.Provision != nil {
		c.Provision = *u.Provision
	}
	if u.Purpose != nil {
		c.Purpose = u.Purpose
	}
	if u.PeriodStart != nil {
		c.PeriodStart = u.PeriodStart
	}
	if u.PeriodEnd != nil {
		c.PeriodEnd = u.PeriodEnd
	}
	if u.Status != nil {
		c.Status = *u.Status
	}
	return c
}
