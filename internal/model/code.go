package model

import (
	"time"

	"github.com/google/uuid"
)

// CodeMapping links a NAMASTE code to its ICD-11 counterpart.
type CodeMapping struct {
	ID                 uuid.UUID  `json:"id" db:"id"`
	NamasteCode        string     `json:"namaste_code" db:"namaste_code"`
	NamasteLabel       string     `json:"namaste_label" db:"namaste_label"`
	NamasteDescription *string    `json:"namaste_description" db:"namaste_description"`
	ICD11Code          string     `json:"icd11_code" db:"icd11_code"`
	ICD11Label         string     `json:"icd11_label" db:"icd11_label"`
	ICD11Description   *string    `json:"icd11_description" db:"icd11_description"`
	Category           *string    `json:"category" db:"category"`
	AyushSystem        *string    `json:"ayush_system" db:"ayush_system"`
	ConfidenceScore    float64    `json:"confidence_score" db:"confidence_score"`
	IsActive           bool       `json:"is_active" db:"is_active"`
	CreatedBy          *uuid.UUID `json:"created_by,omitempty" db:"created_by"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// CodeSearch is a free-text search over active mappings.
type CodeSearch struct {
	Query       string `json:"q,omitempty"`
	Category    string `json:"category,omitempty"`
	AyushSystem string `json:"ayush_system,omitempty"`
	Limit       int    `json:"limit"`
}

type CodeFilter struct {
	Category    string
	AyushSystem string
	Limit       int
	Offset      int
}

type CreateCodeRequest struct {
	NamasteCode        string   `json:"namaste_code" binding:"required"`
	NamasteLabel       string   `json:"namaste_label" binding:"required"`
	NamasteDescription string   `json:"namaste_description"`
	ICD11Code          string   `json:"icd11_code" binding:"required"`
	ICD11Label         string   `json:"icd11_label" binding:"required"`
	ICD11Description   string   `json:"icd11_description"`
	Category           string   `json:"category"`
	AyushSystem        string   `json:"ayush_system"`
	ConfidenceScore    *float64 `json:"confidence_score" binding:"omitempty,gte=0,lte=1"`
}

// CodeMappingUpdate is a partial update. Nil means unchanged.
type CodeMappingUpdate struct {
	NamasteLabel       *string  `json:"namaste_label"`
	NamasteDescription *string  `json:"namaste_description"`
	ICD11Code          *string  `json:"icd11_code"`
	ICD11Label         *string  `json:"icd11_label"`
	ICD11Description   *string  `json:"icd11_description"`
	Category           *string  `json:"category"`
	AyushSystem        *string  `json:"ayush_system"`
	ConfidenceScore    *float64 `json:"confidence_score" binding:"omitempty,gte=0,lte=1"`
	IsActive           *bool    `json:"is_active"`
}

func (u CodeMappingUpdate) IsEmpty() bool {
	return u.NamasteLabel == nil && u.NamasteDescription == nil && u.ICD11Code == nil &&
		u.ICD11Label == nil && u.ICD11Description == nil && u.Category == nil &&
		u.AyushSystem == nil && u.ConfidenceScore == nil && u.IsActive == nil
}

// Apply returns a copy of m with the update applied.
func (u CodeMappingUpdate) Apply(m CodeMapping) CodeMapping {
	if u.NamasteLabel != nil {
		m.NamasteLabel = *u.NamasteLabel
	}
	if u.NamasteDescription != nil {
		m.NamasteDescription = u.NamasteDescription
	}
	if u.ICD11Code != nil {
		m.ICD11Code = *u.ICD11Code
	}
	if u.ICD11Label != nil {
		m.ICD11Label = *u.ICD11Label
	}
	if u.ICD11Description != nil {
		m.ICD11Description = u.ICD11Description
	}
	if u.Category != nil {
		m.Category = u.Category
	}
	if u.AyushSystem != nil {
		m.AyushSystem = u.AyushSystem
	}
	if u.ConfidenceScore != nil {
		m.ConfidenceScore = *u.ConfidenceScore
	}
	if u.IsActive != nil {
		m.IsActive = *u.IsActive
	}
	return m
}

type ConfidenceDistribution struct {
	High   int `json:"high" db:"high"`
	Medium int `json:"medium" db:"medium"`
	Low    int `json:"low" db:"low"`
}

type CodeStats struct {
	Total                  int                    `json:"total"`
	Active                 int                    `json:"active"`
	Inactive               int                    `json:"inactive"`
	ByCategory             map[string]int         `json:"by_category"`
	ByAyushSystem          map[string]int         `json:"by_ayush_system"`
	ConfidenceDistribution ConfidenceDistribution `json:"confidence_distribution"`
}
