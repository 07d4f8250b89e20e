package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog is an append-only record of one operation.
type AuditLog struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	UserID       *uuid.UUID `json:"user_id" db:"user_id"`
	Action       string     `json:"action" db:"action"`
	ResourceType string     `json:"resource_type" db:"resource_type"`
	ResourceID   *string    `json:"resource_id" db:"resource_id"`
	OldValues    JSONMap    `json:"old_values" db:"old_values"`
	NewValues    JSONMap    `json:"new_values" db:"new_values"`
	IPAddress    *string    `json:"ip_address" db:"ip_address"`
	UserAgent    *string    `json:"user_agent" db:"user_agent"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`

	// joined, read-only
	UserEmail *string `json:"user_email,omitempty" db:"user_email"`
	UserName  *string `json:"user_name,omitempty" db:"user_name"`
	UserRole  *string `json:"user_role,omitempty" db:"user_role"`
}

const (
	// Action types
	AuditActionCreate = "create"
	AuditActionRead   = "read"
	AuditActionUpdate = "update"
	AuditActionDelete = "delete"
	AuditActionLogin  = "login"
	AuditActionLogout = "logout"
	AuditActionSearch = "search"

	// Resource types
	AuditResourceUser         = "user"
	AuditResourcePatient      = "patient"
	AuditResourceCodeMapping  = "code_mapping"
	AuditResourceVisit        = "patient_visit"
	AuditResourceConsent      = "consent"
	AuditResourceEncounter    = "encounter_bundle"
	AuditResourceUserActivity = "user_activity"
)

// NewAuditLog builds an entry for actor. The old and new values are converted to JSON
// objects; nil leaves the column NULL.
func NewAuditLog(actor Actor, action, resourceType, resourceID string, oldValues, newValues interface{}) *AuditLog {
	entry := &AuditLog{
		ID:           uuid.New(),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   StrPtr(resourceID),
		OldValues:    ToJSONMap(oldValues),
		NewValues:    ToJSONMap(newValues),
		IPAddress:    StrPtr(actor.IPAddress),
		UserAgent:    StrPtr(actor.UserAgent),
		CreatedAt:    time.Now().UTC(),
	}
	if actor.UserID != uuid.Nil {
		id := actor.UserID
		entry.UserID = &id
	}
	return entry
}

// ToJSONMap converts v to a JSON object. Values that do not encode to an
// object are stored under "value".
func ToJSONMap(v interface{}) JSONMap {
	switch t := v.(type) {
	case nil:
		return nil
	case JSONMap:
		return t
	case map[string]interface{}:
		return JSONMap(t)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m JSONMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return JSONMap{"value": json.RawMessage(raw)}
	}
	return m
}

type AuditFilter struct {
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	Search       string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// AuditDateRange names the preset windows accepted by the log viewer.
type AuditDateRange string

const (
	AuditRangeDay     AuditDateRange = "1day"
	AuditRangeWeek    AuditDateRange = "7days"
	AuditRangeMonth   AuditDateRange = "30days"
	AuditRangeQuarter AuditDateRange = "90days"
	AuditRangeAll     AuditDateRange = "all"
)

// Since returns the lower bound for the preset relative to now, or nil for
// "all". Unknown values fall back to seven days.
func (r AuditDateRange) Since(now time.Time) *time.Time {
	var d time.Duration
	switch r {
	case AuditRangeAll:
		return nil
	case AuditRangeDay:
		d = 24 * time.Hour
	case AuditRangeMonth:
		d = 30 * 24 * time.Hour
	case AuditRangeQuarter:
		d = 90 * 24 * time.Hour
	default:
		d = 7 * 24 * time.Hour
	}
	t := now.Add(-d)
	return &t
}

type TimelinePoint struct {
	Date  string `json:"date" db:"day"`
	Count int    `json:"count" db:"count"`
}

type AuditStats struct {
	TotalActions   int             `json:"total_actions"`
	ByAction       map[string]int  `json:"by_action"`
	ByResourceType map[string]int  `json:"by_resource_type"`
	ByUserRole     map[string]int  `json:"by_user_role"`
	Timeline       []TimelinePoint `json:"timeline"`
	Period         DateRange       `json:"period"`
}
