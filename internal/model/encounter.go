package model

import (
	"time"

	"github.com/google/uuid"
)

// EncounterUpload is a stored FHIR bundle submission. The payload is kept
// encrypted.
type EncounterUpload struct {
	ID           uuid.UUID `json:"receiptId" db:"id"`
	UploadedBy   uuid.UUID `json:"uploaded_by" db:"uploaded_by"`
	ResourceType string    `json:"resource_type" db:"resource_type"`
	BundleType   *string   `json:"bundle_type" db:"bundle_type"`
	EntryCount   int       `json:"entry_count" db:"entry_count"`
	Payload      []byte    `json:"-" db:"payload"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
