package encounter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/repository"
	"github.com/codeveda/records-api/internal/service/audit"
	apperrors "github.com/codeveda/records-api/pkg/errors"
	"github.com/codeveda/records-api/pkg/security"
)

type EncounterServicer interface {
	Upload(ctx context.Context, actor model.Actor, body []byte) (*model.EncounterUpload, error)
}

type Service struct {
	repo      repository.EncounterRepository
	encryptor security.Encryptor
	auditor   audit.Recorder
}

func NewService(repo repository.EncounterRepository, encryptor security.Encryptor, auditor audit.Recorder) *Service {
	return &Service{repo: repo, encryptor: encryptor, auditor: auditor}
}

type bundleHeader struct {
	ResourceType string            `json:"resourceType"`
	Type         string            `json:"type"`
	Entry        []json.RawMessage `json:"entry"`
}

// Upload accepts a FHIR Bundle and stores it encrypted. Only the envelope
// is inspected.
func (s *Service) Upload(ctx context.Context, actor model.Actor, body []byte) (*model.EncounterUpload, error) {
	var header bundleHeader
	if err := json.Unmarshal(body, &header); err != nil {
		return nil, apperrors.BadRequest("Request body must be a JSON FHIR Bundle", err)
	}
	if header.ResourceType != "Bundle" {
		return nil, apperrors.BadRequest("Invalid FHIR Bundle: resourceType must be Bundle", nil)
	}

	sealed, err := s.encryptor.Encrypt(body)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	upload := &model.EncounterUpload{
		ID:           uuid.New(),
		UploadedBy:   actor.UserID,
		ResourceType: header.ResourceType,
		BundleType:   model.StrPtr(header.Type),
		EntryCount:   len(header.Entry),
		Payload:      sealed,
		CreatedAt:    time.Now().UTC(),
	}

	meta := map[string]interface{}{
		"receipt_id":  upload.ID,
		"bundle_type": header.Type,
		"entry_count": upload.EntryCount,
	}
	evt, err := model.NewOutboxEvent(model.EventEncounterReceived, model.AuditResourceEncounter, upload.ID.String(), meta)
	if err != nil {
		return nil, err
	}
	change := repository.Change{
		Audit:  model.NewAuditLog(actor, model.AuditActionCreate, model.AuditResourceEncounter, upload.ID.String(), nil, meta),
		Events: []*model.OutboxEvent{evt},
	}
	if err := s.repo.Create(ctx, upload, change); err != nil {
		return nil, err
	}
	s.auditor.Committed(change.Audit)
	return upload, nil
}
