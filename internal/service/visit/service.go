package visit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/repository"
	"github.com/codeveda/records-api/internal/service/audit"
	apperrors "github.com/codeveda/records-api/pkg/errors"
)

const (
	dateLayout        = "2006-01-02"
	defaultStatsRange = 30
	tempEmailDomain   = "external.local"
)

type VisitServicer interface {
	List(ctx context.Context, actor model.Actor, filter model.VisitFilter) ([]*model.PatientVisit, int, error)
	Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.PatientVisit, error)
	Create(ctx context.Context, actor model.Actor, req model.CreateVisitRequest) (*model.PatientVisit, error)
	Update(ctx context.Context, actor model.Actor, id uuid.UUID, upd model.VisitUpdate) (*model.PatientVisit, error)
	Cancel(ctx context.Context, actor model.Actor, id uuid.UUID) error
	History(ctx context.Context, actor model.Actor, id uuid.UUID) ([]*model.VisitVersion, error)
	Version(ctx context.Context, actor model.Actor, id uuid.UUID, version int) (*model.VisitVersion, error)
	Stats(ctx context.Context, actor model.Actor, period model.DateRange) (*model.VisitStats, error)
	Provision(ctx context.Context, actor model.Actor, req model.ProvisionVisitRequest) (*model.ProvisionResult, error)
}

type Service struct {
	visits  repository.VisitRepository
	users   repository.UserRepository
	codes   repository.CodeRepository
	auditor audit.Recorder
	now     func() time.Time
}

func NewService(visits repository.VisitRepository, users repository.UserRepository, codes repository.CodeRepository, auditor audit.Recorder) *Service {
	return &Service{
		visits:  visits,
		users:   users,
		codes:   codes,
		auditor: auditor,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) List(ctx context.Context, actor model.Actor, filter model.VisitFilter) ([]*model.PatientVisit, int, error) {
	switch actor.Role {
	case model.RolePatient:
		if filter.PatientID != nil && *filter.PatientID != actor.UserID {
			return nil, 0, apperrors.Forbidden("Access denied: cannot view other patients' visits")
		}
		self := actor.UserID
		filter.PatientID = &self
	case model.RoleDoctor:
		self := actor.UserID
		filter.DoctorID = &self
	case model.RoleAdmin:
	default:
		return nil, 0, apperrors.Forbidden("")
	}
	return s.visits.List(ctx, filter)
}

func canRead(actor model.Actor, v *model.PatientVisit) bool {
	switch actor.Role {
	case model.RoleAdmin:
		return true
	case model.RoleDoctor:
		return v.DoctorID == actor.UserID
	case model.RolePatient:
		return v.PatientID == actor.UserID
	}
	return false
}

func canWrite(actor model.Actor, v *model.PatientVisit) bool {
	return actor.Role == model.RoleAdmin || (actor.Role == model.RoleDoctor && v.DoctorID == actor.UserID)
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*model.PatientVisit, error) {
	v, err := s.visits.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Visit", err)
	}
	return v, err
}

func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.PatientVisit, error) {
	v, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canRead(actor, v) {
		return nil, apperrors.Forbidden("Access denied")
	}
	return v, nil
}

// resolveCode returns the active mapping for a NAMASTE code; "" means none.
func (s *Service) resolveCode(ctx context.Context, code string) (*model.CodeMapping, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	m, err := s.codes.GetActiveByNamasteCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.BadRequest("Invalid NAMASTE code", err)
	}
	return m, err
}

func (s *Service) today() string {
	return s.now().Format(dateLayout)
}

type visitFields struct {
	visitDate, chiefComplaint, diagnosis, namasteCode string
	treatmentPlan, prescription, notes, hospitalName  string
	followUpDate                                      string
	status                                            model.VisitStatus
}

func (s *Service) newVisit(ctx context.Context, actor model.Actor, patientID uuid.UUID, f visitFields) (*model.PatientVisit, error) {
	if strings.TrimSpace(f.diagnosis) == "" {
		return nil, apperrors.BadRequest("Diagnosis is required", nil)
	}
	mapping, err := s.resolveCode(ctx, f.namasteCode)
	if err != nil {
		return nil, err
	}

	status := f.status
	switch status {
	case "":
		status = model.VisitStatusCompleted
	case model.VisitStatusCompleted, model.VisitStatusDraft:
	default:
		return nil, apperrors.BadRequest("A new visit must be draft or completed", nil)
	}
	visitDate := f.visitDate
	if visitDate == "" {
		visitDate = s.today()
	}

	now := s.now()
	v := &model.PatientVisit{
		ID:             uuid.New(),
		PatientID:      patientID,
		DoctorID:       actor.UserID,
		VisitDate:      visitDate,
		ChiefComplaint: model.StrPtr(f.chiefComplaint),
		Diagnosis:      strings.TrimSpace(f.diagnosis),
		TreatmentPlan:  model.StrPtr(f.treatmentPlan),
		Prescription:   model.StrPtr(f.prescription),
		Notes:          model.StrPtr(f.notes),
		HospitalName:   model.StrPtr(f.hospitalName),
		FollowUpDate:   model.StrPtr(f.followUpDate),
		Status:         status,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if mapping != nil {
		v.NamasteCode = model.StrPtr(mapping.NamasteCode)
		v.ICD11Code = model.StrPtr(mapping.ICD11Code)
	}
	return v, nil
}

func (s *Service) visitChange(actor model.Actor, action, eventType string, v *model.PatientVisit, before interface{}) (repository.Change, error) {
	evt, err := model.NewOutboxEvent(eventType, model.AuditResourceVisit, v.ID.String(), map[string]interface{}{
		"visit_id":   v.ID,
		"patient_id": v.PatientID,
		"doctor_id":  v.DoctorID,
		"status":     v.Status,
		"version":    v.Version,
	})
	if err != nil {
		return repository.Change{}, err
	}
	return repository.Change{
		Audit:  model.NewAuditLog(actor, action, model.AuditResourceVisit, v.ID.String(), before, v.Snapshot()),
		Events: []*model.OutboxEvent{evt},
	}, nil
}

func (s *Service) Create(ctx context.Context, actor model.Actor, req model.CreateVisitRequest) (*model.PatientVisit, error) {
	if actor.Role != model.RoleDoctor && actor.Role != model.RoleAdmin {
		return nil, apperrors.Forbidden("Only doctors and admins can create visits")
	}
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return nil, apperrors.BadRequest("Invalid patient ID format", err)
	}

	patient, err := s.users.GetByID(ctx, patientID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && (patient.Role != model.RolePatient || !patient.IsActive)) {
		return nil, apperrors.BadRequest("Patient not found or inactive", err)
	}
	if err != nil {
		return nil, err
	}

	v, err := s.newVisit(ctx, actor, patientID, visitFields{
		visitDate: req.VisitDate, chiefComplaint: req.ChiefComplaint, diagnosis: req.Diagnosis,
		namasteCode: req.NamasteCode, treatmentPlan: req.TreatmentPlan, prescription: req.Prescription,
		notes: req.Notes, hospitalName: req.HospitalName, followUpDate: req.FollowUpDate, status: req.Status,
	})
	if err != nil {
		return nil, err
	}

	change, err := s.visitChange(actor, model.AuditActionCreate, model.EventVisitCreated, v, nil)
	if err != nil {
		return nil, err
	}
	if err := s.visits.Create(ctx, v, change); err != nil {
		return nil, err
	}
	s.auditor.Committed(change.Audit)
	return s.reload(ctx, v), nil
}

// reload fetches the joined view of a visit just written, falling back to
// the written row.
func (s *Service) reload(ctx context.Context, v *model.PatientVisit) *model.PatientVisit {
	if full, err := s.visits.GetByID(ctx, v.ID); err == nil {
		return full
	}
	return v
}

func (s *Service) Update(ctx context.Context, actor model.Actor, id uuid.UUID, upd model.VisitUpdate) (*model.PatientVisit, error) {
	if upd.IsEmpty() {
		return nil, apperrors.BadRequest("No data to update", nil)
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canWrite(actor, current) {
		return nil, apperrors.Forbidden("Only the treating doctor or an admin can update this visit")
	}

	expected := current.Version
	if upd.Version != nil && *upd.Version != current.Version {
		return nil, apperrors.Conflict("Visit was modified by another user", nil).
			WithDetails(map[string]int{"current_version": current.Version})
	}

	before := current.Snapshot()
	v := before
	if upd.VisitDate != nil {
		v.VisitDate = *upd.VisitDate
	}
	if upd.ChiefComplaint != nil {
		v.ChiefComplaint = upd.ChiefComplaint
	}
	if upd.Diagnosis != nil {
		if strings.TrimSpace(*upd.Diagnosis) == "" {
			return nil, apperrors.BadRequest("Diagnosis cannot be empty", nil)
		}
		v.Diagnosis = strings.TrimSpace(*upd.Diagnosis)
	}
	if upd.NamasteCode != nil {
		mapping, err := s.resolveCode(ctx, *upd.NamasteCode)
		if err != nil {
			return nil, err
		}
		if mapping == nil {
			v.NamasteCode, v.ICD11Code = nil, nil
		} else {
			v.NamasteCode, v.ICD11Code = model.StrPtr(mapping.NamasteCode), model.StrPtr(mapping.ICD11Code)
		}
	}
	if upd.TreatmentPlan != nil {
		v.TreatmentPlan = upd.TreatmentPlan
	}
	if upd.Prescription != nil {
		v.Prescription = upd.Prescription
	}
	if upd.Notes != nil {
		v.Notes = upd.Notes
	}
	if upd.HospitalName != nil {
		v.HospitalName = upd.HospitalName
	}
	if upd.FollowUpDate != nil {
		v.FollowUpDate = model.StrPtr(*upd.FollowUpDate)
	}
	if upd.Status != nil {
		v.Status = *upd.Status
	}
	v.UpdatedAt = s.now()

	eventType := model.EventVisitUpdated
	if v.Status == model.VisitStatusCancelled && before.Status != model.VisitStatusCancelled {
		eventType = model.EventVisitCancelled
	}
	if err := s.save(ctx, actor, &v, expected, model.AuditActionUpdate, eventType, before); err != nil {
		return nil, err
	}
	return s.reload(ctx, &v), nil
}

// Cancel is the soft delete of a visit.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !canWrite(actor, current) {
		return apperrors.Forbidden("Only the treating doctor or an admin can delete this visit")
	}

	before := current.Snapshot()
	v := before
	v.Status = model.VisitStatusCancelled
	v.UpdatedAt = s.now()
	return s.save(ctx, actor, &v, current.Version, model.AuditActionDelete, model.EventVisitCancelled, before)
}

func (s *Service) save(ctx context.Context, actor model.Actor, v *model.PatientVisit, expected int, action, eventType string, before model.PatientVisit) error {
	// the snapshot carries the version being written
	v.Version = expected + 1
	change, err := s.visitChange(actor, action, eventType, v, before)
	if err != nil {
		return err
	}

	err = s.visits.Update(ctx, v, expected, action, change)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("Visit", err)
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.Conflict("Visit was modified by another user", err)
	case err != nil:
		return err
	}
	s.auditor.Committed(change.Audit)
	return nil
}

func (s *Service) History(ctx context.Context, actor model.Actor, id uuid.UUID) ([]*model.VisitVersion, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.visits.ListVersions(ctx, id)
}

func (s *Service) Version(ctx context.Context, actor model.Actor, id uuid.UUID, version int) (*model.VisitVersion, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	vv, err := s.visits.GetVersion(ctx, id, version)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound(fmt.Sprintf("Version %d of visit", version), err)
	}
	return vv, err
}

// Stats covers the last 30 days when the period is open. Doctors only see
// their own visits.
func (s *Service) Stats(ctx context.Context, actor model.Actor, period model.DateRange) (*model.VisitStats, error) {
	if period.To.IsZero() {
		period.To = s.now()
	}
	if period.From.IsZero() {
		period.From = period.To.AddDate(0, 0, -defaultStatsRange)
	}
	if period.To.Before(period.From) {
		return nil, apperrors.BadRequest("end_date must not be before start_date", nil)
	}

	var doctorID *uuid.UUID
	switch actor.Role {
	case model.RoleDoctor:
		self := actor.UserID
		doctorID = &self
	case model.RoleAdmin:
	default:
		return nil, apperrors.Forbidden("")
	}
	return s.visits.Stats(ctx, doctorID, period)
}

// Provision records a visit for a walk-in patient, creating the patient
// account when no active patient has the given email.
func (s *Service) Provision(ctx context.Context, actor model.Actor, req model.ProvisionVisitRequest) (*model.ProvisionResult, error) {
	if actor.Role != model.RoleDoctor && actor.Role != model.RoleAdmin {
		return nil, apperrors.Forbidden("Only doctors and admins can provision patients")
	}
	name := strings.TrimSpace(req.PatientName)
	if name == "" {
		return nil, apperrors.BadRequest("patient_name is required", nil)
	}

	var patient *model.User
	email := strings.ToLower(strings.TrimSpace(req.PatientEmail))
	if email != "" {
		existing, err := s.users.GetActivePatientByEmail(ctx, email)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		patient = existing
	}

	var newPatient *model.User
	var patientChange repository.Change
	if patient == nil {
		if email == "" {
			email = fmt.Sprintf("temp_patient_%d@%s", s.now().UnixMilli(), tempEmailDomain)
		}
		now := s.now()
		// no password: the account cannot log in until one is set
		newPatient = &model.User{
			ID:        uuid.New(),
			Email:     email,
			FullName:  name,
			Role:      model.RolePatient,
			Phone:     model.StrPtr(strings.TrimSpace(req.PatientPhone)),
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		evt, err := model.NewOutboxEvent(model.EventPatientProvisioned, model.AuditResourcePatient, newPatient.ID.String(), model.UserEventPayload{
			UserID: newPatient.ID, Email: newPatient.Email, FullName: newPatient.FullName, Role: newPatient.Role, ActorID: actor.UserID,
		})
		if err != nil {
			return nil, err
		}
		patientChange = repository.Change{
			Audit:  model.NewAuditLog(actor, model.AuditActionCreate, model.AuditResourcePatient, newPatient.ID.String(), nil, newPatient.Profile()),
			Events: []*model.OutboxEvent{evt},
		}
		patient = newPatient
	}

	v, err := s.newVisit(ctx, actor, patient.ID, visitFields{
		visitDate: req.VisitDate, chiefComplaint: req.ChiefComplaint, diagnosis: req.Diagnosis,
		namasteCode: req.NamasteCode, treatmentPlan: req.TreatmentPlan, prescription: req.Prescription,
		notes: req.Notes, hospitalName: req.HospitalName, followUpDate: req.FollowUpDate,
	})
	if err != nil {
		return nil, err
	}
	change, err := s.visitChange(actor, model.AuditActionCreate, model.EventVisitCreated, v, nil)
	if err != nil {
		return nil, err
	}

	if err := s.visits.CreateWithPatient(ctx, newPatient, patientChange, v, change); err != nil {
		return nil, err
	}
	s.auditor.Committed(patientChange.Audit, change.Audit)

	return &model.ProvisionResult{
		Visit:          s.reload(ctx, v),
		PatientID:      patient.ID,
		PatientCreated: newPatient != nil,
	}, nil
}
