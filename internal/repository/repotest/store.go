// Package repotest provides in-memory repositories for service and handler
// tests. All repositories share one Store so a test can inspect the audit
// rows and outbox events a mutation wrote.
package repotest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeveda/records-api/internal/model"
	"github.com/codeveda/records-api/internal/repository"
)

type Store struct {
	mu         sync.Mutex
	users      map[uuid.UUID]model.User
	codes      map[uuid.UUID]model.CodeMapping
	visits     map[uuid.UUID]model.PatientVisit
	versions   map[uuid.UUID][]model.VisitVersion
	consents   map[uuid.UUID]model.Consent
	encounters map[uuid.UUID]model.EncounterUpload
	outbox     map[uuid.UUID]model.OutboxEvent

	Audits []*model.AuditLog
	Events []*model.OutboxEvent

	// FailWrites makes every mutating call return it without storing anything.
	FailWrites error
}

func NewStore() *Store {
	return &Store{
		users:      map[uuid.UUID]model.User{},
		codes:      map[uuid.UUID]model.CodeMapping{},
		visits:     map[uuid.UUID]model.PatientVisit{},
		versions:   map[uuid.UUID][]model.VisitVersion{},
		consents:   map[uuid.UUID]model.Consent{},
		encounters: map[uuid.UUID]model.EncounterUpload{},
		outbox:     map[uuid.UUID]model.OutboxEvent{},
	}
}

// AuditActions lists the action of every audit row, oldest first.
func (s *Store) AuditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Audits))
	for i, a := range s.Audits {
		out[i] = a.Action
	}
	return out
}

// EventTypes lists the type of every outbox event, oldest first.
func (s *Store) EventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Events))
	for i, e := range s.Events {
		out[i] = e.EventType
	}
	return out
}

// must be called with mu held
func (s *Store) apply(change repository.Change) {
	if change.Audit != nil {
		s.Audits = append(s.Audits, change.Audit)
	}
	for _, e := range change.Events {
		s.Events = append(s.Events, e)
		s.outbox[e.ID] = *e
	}
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func contains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// Users

type UserRepo struct{ s *Store }

func (s *Store) Users() *UserRepo { return &UserRepo{s} }

// Seed stores u without an audit entry.
func (r *UserRepo) Seed(u *model.User) *model.User {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
		u.UpdatedAt = u.CreatedAt
	}
	r.s.users[u.ID] = *u
	return u
}

func (r *UserRepo) Create(_ context.Context, u *model.User, change repository.Change) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailWrites != nil {
		return r.s.FailWrites
	}
	r.s.users[u.ID] = *u
	r.s.apply(change)
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			u := u
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *UserRepo) GetActivePatientByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := r.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u.Role != model.RolePatient || !u.IsActive {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (r *UserRepo) List(_ context.Context, f model.UserFilter) ([]*model.User, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.User
	for _, u := range r.s.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.IsActive != nil && u.IsActive != *f.IsActive {
			continue
		}
		if f.Search != "" && !contains(u.FullName, f.Search) && !contains(u.Email, f.Search) {
			continue
		}
		u := u
		out = append(out, &u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Limit, f.Offset), len(out), nil
}

func (r *UserRepo) Update(_ context.Context, u *model.User, change repository.Change) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailWrites != nil {
		return r.s.FailWrites
	}
	if _, ok := r.s.users[u.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.users[u.ID] = *u
	r.s.apply(change)
	return nil
}

func (r *UserRepo) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.LastLoginAt = &at
	r.s.users[id] = u
	return nil
}

func (r *UserRepo) Stats(_ context.Context, now time.Time) (*model.UserStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stats := &model.UserStats{ByRole: map[string]int{}}
	for _, u := range r.s.users {
		stats.Total++
		if u.IsActive {
			stats.Active++
		}
		stats.ByRole[string(u.Role)]++
		if u.CreatedAt.After(now.AddDate(0, 0, -7)) {
			stats.RecentRegistrations.Last7Days++
		}
		if u.CreatedAt.After(now.AddDate(0, 0, -30)) {
			stats.RecentRegistrations.Last30Days++
		}
	}
	stats.Inactive = stats.Total - stats.Active
	return stats, nil
}

func (r *UserRepo) SearchActive(_ context.Context, q string, role model.Role, limit int) ([]*model.UserSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.UserSummary{}
	for _, u := range r.s.users {
		if !u.IsActive || (role != "" && u.Role != role) {
			continue
		}
		if !contains(u.FullName, q) && !contains(u.Email, q) {
			continue
		}
		out = append(out, &model.UserSummary{ID: u.ID, Name: u.FullName, Email: u.Email, Role: u.Role})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, limit, 0), nil
}

// Codes

type CodeRepo struct{ s *Store }

func (s *Store) Codes() *CodeRepo { return &CodeRepo{s} }

func (r *CodeRepo) Seed(m *model.CodeMapping) *model.CodeMapping {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	r.s.codes[m.ID] = *m
	return m
}

func (r *CodeRepo) Create(_ context.Context, m *model.CodeMapping, change repository.Change) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailWrites != nil {
		return r.s.FailWrites
	}
	r.s.codes[m.ID] = *m
	r.s.apply(change)
	return nil
}

func (r *CodeRepo) GetByID(_ context.Context, id uuid.UUID) (*model.CodeMapping, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.codes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (r *CodeRepo) GetActiveByNamasteCode(_ context.Context, code string) (*model.CodeMapping, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.codes {
		if m.NamasteCode == code && m.IsActive {
			m := m
			return &m, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *CodeRepo) ExistsByNamasteCode(_ context.Context, code string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.codes {
		if m.NamasteCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (r *CodeRepo) active(category, system string) []*model.CodeMapping {
	var out []*model.CodeMapping
	for _, m := range r.s.codes {
		if !m.IsActive {
			continue
		}
		if category != "" && model.StrVal(m.Category) != category {
			continue
		}
		if system != "" && model.StrVal(m.AyushSystem) != system {
			continue
		}
		m := m
		out = append(out, &m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConfidenceScore != out[j].ConfidenceScore {
			return out[i].ConfidenceScore > out[j].ConfidenceScore
		}
		return out[i].NamasteCode < out[j].NamasteCode
	})
	return out
}

func (r *CodeRepo) Search(_ context.Context, q model.CodeSearch) ([]*model.CodeMapping, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.CodeMapping{}
	for _, m := range r.active(q.Category, q.AyushSystem) {
		if q.Query != "" && !contains(m.NamasteCode, q.Query) && !contains(m.NamasteLabel, q.Query) &&
			!contains(m.ICD11Code, q.Query) && !contains(m.ICD11Label, q.Query) {
			continue
		}
		out = append(out, m)
	}
	return page(out, q.Limit, 0), nil
}

func (r *CodeRepo) List(_ context.Context, f model.CodeFilter) ([]*model.CodeMapping, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := r.active(f.Category, f.AyushSystem)
	return page(all, f.Limit, f.Offset), len(all), nil
}

func (r *CodeRepo) Update(_ context.Context, m *model.CodeMapping, change repository.Change) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailWrites != nil {
		return r.s.FailWrites
	}
	if _, ok := r.s.codes[m.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.codes[m.ID] = *m
	r.s.apply(change)
	return nil
}

func (r *CodeRepo) distinct(get func(model.CodeMapping) *string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, m := range r.s.codes {
		v := model.StrVal(get(m))
		if !m.IsActive || v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (r *CodeRepo) Categories(context.Context) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.distinct(func(m model.CodeMapping) *string { return m.Category }), nil
}

func (r *CodeRepo) AyushSystems(context.Context) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.distinct(func(m model.CodeMapping) *string { return m.AyushSystem }), nil
}

func (r *CodeRepo) Stats(context.Context) (*model.CodeStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stats := &model.CodeStats{ByCategory: map[string]int{}, ByAyushSystem: map[string]int{}}
	for _, m := range r.s.codes {
		stats.Total++
		if !m.IsActive {
			continue
		}
		stats.Active++
		stats.ByCategory[orDefault(model.StrVal(m.Category), "Uncategorized")]++
		stats.ByAyushSystem[orDefault(model.StrVal(m.AyushSystem), "Unknown")]++
		switch {
		case m.ConfidenceScore >= 0.9:
			stats.ConfidenceDistribution.High++
		case m.ConfidenceScore >= 0.7:
			stats.ConfidenceDistribution.Medium++
		default:
			stats.ConfidenceDistribution.Low++
		}
	}
	stats.Inactive = stats.Total - stats.Active
	return stats, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// Visits

type VisitRepo struct{ s *Store }

func (s *Store) Visits() *VisitRepo { return &VisitRepo{s} }

// must be called with mu held
func (r *VisitRepo) insert(v *model.PatientVisit, changeType string, change repository.Change) error {
	r.s.visits[v.ID] = v.Snapshot()
	r.snapshot(v, changeType, change)
	r.s.apply(change)
	return nil
}

func (r *VisitRepo) snapshot(v *model.PatientVisit, changeType string, change repository.Change) {
	raw, _ := json.Marshal(v.Snapshot())
	var by *uuid.UUID
	if change.Audit != nil {
		by = change.Audit.UserID
	}
	r.s.versions[v.ID] = append(r.s.versions[v.ID], model.VisitVersion{
		ID: uuid.New(), VisitID: v.ID, Version: v.Version, ChangeType: changeType,
		Snapshot: raw, ChangedBy: by, CreatedAt: time.Now().UTC(),
	})
}

func (r *VisitRepo) Create(_ context.Context, v *model.PatientVisit, change repository.Change) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailWrites != nil {
		return r.s.FailWrites
	}
	return r.insert(v, model.AuditActionCreate, change)
}

func (r *VisitRepo) CreateWithPatient(_ context.Context, patient *model.User, patientChange repository.Change, v *model.PatientVisit, change repository.Change) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailWrites != nil {
		return r.s.FailWrites
	}
	if patient != nil {
		r.s.users[patient.ID] = *patient
		r.s.apply(patientChange)
	}
	return r.insert(v, model.AuditActionCreate, change)
}

// must be called with mu held
func (r *VisitRepo) joined(v model.PatientVisit) *model.PatientVisit {
	if d, ok := r.s.users[v.DoctorID]; ok {
		v.DoctorName, v.DoctorEmail = model.StrPtr(d.FullName), model.StrPtr(d.Email)
	}
	if p, ok := r.s.users[v.PatientID]; ok {
		v.PatientName, v.PatientEmail = model.StrPtr(p.FullName), model.StrPtr(p.Email)
	}
	if v.NamasteCode != nil {
		for _, m := range r.s.codes {
			if m.NamasteCode == *v.NamasteCode {
				v.NamasteLabel, v.ICD11Label = model.StrPtr(m.NamasteLabel), model.StrPtr(m.ICD11Label)
				v.Category, v.AyushSystem = m.Category, m.AyushSystem
			}
		}
	}
	return &v
}

func (r *VisitRepo) GetByID(_ context.Context, id uuid.UUID) (*model.PatientVisit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.visits[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.joined(v), nil
}

func (r *VisitRepo) List(_ context.Context, f model.VisitFilter) ([]*model.PatientVisit, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.PatientVisit
	for _, v := range r.s.visits {
		if f.PatientID != nil && v.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && v.DoctorID != *f.DoctorID {
			continue
		}
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		out = append(out, r.joined(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VisitDate > out[j].VisitDate })
	return page(out, f.Limit, f.Offset), len(out), nil
}

func (r *VisitRepo) Update(_ context.Context, v *model.PatientVisit, expectedVersion int, changeType string, change repository.Change) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailWrites != nil {
		return r.s.FailWrites
	}
	cur, ok := r.s.visits[v.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	v.Version = expectedVersion + 1
	r.s.visits[v.ID] = v.Snapshot()
	r.snapshot(v, changeType, change)
	r.s.apply(change)
	return nil
}

func (r *VisitRepo) ListVersions(_ context.Context, visitID uuid.UUID) ([]*model.VisitVersion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	versions := r.s.versions[visitID]
	out := make([]*model.VisitVersion, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		vv := versions[i]
		out = append(out, &vv)
	}
	return out, nil
}

func (r *VisitRepo) GetVersion(_ context.Context, visitID uuid.UUID, version int) (*model.VisitVersion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, vv := range r.s.versions[visitID] {
		if vv.Version == version {
			vv := vv
			return &vv, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *VisitRepo) Stats(_ context.Context, doctorID *uuid.UUID, period model.DateRange) (*model.VisitStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	from, to := period.From.Format("2006-01-02"), period.To.Format("2006-01-02")
	stats := &model.VisitStats{ByCategory: map[string]int{}, ByAyushSystem: map[string]int{}, Period: period}
	for _, v := range r.s.visits {
		if v.VisitDate < from || v.VisitDate > to {
			continue
		}
		if doctorID != nil && v.DoctorID != *doctorID {
			continue
		}
		stats.Total++
		switch v.Status {
		case model.VisitStatusCompleted:
			stats.Completed++
		case model.VisitStatusDraft:
			stats.Draft++
		case model.VisitStatusCancelled:
			stats.Cancelled++
		}
		j := r.joined(v)
		if j.NamasteLabel != nil {
			stats.ByCategory[orDefault(model.StrVal(j.Category), "Uncategorized")]++
			stats.ByAyushSystem[orDefault(model.StrVal(j.AyushSystem), "Unknown")]++
		}
	}
	return stats, nil
}

// Consents

type ConsentRepo struct{ s *Store }

func (s *Store) Consents() *ConsentRepo { return &ConsentRepo{s} }

func (r *ConsentRepo) Create(_ context.Context, c *model.Consent, change repository.Change) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailWrites != nil {
		return r.s.FailWrites
	}
	r.s.consents[c.ID] = *c
	r.s.apply(change)
	return nil
}

func (r *ConsentRepo) Get(_ context.Context, patientID, id uuid.UUID) (*model.Consent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.consents[id]
	if !ok || c.PatientID != patientID {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (r *ConsentRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*model.Consent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Consent{}
	for _, c := range r.s.consents {
		if c.PatientID == patientID {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *ConsentRepo) Update(_ context.Context, c *model.Consent, expectedVersion int, change repository.Change) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailWrites != nil {
		return r.s.FailWrites
	}
	cur, ok := r.s.consents[c.ID]
	if !ok || cur.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	c.Version = expectedVersion + 1
	r.s.consents[c.ID] = *c
	r.s.apply(change)
	return nil
}

// Audit

type AuditRepo struct{ s *Store }

func (s *Store) AuditLogs() *AuditRepo { return &AuditRepo{s} }

func (r *AuditRepo) Create(_ context.Context, entry *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailWrites != nil {
		return r.s.FailWrites
	}
	r.s.Audits = append(r.s.Audits, entry)
	return nil
}

func (r *AuditRepo) GetByID(_ context.Context, id uuid.UUID) (*model.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.Audits {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *AuditRepo) List(_ context.Context, f model.AuditFilter) ([]*model.AuditLog, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.AuditLog
	for i := len(r.s.Audits) - 1; i >= 0; i-- {
		a := r.s.Audits[i]
		if f.UserID != nil && (a.UserID == nil || *a.UserID != *f.UserID) {
			continue
		}
		if f.Action != "" && a.Action != f.Action {
			continue
		}
		if f.ResourceType != "" && a.ResourceType != f.ResourceType {
			continue
		}
		if f.From != nil && a.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && a.CreatedAt.After(*f.To) {
			continue
		}
		if f.Search != "" && !contains(a.Action, f.Search) && !contains(a.ResourceType, f.Search) &&
			!contains(model.StrVal(a.IPAddress), f.Search) && !contains(model.StrVal(a.UserAgent), f.Search) {
			continue
		}
		out = append(out, a)
	}
	return page(out, f.Limit, f.Offset), len(out), nil
}

func (r *AuditRepo) Stats(_ context.Context, period model.DateRange) (*model.AuditStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stats := &model.AuditStats{
		ByAction: map[string]int{}, ByResourceType: map[string]int{}, ByUserRole: map[string]int{},
		Timeline: []model.TimelinePoint{}, Period: period,
	}
	days := map[string]int{}
	for _, a := range r.s.Audits {
		if a.CreatedAt.Before(period.From) || a.CreatedAt.After(period.To) {
			continue
		}
		stats.TotalActions++
		stats.ByAction[a.Action]++
		stats.ByResourceType[a.ResourceType]++
		role := "unknown"
		if a.UserID != nil {
			if u, ok := r.s.users[*a.UserID]; ok {
				role = string(u.Role)
			}
		}
		stats.ByUserRole[role]++
		days[a.CreatedAt.Format("2006-01-02")]++
	}
	for d, n := range days {
		stats.Timeline = append(stats.Timeline, model.TimelinePoint{Date: d, Count: n})
	}
	sort.Slice(stats.Timeline, func(i, j int) bool { return stats.Timeline[i].Date < stats.Timeline[j].Date })
	return stats, nil
}

func (r *AuditRepo) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.Audits[:0]
	var n int64
	for _, a := range r.s.Audits {
		if a.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	r.s.Audits = kept
	return n, nil
}

// Outbox

type OutboxRepo struct{ s *Store }

func (s *Store) Outbox() *OutboxRepo { return &OutboxRepo{s} }

// Enqueue stores events as if a committed change had written them.
func (r *OutboxRepo) Enqueue(events ...*model.OutboxEvent) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.apply(repository.Change{Events: events})
}

// Get returns the current state of an outbox event.
func (r *OutboxRepo) Get(id uuid.UUID) (model.OutboxEvent, bool) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.outbox[id]
	return e, ok
}

func (r *OutboxRepo) Claim(_ context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	var due []*model.OutboxEvent
	for _, e := range r.s.outbox {
		if e.Status == model.OutboxStatusPending && !e.NextAttemptAt.After(now) {
			e := e
			due = append(due, &e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	due = page(due, limit, 0)
	for _, e := range due {
		e.Attempts++
		e.NextAttemptAt = now.Add(lease)
		r.s.outbox[e.ID] = *e
	}
	return due, nil
}

func (r *OutboxRepo) MarkProcessed(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now()
	e.Status, e.ProcessedAt, e.LastError = model.OutboxStatusProcessed, &now, nil
	r.s.outbox[id] = e
	return nil
}

func (r *OutboxRepo) MarkFailed(_ context.Context, id uuid.UUID, errMsg string, next time.Time, dead bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.LastError, e.NextAttemptAt = &errMsg, next
	if dead {
		e.Status = model.OutboxStatusDead
	}
	r.s.outbox[id] = e
	return nil
}

// Encounters

type EncounterRepo struct{ s *Store }

func (s *Store) Encounters() *EncounterRepo { return &EncounterRepo{s} }

func (r *EncounterRepo) Create(_ context.Context, u *model.EncounterUpload, change repository.Change) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailWrites != nil {
		return r.s.FailWrites
	}
	r.s.encounters[u.ID] = *u
	r.s.apply(change)
	return nil
}

func (r *EncounterRepo) GetByID(_ context.Context, id uuid.UUID) (*model.EncounterUpload, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.encounters[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

var (
	_ repository.UserRepository      = (*UserRepo)(nil)
	_ repository.CodeRepository      = (*CodeRepo)(nil)
	_ repository.VisitRepository     = (*VisitRepo)(nil)
	_ repository.ConsentRepository   = (*ConsentRepo)(nil)
	_ repository.AuditRepository     = (*AuditRepo)(nil)
	_ repository.OutboxRepository    = (*OutboxRepo)(nil)
	_ repository.EncounterRepository = (*EncounterRepo)(nil)
)
