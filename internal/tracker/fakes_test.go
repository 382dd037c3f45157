package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"visa-case-tracker/internal/domain"
	"visa-case-tracker/internal/storage"
)

type fakeStore struct {
	mu        sync.Mutex
	cases     map[string]domain.Case
	documents map[string]domain.Document
	order     []string
	listErr   error
	auditErr  error
	conflicts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cases:     map[string]domain.Case{},
		documents: map[string]domain.Document{},
	}
}

func (f *fakeStore) CreateCase(_ context.Context, c domain.Case, opened domain.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.AuditTrail = []domain.AuditEntry{opened}
	c.RiskFlags = []domain.RiskFlag{}
	f.cases[c.ID] = c
	f.order = append(f.order, c.ID)
	return nil
}

func (f *fakeStore) GetCase(_ context.Context, caseID string) (domain.Case, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cases[caseID]
	if !ok {
		return domain.Case{}, sql.ErrNoRows
	}
	c.AuditTrail = append([]domain.AuditEntry(nil), c.AuditTrail...)
	c.RiskFlags = append([]domain.RiskFlag(nil), c.RiskFlags...)
	return c, nil
}

func (f *fakeStore) ListCases(_ context.Context, limit int) ([]domain.Case, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Case, 0, len(f.order))
	for _, id := range f.order {
		if limit > 0 && len(out) == limit {
			break
		}
		c := f.cases[id]
		c.AuditTrail = nil
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) UpdateCaseStatus(_ context.Context, caseID string, from, to domain.CaseStatus, entry domain.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conflicts > 0 {
		f.conflicts--
		return fmt.Errorf("%w: injected", storage.ErrStatusConflict)
	}
	c, ok := f.cases[caseID]
	if !ok || c.Status != from {
		return storage.ErrStatusConflict
	}
	c.Status = to
	c.AuditTrail = append(c.AuditTrail, entry)
	f.cases[caseID] = c
	return nil
}

func (f *fakeStore) AppendAudit(_ context.Context, caseID string, entry domain.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.auditErr != nil {
		return f.auditErr
	}
	c, ok := f.cases[caseID]
	if !ok {
		return errors.New("no case")
	}
	c.AuditTrail = append(c.AuditTrail, entry)
	f.cases[caseID] = c
	return nil
}

func (f *fakeStore) AddRiskFlag(_ context.Context, caseID string, flag domain.RiskFlag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.cases[caseID]
	c.RiskFlags = append(c.RiskFlags, flag)
	f.cases[caseID] = c
	return nil
}

func (f *fakeStore) SetEligibilityScore(_ context.Context, caseID string, score int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cases[caseID]
	if !ok || c.EligibilityScore != nil {
		return false, nil
	}
	c.EligibilityScore = &score
	f.cases[caseID] = c
	return true, nil
}

func (f *fakeStore) CreateDocument(_ context.Context, doc domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents[doc.ID] = doc
	return nil
}

func (f *fakeStore) SetDocumentObjectKey(_ context.Context, documentID, objectKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[documentID]
	if !ok {
		return sql.ErrNoRows
	}
	d.ObjectKey = objectKey
	f.documents[documentID] = d
	return nil
}

func (f *fakeStore) DeleteDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.documents, documentID)
	return nil
}

func (f *fakeStore) GetDocument(_ context.Context, documentID string) (domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[documentID]
	if !ok {
		return domain.Document{}, sql.ErrNoRows
	}
	return d, nil
}

func (f *fakeStore) ListDocuments(_ context.Context, caseID string) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Document, 0)
	for _, d := range f.documents {
		if d.ApplicationID == caseID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}

func (f *fakeStore) SetDocumentValidation(_ context.Context, documentID string, status domain.ValidationStatus, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.documents[documentID]
	if !ok {
		return sql.ErrNoRows
	}
	d.ValidationStatus = status
	d.ValidationReason = reason
	f.documents[documentID] = d
	return nil
}

func (f *fakeStore) seed(c domain.Case) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.RiskFlags == nil {
		c.RiskFlags = []domain.RiskFlag{}
	}
	f.cases[c.ID] = c
	f.order = append(f.order, c.ID)
}

type fakeBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	err       error
	keyPrefix string
}

func (b *fakeBlobs) PutDocument(_ context.Context, applicationID, documentID, filename, _ string, content []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	if b.objects == nil {
		b.objects = map[string][]byte{}
	}
	key := b.keyPrefix + storage.ObjectKey(applicationID, documentID, filename)
	b.objects[key] = content
	return key, nil
}

type stubCatalog struct {
	categories map[string]domain.VisaCategory
	err        error
}

func (s stubCatalog) VisaCategory(_ context.Context, id string) (domain.VisaCategory, error) {
	if s.err != nil {
		return domain.VisaCategory{}, s.err
	}
	c, ok := s.categories[id]
	if !ok {
		return domain.VisaCategory{}, domain.ErrUnknownCategory
	}
	return c, nil
}

func (s stubCatalog) VisaCategories(_ context.Context) ([]domain.VisaCategory, error) {
	out := make([]domain.VisaCategory, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	return out, nil
}

func twoDocCatalog() stubCatalog {
	return stubCatalog{categories: map[string]domain.VisaCategory{
		"spousal": {
			ID:   "spousal",
			Name: "Spousal Visa",
			Documents: []domain.ManifestEntry{
				{Type: domain.DocPassport, Name: "Passport", Required: domain.Required(true)},
				{Type: domain.DocMarriageCertificate, Name: "Marriage certificate", Required: domain.Required(true)},
				{Type: domain.DocCV, Name: "CV", Required: domain.Required(false)},
			},
		},
	}}
}
