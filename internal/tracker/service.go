package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"visa-case-tracker/internal/catalog"
	"visa-case-tracker/internal/domain"
	"visa-case-tracker/internal/storage"
)

// ErrCaseClosed is returned for writes against an approved or rejected case.
var ErrCaseClosed = errors.New("case is closed")

const systemActor = "system"

type Store interface {
	CreateCase(ctx context.Context, c domain.Case, opened domain.AuditEntry) error
	GetCase(ctx context.Context, caseID string) (domain.Case, error)
	ListCases(ctx context.Context, limit int) ([]domain.Case, error)
	UpdateCaseStatus(ctx context.Context, caseID string, from, to domain.CaseStatus, entry domain.AuditEntry) error
	AppendAudit(ctx context.Context, caseID string, entry domain.AuditEntry) error
	AddRiskFlag(ctx context.Context, caseID string, flag domain.RiskFlag) error
	SetEligibilityScore(ctx context.Context, caseID string, score int) (bool, error)
	CreateDocument(ctx context.Context, doc domain.Document) error
	SetDocumentObjectKey(ctx context.Context, documentID, objectKey string) error
	DeleteDocument(ctx context.Context, documentID string) error
	GetDocument(ctx context.Context, documentID string) (domain.Document, error)
	ListDocuments(ctx context.Context, caseID string) ([]domain.Document, error)
	SetDocumentValidation(ctx context.Context, documentID string, status domain.ValidationStatus, reason string) error
}

type BlobStore interface {
	PutDocument(ctx context.Context, applicationID, documentID, filename, contentType string, content []byte) (string, error)
}

// RuleViolationError lists the validation rules an input failed.
type RuleViolationError struct {
	FailedRules []string
}

func (e *RuleViolationError) Error() string {
	return "rejected: " + strings.Join(e.FailedRules, ", ")
}

// CaseView is everything a progress screen needs for one case.
type CaseView struct {
	Case              domain.Case             `json:"case"`
	Category          *domain.VisaCategory    `json:"visa_category,omitempty"`
	Documents         []domain.Document       `json:"documents"`
	Snapshot          domain.ProgressSnapshot `json:"progress"`
	ManifestAvailable bool                    `json:"manifest_available"`
}

// CaseSummary is the list-view projection of a case.
type CaseSummary struct {
	ID              string            `json:"id"`
	VisaCategoryID  string            `json:"visa_category_id"`
	Status          domain.CaseStatus `json:"status"`
	Stage           int               `json:"stage"`
	ProgressPercent int               `json:"progress_percent"`
	HasAlert        bool              `json:"has_alert"`
	CreatedAt       time.Time         `json:"created_at"`
}

type Service struct {
	store          Store
	blobs          BlobStore
	catalog        catalog.Source
	logger         *zap.Logger
	maxUploadBytes int64
	now            func() time.Time
}

func NewService(store Store, blobs BlobStore, source catalog.Source, maxUploadBytes int64, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:          store,
		blobs:          blobs,
		catalog:        source,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) OpenCase(ctx context.Context, categoryID string) (domain.Case, error) {
	category, err := s.catalog.VisaCategory(ctx, categoryID)
	if err != nil {
		return domain.Case{}, err
	}

	now := s.now()
	c := domain.Case{
		ID:             uuid.NewString(),
		VisaCategoryID: category.ID,
		Status:         domain.StatusDraft,
		CreatedAt:      now,
	}
	opened := domain.AuditEntry{
		Action:    string(domain.AuditCaseCreated),
		Details:   fmt.Sprintf("opened %s application", category.Name),
		Timestamp: now,
	}
	if err := s.store.CreateCase(ctx, c, opened); err != nil {
		return domain.Case{}, fmt.Errorf("create case: %w", err)
	}
	c.AuditTrail = []domain.AuditEntry{opened}
	c.RiskFlags = []domain.RiskFlag{}

	s.logger.Info("case opened", zap.String("case_id", c.ID), zap.String("visa_category_id", c.VisaCategoryID))
	return c, nil
}

func (s *Service) Case(ctx context.Context, caseID string) (domain.Case, error) {
	return s.store.GetCase(ctx, caseID)
}

func (s *Service) Document(ctx context.Context, documentID string) (domain.Document, error) {
	return s.store.GetDocument(ctx, documentID)
}

func (s *Service) Documents(ctx context.Context, caseID string) ([]domain.Document, error) {
	if _, err := s.store.GetCase(ctx, caseID); err != nil {
		return nil, err
	}
	return s.store.ListDocuments(ctx, caseID)
}

// Snapshot fetches the case, its documents and its manifest concurrently and
// runs the progress engine over them. A manifest that cannot be fetched
// degrades to an empty one; the view reports ManifestAvailable=false.
func (s *Service) Snapshot(ctx context.Context, caseID string) (CaseView, error) {
	var (
		view     CaseView
		manifest []domain.ManifestEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.store.GetCase(gctx, caseID)
		if err != nil {
			return err
		}
		view.Case = c

		category, err := s.catalog.VisaCategory(gctx, c.VisaCategoryID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("manifest unavailable, using empty manifest",
				zap.String("case_id", caseID),
				zap.String("visa_category_id", c.VisaCategoryID),
				zap.Error(err),
			)
			return nil
		}
		view.Category = &category
		view.ManifestAvailable = true
		manifest = category.Documents
		return nil
	})
	g.Go(func() error {
		docs, err := s.store.ListDocuments(gctx, caseID)
		if err != nil {
			return err
		}
		view.Documents = docs
		return nil
	})
	if err := g.Wait(); err != nil {
		return CaseView{}, err
	}
	if view.Documents == nil {
		view.Documents = []domain.Document{}
	}

	snap, err := domain.ComputeSnapshot(view.Case, view.Documents, manifest)
	if err != nil {
		return CaseView{}, fmt.Errorf("case %s: %w", caseID, err)
	}
	view.Snapshot = snap
	return view, nil
}

func (s *Service) ListCases(ctx context.Context, limit int) ([]CaseSummary, error) {
	cases, err := s.store.ListCases(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]CaseSummary, 0, len(cases))
	for _, c := range cases {
		out = append(out, CaseSummary{
			ID:              c.ID,
			VisaCategoryID:  c.VisaCategoryID,
			Status:          c.Status,
			Stage:           domain.DisplayOrdinal(c.Status),
			ProgressPercent: domain.ProgressPercent(c.Status),
			HasAlert:        domain.HasAlert(c.Status, c.RiskFlags),
			CreatedAt:       c.CreatedAt,
		})
	}
	return out, nil
}

// Transition moves a case one step along the pipeline, or to rejected, and
// records who did it. Only transitions allowed by domain.CanTransition pass.
func (s *Service) Transition(ctx context.Context, caseID string, to domain.CaseStatus, actor, reason string) (domain.Case, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return domain.Case{}, err
	}
	if err := domain.CanTransition(c.Status, to); err != nil {
		return domain.Case{}, err
	}

	entry := domain.AuditEntry{
		Action:    string(domain.AuditStatusChanged),
		Details:   transitionDetails(c.Status, to, actor, reason),
		Timestamp: s.now(),
	}
	if err := s.store.UpdateCaseStatus(ctx, caseID, c.Status, to, entry); err != nil {
		return domain.Case{}, err
	}
	s.logger.Info("case status changed",
		zap.String("case_id", caseID),
		zap.String("from", string(c.Status)),
		zap.String("to", string(to)),
		zap.String("actor", actor),
	)
	return s.store.GetCase(ctx, caseID)
}

func transitionDetails(from, to domain.CaseStatus, actor, reason string) string {
	if actor == "" {
		actor = systemActor
	}
	details := fmt.Sprintf("%s -> %s by %s", from, to, actor)
	if reason = strings.TrimSpace(reason); reason != "" {
		details += ": " + reason
	}
	return details
}

// AdvanceAfterValidation applies the automatic transitions: a draft with at
// least one document becomes documents_pending, and documents_pending becomes
// under_review once the manifest is complete. A case whose manifest cannot be
// fetched is never advanced past documents_pending.
func (s *Service) AdvanceAfterValidation(ctx context.Context, caseID string) (domain.CaseStatus, error) {
	for attempt := 0; attempt < domain.StageCount; attempt++ {
		view, err := s.Snapshot(ctx, caseID)
		if err != nil {
			return "", err
		}
		current := view.Case.Status

		ready := (current == domain.StatusDraft && len(view.Documents) > 0) ||
			(current == domain.StatusDocumentsPending && view.ManifestAvailable && view.Snapshot.Completeness.Complete)
		if !ready {
			return current, nil
		}
		to, _ := domain.Next(current)

		_, err = s.Transition(ctx, caseID, to, systemActor, "automatic")
		if errors.Is(err, storage.ErrStatusConflict) {
			continue
		}
		if err != nil {
			return "", err
		}
	}
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return "", err
	}
	return c.Status, nil
}

// UploadDocument validates and stores a file, registers it as pending
// validation and moves a draft case to documents_pending.
func (s *Service) UploadDocument(ctx context.Context, caseID string, candidate domain.UploadCandidate, contentType string, content []byte) (domain.Document, error) {
	if res := domain.ValidateUpload(candidate, s.maxUploadBytes); !domain.ValidationPassed(res) {
		return domain.Document{}, &RuleViolationError{FailedRules: res.FailedRules}
	}

	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return domain.Document{}, err
	}
	if domain.IsTerminal(c.Status) {
		return domain.Document{}, fmt.Errorf("%w: %s", ErrCaseClosed, c.Status)
	}

	doc := domain.Document{
		ID:               uuid.NewString(),
		ApplicationID:    caseID,
		Type:             candidate.Type,
		FileName:         candidate.FileName,
		FileSize:         candidate.FileSize,
		UploadedAt:       s.now(),
		ValidationStatus: domain.ValidationPending,
	}
	doc.ObjectKey = storage.ObjectKey(caseID, doc.ID, doc.FileName)

	// The record must exist before the object: the bucket notification for
	// the object starts validation, which loads the record. A pending record
	// counts toward completeness, so it is dropped again if the upload fails.
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return domain.Document{}, fmt.Errorf("create document: %w", err)
	}
	key, err := s.blobs.PutDocument(ctx, caseID, doc.ID, doc.FileName, contentType, content)
	if err != nil {
		s.discardDocument(ctx, doc.ID)
		return domain.Document{}, fmt.Errorf("store document: %w", err)
	}
	if key != doc.ObjectKey {
		if err := s.store.SetDocumentObjectKey(ctx, doc.ID, key); err != nil {
			s.discardDocument(ctx, doc.ID)
			return domain.Document{}, fmt.Errorf("record object key: %w", err)
		}
		doc.ObjectKey = key
	}

	if err := s.store.AppendAudit(ctx, caseID, domain.AuditEntry{
		Action:    string(domain.AuditDocumentUploaded),
		Details:   fmt.Sprintf("%s (%s)", doc.Type, doc.FileName),
		Timestamp: doc.UploadedAt,
	}); err != nil {
		s.discardDocument(ctx, doc.ID)
		return domain.Document{}, err
	}

	if c.Status == domain.StatusDraft {
		if _, err := s.Transition(ctx, caseID, domain.StatusDocumentsPending, systemActor, "first document uploaded"); err != nil && !errors.Is(err, storage.ErrStatusConflict) {
			return domain.Document{}, err
		}
	}
	return doc, nil
}

func (s *Service) discardDocument(ctx context.Context, documentID string) {
	if err := s.store.DeleteDocument(context.WithoutCancel(ctx), documentID); err != nil {
		s.logger.Error("discard document after failed upload", zap.String("document_id", documentID), zap.Error(err))
	}
}

// RecordValidation stores the engine's verdict for a document.
func (s *Service) RecordValidation(ctx context.Context, documentID string, status domain.ValidationStatus, reasons []string) (domain.Document, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return domain.Document{}, err
	}
	reason := strings.Join(reasons, "; ")
	if err := s.store.SetDocumentValidation(ctx, documentID, status, reason); err != nil {
		return domain.Document{}, err
	}

	details := fmt.Sprintf("%s %s", doc.Type, status)
	if reason != "" {
		details += ": " + reason
	}
	if err := s.store.AppendAudit(ctx, doc.ApplicationID, domain.AuditEntry{
		Action:    string(domain.AuditDocumentValidated),
		Details:   details,
		Timestamp: s.now(),
	}); err != nil {
		return domain.Document{}, err
	}

	doc.ValidationStatus = status
	doc.ValidationReason = reason
	return doc, nil
}

func (s *Service) FlagRisk(ctx context.Context, caseID string, flag domain.RiskFlag) error {
	if res := domain.ValidateRiskFlag(flag); !domain.ValidationPassed(res) {
		return &RuleViolationError{FailedRules: res.FailedRules}
	}
	if _, err := s.store.GetCase(ctx, caseID); err != nil {
		return err
	}
	if err := s.store.AddRiskFlag(ctx, caseID, flag); err != nil {
		return err
	}
	return s.store.AppendAudit(ctx, caseID, domain.AuditEntry{
		Action:    string(domain.AuditRiskFlagged),
		Details:   fmt.Sprintf("%s: %s", flag.EffectiveSeverity(), flag.Details),
		Timestamp: s.now(),
	})
}

// RecordEligibility stores the first eligibility score for a case. Later
// scores are ignored and reported with set=false.
func (s *Service) RecordEligibility(ctx context.Context, caseID string, score int, summary string) (bool, error) {
	if score < 0 || score > 100 {
		return false, fmt.Errorf("eligibility score %d out of range", score)
	}
	if _, err := s.store.GetCase(ctx, caseID); err != nil {
		return false, err
	}
	set, err := s.store.SetEligibilityScore(ctx, caseID, score)
	if err != nil || !set {
		return set, err
	}
	details := fmt.Sprintf("score %d", score)
	if summary != "" {
		details += ": " + summary
	}
	return true, s.store.AppendAudit(ctx, caseID, domain.AuditEntry{
		Action:    string(domain.AuditEligibilityScored),
		Details:   details,
		Timestamp: s.now(),
	})
}

func (s *Service) RecordPackage(ctx context.Context, caseID, packageID string, pageCount int) error {
	return s.store.AppendAudit(ctx, caseID, domain.AuditEntry{
		Action:    string(domain.AuditPackageCompiled),
		Details:   fmt.Sprintf("package %s (%d pages)", packageID, pageCount),
		Timestamp: s.now(),
	})
}
