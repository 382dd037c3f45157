package temporal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"

	"visa-case-tracker/internal/domain"
	"visa-case-tracker/internal/remote"
	"visa-case-tracker/internal/tracker"
)

const (
	errTypeInvalidTransition   = "InvalidTransition"
	errTypeNotFound            = "NotFound"
	errTypeDocumentsIncomplete = "DocumentsIncomplete"
)

// CaseService is the slice of tracker.Service the activities drive.
type CaseService interface {
	Document(ctx context.Context, documentID string) (domain.Document, error)
	RecordValidation(ctx context.Context, documentID string, status domain.ValidationStatus, reasons []string) (domain.Document, error)
	AdvanceAfterValidation(ctx context.Context, caseID string) (domain.CaseStatus, error)
	Snapshot(ctx context.Context, caseID string) (tracker.CaseView, error)
	Case(ctx context.Context, caseID string) (domain.Case, error)
	Transition(ctx context.Context, caseID string, to domain.CaseStatus, actor, reason string) (domain.Case, error)
	RecordPackage(ctx context.Context, caseID, packageID string, pageCount int) error
}

type Activities struct {
	Cases          CaseService
	Validator      remote.DocumentValidator
	Compiler       remote.PackageCompiler
	RemoteMaxRetry int
}

type LoadDocumentInput struct {
	DocumentID string
}

// LoadDocumentOutput spells out the object key because domain.Document keeps
// it out of its JSON form.
type LoadDocumentOutput struct {
	ApplicationID    string
	DocumentType     domain.DocumentType
	FileName         string
	ObjectKey        string
	ValidationStatus domain.ValidationStatus
}

type ValidateDocumentInput struct {
	ApplicationID string
	DocumentID    string
	DocumentType  domain.DocumentType
	FileName      string
	ObjectKey     string
}

type ValidateDocumentOutput struct {
	Status     domain.ValidationStatus
	Reasons    []string
	Confidence float64
}

type RecordValidationInput struct {
	DocumentID string
	Status     domain.ValidationStatus
	Reasons    []string
}

type AdvanceCaseInput struct {
	ApplicationID string
}

type AdvanceCaseOutput struct {
	Status domain.CaseStatus
}

type CompilePackageInput struct {
	ApplicationID string
}

type CompilePackageOutput struct {
	PackageID string
	ObjectKey string
	PageCount int
}

type TransitionCaseInput struct {
	ApplicationID string
	To            domain.CaseStatus
	Actor         string
	Reason        string
}

type TransitionCaseOutput struct {
	Status domain.CaseStatus
}

func (a *Activities) LoadDocumentActivity(ctx context.Context, input LoadDocumentInput) (LoadDocumentOutput, error) {
	doc, err := a.Cases.Document(ctx, input.DocumentID)
	if err != nil {
		return LoadDocumentOutput{}, classifyStoreError(err)
	}
	return LoadDocumentOutput{
		ApplicationID:    doc.ApplicationID,
		DocumentType:     doc.Type,
		FileName:         doc.FileName,
		ObjectKey:        doc.ObjectKey,
		ValidationStatus: doc.ValidationStatus,
	}, nil
}

func (a *Activities) ValidateDocumentActivity(ctx context.Context, input ValidateDocumentInput) (ValidateDocumentOutput, error) {
	verdict, err := remote.WithRetry(ctx, a.RemoteMaxRetry, func(ctx context.Context) (remote.ValidationVerdict, error) {
		return a.Validator.ValidateDocument(ctx, remote.ValidationRequest{
			ApplicationID: input.ApplicationID,
			DocumentID:    input.DocumentID,
			DocumentType:  input.DocumentType,
			FileName:      input.FileName,
			ObjectKey:     input.ObjectKey,
		})
	})
	if err != nil {
		return ValidateDocumentOutput{}, err
	}
	return ValidateDocumentOutput{
		Status:     verdict.Status,
		Reasons:    verdict.Reasons,
		Confidence: verdict.Confidence,
	}, nil
}

func (a *Activities) RecordValidationActivity(ctx context.Context, input RecordValidationInput) error {
	_, err := a.Cases.RecordValidation(ctx, input.DocumentID, input.Status, input.Reasons)
	return classifyStoreError(err)
}

func (a *Activities) AdvanceCaseActivity(ctx context.Context, input AdvanceCaseInput) (AdvanceCaseOutput, error) {
	status, err := a.Cases.AdvanceAfterValidation(ctx, input.ApplicationID)
	if err != nil {
		return AdvanceCaseOutput{}, classifyStoreError(err)
	}
	return AdvanceCaseOutput{Status: status}, nil
}

// CompilePackageActivity asks the compiler for a submission package. It
// refuses cases whose required documents are not all present and valid.
func (a *Activities) CompilePackageActivity(ctx context.Context, input CompilePackageInput) (CompilePackageOutput, error) {
	view, err := a.Cases.Snapshot(ctx, input.ApplicationID)
	if err != nil {
		return CompilePackageOutput{}, classifyStoreError(err)
	}
	if !view.ManifestAvailable || !view.Snapshot.Completeness.Complete {
		return CompilePackageOutput{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("case %s has incomplete documents", input.ApplicationID),
			errTypeDocumentsIncomplete,
			nil,
		)
	}

	req := remote.CompileRequest{
		ApplicationID:  input.ApplicationID,
		VisaCategoryID: view.Case.VisaCategoryID,
	}
	for _, doc := range view.Documents {
		if doc.ValidationStatus == domain.ValidationInvalid {
			continue
		}
		req.DocumentIDs = append(req.DocumentIDs, doc.ID)
		req.ObjectKeys = append(req.ObjectKeys, doc.ObjectKey)
	}

	out, err := remote.WithRetry(ctx, a.RemoteMaxRetry, func(ctx context.Context) (remote.CompileResult, error) {
		return a.Compiler.CompilePackage(ctx, req)
	})
	if err != nil {
		return CompilePackageOutput{}, err
	}
	if err := a.Cases.RecordPackage(ctx, input.ApplicationID, out.PackageID, out.PageCount); err != nil {
		return CompilePackageOutput{}, err
	}
	return CompilePackageOutput{PackageID: out.PackageID, ObjectKey: out.ObjectKey, PageCount: out.PageCount}, nil
}

// TransitionCaseActivity is idempotent: a case already at the target status
// counts as success so a retried attempt after a committed update passes.
func (a *Activities) TransitionCaseActivity(ctx context.Context, input TransitionCaseInput) (TransitionCaseOutput, error) {
	current, err := a.Cases.Case(ctx, input.ApplicationID)
	if err != nil {
		return TransitionCaseOutput{}, classifyStoreError(err)
	}
	if current.Status == input.To {
		return TransitionCaseOutput{Status: current.Status}, nil
	}

	c, err := a.Cases.Transition(ctx, input.ApplicationID, input.To, input.Actor, input.Reason)
	if err != nil {
		return TransitionCaseOutput{}, classifyStoreError(err)
	}
	return TransitionCaseOutput{Status: c.Status}, nil
}

func classifyStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrInvalidStatus):
		return temporal.NewNonRetryableApplicationError(err.Error(), errTypeInvalidTransition, err)
	case errors.Is(err, sql.ErrNoRows):
		return temporal.NewNonRetryableApplicationError(err.Error(), errTypeNotFound, err)
	default:
		return err
	}
}
