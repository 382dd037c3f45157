package temporal

import (
	"go.temporal.io/sdk/workflow"

	"visa-case-tracker/internal/domain"
)

const (
	DocumentValidationWorkflowName = "DocumentValidationWorkflow"
	CaseLifecycleWorkflowName      = "CaseLifecycleWorkflow"
)

type DocumentValidationInput struct {
	ApplicationID string
	DocumentID    string
	Filename      string
	ObjectKey     string
}

type DocumentValidationResult struct {
	DocumentID       string
	ValidationStatus domain.ValidationStatus
	CaseStatus       domain.CaseStatus
}

// DocumentValidationWorkflow validates one uploaded document with the remote
// engine, records the verdict and applies any automatic case transition.
// A document that already carries a verdict is not sent to the engine again.
func DocumentValidationWorkflow(ctx workflow.Context, input DocumentValidationInput) (DocumentValidationResult, error) {
	var loaded LoadDocumentOutput
	if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyLoadDocument), (*Activities).LoadDocumentActivity, LoadDocumentInput{
		DocumentID: input.DocumentID,
	}).Get(ctx, &loaded); err != nil {
		return DocumentValidationResult{}, err
	}

	status := loaded.ValidationStatus
	if status == domain.ValidationPending {
		objectKey := loaded.ObjectKey
		if objectKey == "" {
			objectKey = input.ObjectKey
		}

		var verdict ValidateDocumentOutput
		if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyValidateDocument), (*Activities).ValidateDocumentActivity, ValidateDocumentInput{
			ApplicationID: loaded.ApplicationID,
			DocumentID:    input.DocumentID,
			DocumentType:  loaded.DocumentType,
			FileName:      loaded.FileName,
			ObjectKey:     objectKey,
		}).Get(ctx, &verdict); err != nil {
			return DocumentValidationResult{}, err
		}

		if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyRecordValidation), (*Activities).RecordValidationActivity, RecordValidationInput{
			DocumentID: input.DocumentID,
			Status:     verdict.Status,
			Reasons:    verdict.Reasons,
		}).Get(ctx, nil); err != nil {
			return DocumentValidationResult{}, err
		}
		status = verdict.Status
	}

	var advanced AdvanceCaseOutput
	if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyAdvanceCase), (*Activities).AdvanceCaseActivity, AdvanceCaseInput{
		ApplicationID: loaded.ApplicationID,
	}).Get(ctx, &advanced); err != nil {
		return DocumentValidationResult{}, err
	}

	return DocumentValidationResult{
		DocumentID:       input.DocumentID,
		ValidationStatus: status,
		CaseStatus:       advanced.Status,
	}, nil
}

type CaseLifecycleInput struct {
	ApplicationID string
}

type CaseLifecycleResult struct {
	ApplicationID string
	Status        domain.CaseStatus
}

// CaseLifecycleWorkflow serializes caseworker decisions for one case. It
// finishes once the case reaches approved or rejected. Decisions that fail
// (unknown, out of order, incomplete documents) are logged and dropped.
func CaseLifecycleWorkflow(ctx workflow.Context, input CaseLifecycleInput) (CaseLifecycleResult, error) {
	logger := workflow.GetLogger(ctx)
	signalChan := workflow.GetSignalChannel(ctx, CaseDecisionSignalName)

	for {
		var decision CaseDecisionSignal
		signalChan.Receive(ctx, &decision)

		to, err := domain.DecisionTarget(decision.Decision)
		if err != nil {
			logger.Warn("ignoring decision", "ApplicationID", input.ApplicationID, "Error", err)
			continue
		}

		if decision.Decision == domain.DecisionCompile {
			var pkg CompilePackageOutput
			if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyCompilePackage), (*Activities).CompilePackageActivity, CompilePackageInput{
				ApplicationID: input.ApplicationID,
			}).Get(ctx, &pkg); err != nil {
				logger.Warn("package compilation failed", "ApplicationID", input.ApplicationID, "Error", err)
				continue
			}
		}

		var moved TransitionCaseOutput
		if err := workflow.ExecuteActivity(mustActivityContext(ctx, ActivityPolicyTransitionCase), (*Activities).TransitionCaseActivity, TransitionCaseInput{
			ApplicationID: input.ApplicationID,
			To:            to,
			Actor:         decision.Actor,
			Reason:        decision.Reason,
		}).Get(ctx, &moved); err != nil {
			logger.Warn("transition refused", "ApplicationID", input.ApplicationID, "To", to, "Error", err)
			continue
		}

		if domain.IsTerminal(moved.Status) {
			return CaseLifecycleResult{ApplicationID: input.ApplicationID, Status: moved.Status}, nil
		}
	}
}
