package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	appTemporal "visa-case-tracker/internal/temporal"
)

const startTimeout = 15 * time.Second

// WorkflowStarter is satisfied by client.Client.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// ValidationDispatcher starts one DocumentValidationWorkflow per uploaded
// document. Redelivered notifications hit the same workflow id and are
// treated as already handled.
type ValidationDispatcher struct {
	starter   WorkflowStarter
	taskQueue string
	idPrefix  string
	logger    *zap.Logger
}

func NewValidationDispatcher(starter WorkflowStarter, taskQueue, idPrefix string, logger *zap.Logger) *ValidationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidationDispatcher{starter: starter, taskQueue: taskQueue, idPrefix: idPrefix, logger: logger}
}

func (d *ValidationDispatcher) Handle(parent context.Context, event UploadEvent) error {
	workflowID := appTemporal.DocumentWorkflowID(d.idPrefix, event.DocumentID)
	ctx, cancel := context.WithTimeout(parent, startTimeout)
	defer cancel()

	_, err := d.starter.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: d.taskQueue,
	}, appTemporal.DocumentValidationWorkflowName, appTemporal.DocumentValidationInput{
		ApplicationID: event.ApplicationID,
		DocumentID:    event.DocumentID,
		Filename:      event.Filename,
		ObjectKey:     event.ObjectKey,
	})
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			d.logger.Info("validation workflow already started",
				zap.String("workflow_id", workflowID),
				zap.String("object_key", event.ObjectKey),
			)
			return nil
		}
		return fmt.Errorf("start workflow for object %s: %w", event.ObjectKey, err)
	}

	d.logger.Info("started validation workflow",
		zap.String("workflow_id", workflowID),
		zap.String("object_key", event.ObjectKey),
	)
	return nil
}
