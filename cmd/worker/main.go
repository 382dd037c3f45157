package main

import (
	"context"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"visa-case-tracker/internal/app"
	"visa-case-tracker/internal/config"
	"visa-case-tracker/internal/remote"
	appTemporal "visa-case-tracker/internal/temporal"
	"visa-case-tracker/internal/tracker"
)

func main() {
	fx.New(
		app.Core,
		app.Cases,
		fx.Provide(newActivities, newWorker),
		fx.Invoke(runWorker),
	).Run()
}

func newActivities(cfg config.Config, cases *tracker.Service, engine *remote.HTTPClient) *appTemporal.Activities {
	return &appTemporal.Activities{
		Cases:          cases,
		Validator:      engine,
		Compiler:       engine,
		RemoteMaxRetry: cfg.RemoteMaxRetry,
	}
}

func newWorker(cfg config.Config, temporalClient client.Client, activities *appTemporal.Activities) worker.Worker {
	w := worker.New(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(appTemporal.DocumentValidationWorkflow, workflow.RegisterOptions{Name: appTemporal.DocumentValidationWorkflowName})
	w.RegisterWorkflowWithOptions(appTemporal.CaseLifecycleWorkflow, workflow.RegisterOptions{Name: appTemporal.CaseLifecycleWorkflowName})
	w.RegisterActivity(activities.LoadDocumentActivity)
	w.RegisterActivity(activities.ValidateDocumentActivity)
	w.RegisterActivity(activities.RecordValidationActivity)
	w.RegisterActivity(activities.AdvanceCaseActivity)
	w.RegisterActivity(activities.CompilePackageActivity)
	w.RegisterActivity(activities.TransitionCaseActivity)
	return w
}

func runWorker(lc fx.Lifecycle, cfg config.Config, w worker.Worker, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("worker running", zap.String("task_queue", cfg.TemporalTaskQueue))
			return w.Start()
		},
		OnStop: func(context.Context) error {
			w.Stop()
			return nil
		},
	})
}
