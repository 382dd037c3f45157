package main

import (
	"context"

	"github.com/minio/minio-go/v7"
	"go.temporal.io/sdk/client"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"visa-case-tracker/internal/app"
	"visa-case-tracker/internal/config"
	"visa-case-tracker/internal/events"
)

func main() {
	fx.New(
		app.Core,
		fx.Invoke(listen),
	).Run()
}

func listen(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, minioClient *minio.Client, temporalClient client.Client, logger *zap.Logger) {
	source := events.NewMinioUploadEventSource(minioClient, cfg.MinioBucket, "", "", logger)
	dispatcher := events.NewValidationDispatcher(temporalClient, cfg.TemporalTaskQueue, cfg.WorkflowIDPrefix, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("listening for object-created events", zap.String("bucket", cfg.MinioBucket))
			go func() {
				defer close(done)
				if err := source.Run(ctx, dispatcher.Handle); err != nil && ctx.Err() == nil {
					logger.Error("event-handler stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
