package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"visa-case-tracker/internal/api"
	"visa-case-tracker/internal/app"
	"visa-case-tracker/internal/catalog"
	"visa-case-tracker/internal/config"
	"visa-case-tracker/internal/remote"
	"visa-case-tracker/internal/storage"
	"visa-case-tracker/internal/tracker"
)

func main() {
	fx.New(
		app.Core,
		app.Cases,
		fx.Provide(
			newHandler,
			api.NewRouter,
			newServer,
		),
		fx.Invoke(startServer),
	).Run()
}

func newHandler(
	cfg config.Config,
	cases *tracker.Service,
	categories catalog.Source,
	engine *remote.HTTPClient,
	temporalClient client.Client,
	store *storage.PostgresStore,
	logger *zap.Logger,
) *api.Handler {
	return api.NewHandler(cfg, cases, categories, engine, temporalClient, store, logger)
}

func newServer(cfg config.Config, router http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func startServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, srv *http.Server, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			logger.Info("api listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server failed", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
