package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"speech-relay/internal/applicatoin/facade"
	"speech-relay/internal/infrastructure/config"
	"speech-relay/internal/infrastructure/hub"
	"speech-relay/internal/infrastructure/logger"
	"speech-relay/internal/infrastructure/metrics"
	"speech-relay/internal/infrastructure/server"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the event relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cfg.Log.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}

			app, err := newApplication(cfg, log)
			if err != nil {
				return err
			}
			return app.Run(WithSignal(cmd.Context()))
		},
	}

	f := cmd.Flags()
	f.Bool("exclude-origin", false, "do not echo events back to the connection that sent them")
	f.Duration("exit-grace", config.DefaultExitGrace, "delay between broadcasting exit and stopping")
	f.String("static-dir", "./web", "directory served at /, /test and /src/")
	return cmd
}

type Application struct {
	logger   logger.Logger
	httpSrv  *server.HTTPServer
	hub      *hub.Hub
	exporter *metrics.Exporter
}

func newApplication(cfg *config.Config, log logger.Logger) (*Application, error) {
	relayMetrics := metrics.Nop()
	var exporter *metrics.Exporter
	if cfg.Metrics.Enabled {
		var err error
		if exporter, err = metrics.NewExporter(); err != nil {
			return nil, fmt.Errorf("create metrics exporter: %w", err)
		}
		if relayMetrics, err = exporter.Relay(); err != nil {
			return nil, fmt.Errorf("create relay metrics: %w", err)
		}
	}

	hubInstance := hub.New(log,
		hub.WithExcludeOrigin(cfg.Relay.ExcludeOrigin),
		hub.WithExitGrace(cfg.Relay.ExitGrace),
		hub.WithQueueSize(cfg.Relay.QueueSize),
		hub.WithMetrics(relayMetrics),
	)

	router := InitRouter(routerConfig{
		logger:    log,
		hub:       hubInstance,
		relay:     facade.NewRelayApplicationService(hubInstance),
		staticDir: cfg.Static.Dir,
		exporter:  exporter,
		connOpts: []hub.ConnectionOption{
			hub.WithSendBuffer(cfg.Relay.SendBuffer),
			hub.WithConnectionMetrics(relayMetrics),
		},
	})

	return &Application{
		logger:   log.WithField("app", "relay"),
		httpSrv:  server.NewHTTPServer(cfg.Addr(), router),
		hub:      hubInstance,
		exporter: exporter,
	}, nil
}

// Run serves until ctx is cancelled or an exit event's grace delay elapses,
// then stops the hub (flushing connections) and the HTTP server.
func (app *Application) Run(ctx context.Context) error {
	if err := app.hub.Start(context.Background()); err != nil {
		return fmt.Errorf("start hub: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg := errgroup.Group{}

	eg.Go(func() error {
		// a failed listen must still bring the hub down
		defer cancel()
		return app.httpSrv.Start(ctx)
	})

	eg.Go(func() error {
		select {
		case <-ctx.Done():
			app.logger.Info("shutdown signal received")
		case <-app.hub.ShutdownRequested():
			app.logger.Info("exit event received, shutting down")
		}

		gracefulshutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Stop hub first
		if err := app.hub.Stop(gracefulshutdownCtx); err != nil {
			app.logger.Errorf("failed to stop hub: %v", err)
		}

		err := app.httpSrv.Stop(gracefulshutdownCtx)

		if app.exporter != nil {
			if merr := app.exporter.Shutdown(gracefulshutdownCtx); merr != nil {
				app.logger.Errorf("failed to stop metrics exporter: %v", merr)
			}
		}
		return err
	})

	go func() {
		select {
		case <-app.httpSrv.Ready():
			app.logger.Infof("relay listening on %s", app.httpSrv.Addr())
		case <-ctx.Done():
		}
	}()

	return eg.Wait()
}
