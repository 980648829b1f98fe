package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"fintrack/internal/shared/config"
	"fintrack/internal/shared/logging"
	"fintrack/internal/shared/telemetry"
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("Application error")
	}
}

func run() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry := func(context.Context) error { return nil }
	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err = telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
			Logger:       log,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}

	deps, err := NewDependencies(ctx, cfg, log)
	if err != nil {
		shutdownTelemetry(context.Background())
		return err
	}

	handler := SetupRoutes(deps, cfg, log)
	srv, redirectSrv, serveErr := StartServers(NewServerConfigFromConfig(handler, cfg), log)

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	GracefulShutdown(srv, redirectSrv, cfg.Server.ShutdownTimeout, log,
		deps.Close,
		func(ctx context.Context) {
			if err := shutdownTelemetry(ctx); err != nil {
				log.WithError(err).Warn("Error shutting down telemetry")
			}
		},
	)

	return runErr
}
