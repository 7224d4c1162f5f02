package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	configfile "github.com/tjfontaine/bundle-gateway/internal/adapters/config/file"
	"github.com/tjfontaine/bundle-gateway/internal/pkg/config"
	"github.com/tjfontaine/bundle-gateway/internal/server"
	"github.com/tjfontaine/bundle-gateway/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

func serveCmd(configPath *string, logger *slog.Logger) *cobra.Command {
	var (
		port  int
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath, port, watch, logger)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload transport and validation settings when the config file changes")
	return cmd
}

func runServe(ctx context.Context, configPath string, port int, watch bool, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	provider, err := configfile.NewProvider(configPath, configfile.WithLogger(logger))
	if err != nil {
		return err
	}
	cfg, err := provider.Load(ctx)
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	telemetry.SetVersion(Version)
	shutdownTracer, err := telemetry.InitTracer(cfg.Telemetry, nil, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if watch {
		if _, statErr := os.Stat(configPath); statErr == nil {
			if err := provider.Watch(ctx, a.reload); err != nil {
				logger.Warn("config hot reload disabled", slog.String("error", err.Error()))
			}
			defer provider.Close()
		}
	}

	srv := server.New(cfg.Server.Port, config.Duration(cfg.Server.RequestTimeout, 0), logger)
	server.NewHandlers(a.service, a.coordinator, a.store, logger).Routes(srv.Router)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-sigChan:
		logger.Info("shutdown signal received, draining")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if err := a.executor.Wait(shutdownCtx); err != nil {
		logger.Error("in-flight deliveries did not finish", slog.String("error", err.Error()))
	}
	logger.Info("gateway shutdown complete")
	return nil
}
