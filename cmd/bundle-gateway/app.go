package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tjfontaine/bundle-gateway/internal/adapters/ledger"
	"github.com/tjfontaine/bundle-gateway/internal/adapters/secrets"
	"github.com/tjfontaine/bundle-gateway/internal/adapters/storage"
	"github.com/tjfontaine/bundle-gateway/internal/audit"
	"github.com/tjfontaine/bundle-gateway/internal/core/ports"
	"github.com/tjfontaine/bundle-gateway/internal/delivery"
	"github.com/tjfontaine/bundle-gateway/internal/pipeline"
	"github.com/tjfontaine/bundle-gateway/internal/pkg/config"
	"github.com/tjfontaine/bundle-gateway/internal/replay"
	"github.com/tjfontaine/bundle-gateway/internal/transport"
)

// app holds the wired components shared by every subcommand.
type app struct {
	logger      *slog.Logger
	store       ports.StateStore
	secrets     ports.SecretStore
	clients     transport.ClientFactory
	closers     []io.Closer
	executor    *delivery.Executor
	service     *pipeline.Service
	coordinator *replay.Coordinator
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}

	store, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store)

	secretStore, err := secrets.New(cfg.Secrets)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("secrets: %w", err)
	}
	a.secrets = secretStore
	if c, ok := secretStore.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	dataLedger, ledgerCloser, err := ledger.New(cfg.Ledger, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("ledger: %w", err)
	}
	a.closers = append(a.closers, ledgerCloser)

	timeout := config.Duration(cfg.Scoring.Timeout, delivery.DefaultTimeout)
	a.clients = transport.DefaultClientFactory(timeout, cfg.Scoring.BlockPrivate)

	settings, err := pipeline.NewSettingsFromConfig(cfg, a.secrets, a.clients, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := settings.Registry.ValidateAll(); err != nil {
		// Unconfigured strategies fail per request, when selected.
		logger.Warn("transport strategy not fully configured", slog.String("error", err.Error()))
	}

	recorder := audit.NewRecorder(a.store, audit.WithLogger(logger))
	a.executor = delivery.NewExecutor(recorder,
		delivery.WithLogger(logger),
		delivery.WithLedger(dataLedger),
		delivery.WithBaseURL(cfg.Scoring.BaseURL),
		delivery.WithContentType(cfg.Scoring.ContentType),
		delivery.WithTimeout(timeout),
		delivery.WithMaxInFlight(cfg.Scoring.MaxInFlight),
	)
	a.service = pipeline.NewService(recorder, a.executor, settings,
		pipeline.WithLogger(logger),
		pipeline.WithLedger(dataLedger))
	a.coordinator = replay.NewCoordinator(a.store, a.service, a.executor, replay.WithLogger(logger))
	return a, nil
}

// reload applies a changed config to the parts that can change at runtime.
// Storage, secrets, and the ledger keep their startup configuration.
func (a *app) reload(cfg *config.Config) {
	settings, err := pipeline.NewSettingsFromConfig(cfg, a.secrets, a.clients, a.logger)
	if err != nil {
		a.logger.Error("ignoring invalid config reload", slog.String("error", err.Error()))
		return
	}
	a.service.Reconfigure(settings)
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
