package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"studyhub/internal/blobstore"
	"studyhub/internal/config"
	"studyhub/internal/daemon"
	"studyhub/internal/ledger"
	"studyhub/internal/logging"
	"studyhub/internal/notifications"
	"studyhub/internal/stage"
	"studyhub/internal/workflow"
)

type app struct {
	daemon   *daemon.Daemon
	notifier notifications.Service
	logger   *slog.Logger
}

// bootstrap opens storage and wires the stage registry, notifier,
// orchestrator, and daemon.
func bootstrap(cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	store, err := ledger.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	blobs, err := blobstore.Open(cfg.BlobDir())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	notifier, err := notifications.NewService(cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init notifications: %w", err)
	}

	registry := stage.NewRegistryFromConfig(cfg, logger)
	for _, h := range registry.Health() {
		if !h.Ready {
			logging.WarnWithContext(logger, "stage not ready; jobs requesting it will fail", "stage_unavailable",
				logging.String(logging.FieldStage, string(h.Stage)),
				logging.String("detail", h.Detail),
				logging.String(logging.FieldErrorHint, "set the named key or install the missing tool, then restart"),
			)
		}
	}

	orch := workflow.NewOrchestrator(cfg, store, blobs, registry, notifier, logger)
	d, err := daemon.New(cfg, store, blobs, registry, orch, logger)
	if err != nil {
		closeNotifier(notifier)
		_ = store.Close()
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return &app{daemon: d, notifier: notifier, logger: logger}, nil
}

// Close stops the daemon and releases the ledger and notifier connections.
func (r *app) Close() error {
	err := r.daemon.Close()
	if closeErr := closeNotifier(r.notifier); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	if err != nil {
		logging.WarnWithContext(r.logger, "shutdown cleanup failed", "shutdown_failed", logging.Error(err))
	}
	return err
}

func closeNotifier(svc notifications.Service) error {
	if closer, ok := svc.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
