package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"studyhub/internal/blobstore"
	"studyhub/internal/config"
	"studyhub/internal/deps"
	"studyhub/internal/gateway"
	"studyhub/internal/ledger"
	"studyhub/internal/logging"
	"studyhub/internal/stage"
	"studyhub/internal/workflow"
)

// Daemon owns the processing services and enforces single-instance execution.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *ledger.Store
	blobs        *blobstore.Store
	registry     *stage.Registry
	orchestrator *workflow.Orchestrator
	gateway      *gateway.Gateway
	api          *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	Stages       []stage.Health
	Dependencies []deps.Status
	LedgerPath   string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *ledger.Store, blobs *blobstore.Store, registry *stage.Registry, orch *workflow.Orchestrator, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || blobs == nil || registry == nil || orch == nil {
		return nil, errors.New("daemon requires config, ledger, blob store, registry, and orchestrator")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		blobs:        blobs,
		registry:     registry,
		orchestrator: orch,
		gateway:      gateway.New(cfg.Gateway, blobs, store, logger, gateway.WithEnqueuer(orch)),
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, launches the orchestrator, and begins
// serving the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another studyhub daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.orchestrator.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start orchestrator: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.orchestrator.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("studyhub daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.api.stop()
	d.orchestrator.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if the daemon refuses to start"),
		)
	}
	d.running.Store(false)
	d.logger.Info("studyhub daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Address returns the bound API address, or "" before Start.
func (d *Daemon) Address() string {
	return d.api.address()
}

// Handler returns the HTTP API handler.
func (d *Daemon) Handler() http.Handler {
	return d.api.Handler()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.orchestrator.Status(ctx),
		Stages:       d.registry.Health(),
		Dependencies: deps.CheckBinaries(deps.Requirements(d.cfg)),
		LedgerPath:   d.store.Path(),
		LockFilePath: d.lockPath,
	}
}
