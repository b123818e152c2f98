package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"studyhub/internal/blobstore"
	"studyhub/internal/config"
	"studyhub/internal/ledger"
	"studyhub/internal/logging"
	"studyhub/internal/notifications"
	"studyhub/internal/stage"
)

// Orchestrator coordinates job processing using registered stage adapters.
type Orchestrator struct {
	store    *ledger.Store
	blobs    *blobstore.Store
	registry *stage.Registry
	notifier notifications.Service
	logger   *slog.Logger

	pollInterval time.Duration
	maxJobs      int
	maxAttempts  int
	baseDelay    time.Duration
	maxDelay     time.Duration
	stageTimeout time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
	now          func() time.Time

	wake chan struct{}
	sem  chan struct{}

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inflight map[string]struct{}
	lastErr  error
	lastJob  string
}

// Option configures optional Orchestrator behavior.
type Option func(*Orchestrator)

// WithSleeper overrides how retry backoff waits are performed.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// WithClock overrides the clock used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator constructs an orchestrator from the workflow config section.
func NewOrchestrator(
	cfg *config.Config,
	store *ledger.Store,
	blobs *blobstore.Store,
	registry *stage.Registry,
	notifier notifications.Service,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	if notifier == nil {
		notifier = notifications.Noop{}
	}
	maxJobs := cfg.Workflow.MaxConcurrentJobs
	if maxJobs <= 0 {
		maxJobs = 1
	}
	maxAttempts := cfg.Workflow.StageMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	poll := time.Duration(cfg.Workflow.PollInterval) * time.Second
	if poll <= 0 {
		poll = 2 * time.Second
	}
	timeout := time.Duration(cfg.Workflow.StageTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	o := &Orchestrator{
		store:        store,
		blobs:        blobs,
		registry:     registry,
		notifier:     notifier,
		logger:       logging.NewComponentLogger(logger, "orchestrator"),
		pollInterval: poll,
		maxJobs:      maxJobs,
		maxAttempts:  maxAttempts,
		baseDelay:    time.Duration(cfg.Workflow.RetryBaseDelayMS) * time.Millisecond,
		maxDelay:     time.Duration(cfg.Workflow.RetryMaxDelayMS) * time.Millisecond,
		stageTimeout: timeout,
		sleep:        sleepContext,
		now:          time.Now,
		wake:         make(chan struct{}, 1),
		sem:          make(chan struct{}, maxJobs),
		inflight:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enqueue wakes the poll loop so a newly created job is picked up without
// waiting for the next poll tick. It never blocks.
func (o *Orchestrator) Enqueue(jobID string) {
	select {
	case o.wake <- struct{}{}:
	default:
	}
	o.logger.Debug("job enqueued", logging.String(logging.FieldJobID, jobID))
}

func (o *Orchestrator) setLastError(err error) {
	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()
}

func (o *Orchestrator) setLastJob(id string) {
	o.mu.Lock()
	o.lastJob = id
	o.mu.Unlock()
}

// backoff returns base, 2*base, 4*base... capped at max.
func backoff(base, maxDelay time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if maxDelay > 0 && delay >= maxDelay {
			return maxDelay
		}
	}
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o *Orchestrator) timeAfter() <-chan time.Time {
	return time.After(o.pollInterval)
}
