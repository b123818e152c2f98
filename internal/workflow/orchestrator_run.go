package workflow

import (
	"context"
	"errors"

	"studyhub/internal/ledger"
	"studyhub/internal/logging"
)

// Start begins background processing. Jobs left running or awaiting
// cancellation by a previous daemon are resumed first.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return errors.New("orchestrator already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true
	o.wg.Add(1)
	o.mu.Unlock()

	go o.loop(runCtx)
	o.logger.Info("orchestrator started",
		logging.String(logging.FieldEventType, "orchestrator_started"),
		logging.Int("max_concurrent_jobs", o.maxJobs),
		logging.Duration("poll_interval", o.pollInterval),
	)
	return nil
}

// Stop terminates background processing and waits for in-flight jobs to
// return. Interrupted jobs stay running in the ledger and resume on the next
// Start.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	o.running = false
	o.cancel = nil
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
	o.logger.Info("orchestrator stopped", logging.String(logging.FieldEventType, "orchestrator_stopped"))
}

func (o *Orchestrator) loop(ctx context.Context) {
	defer o.wg.Done()

	o.resume(ctx)

	for {
		if ctx.Err() != nil {
			return
		}
		if !o.acquire(ctx) {
			return
		}
		job, err := o.store.ClaimNext(ctx)
		if err != nil {
			o.release()
			if errors.Is(err, context.Canceled) {
				return
			}
			o.setLastError(err)
			o.logger.Error("failed to claim next job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "ledger_claim_failed"),
				logging.String(logging.FieldErrorHint, "check ledger database access"),
			)
			o.waitForWork(ctx)
			continue
		}
		if job == nil {
			o.release()
			o.waitForWork(ctx)
			continue
		}
		o.logger.Info("job claimed",
			logging.String(logging.FieldEventType, "job_claimed"),
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldKind, string(job.Kind)),
		)
		o.dispatch(ctx, job.ID)
	}
}

// resume re-dispatches jobs a previous run left in flight.
func (o *Orchestrator) resume(ctx context.Context) {
	jobs, err := o.store.ListByStatus(ctx, ledger.StatusRunning, ledger.StatusCancellationRequested)
	if err != nil {
		o.setLastError(err)
		o.logger.Error("failed to list in-flight jobs",
			logging.Error(err),
			logging.String(logging.FieldEventType, "resume_failed"),
			logging.String(logging.FieldErrorHint, "check ledger database access"),
		)
		return
	}
	for _, job := range jobs {
		if !o.acquire(ctx) {
			return
		}
		o.logger.Info("resuming job",
			logging.String(logging.FieldEventType, "job_resumed"),
			logging.String(logging.FieldJobID, job.ID),
			logging.String("status", string(job.Status)),
		)
		o.dispatch(ctx, job.ID)
	}
}

// dispatch runs Process in its own goroutine. The caller must hold a slot.
func (o *Orchestrator) dispatch(ctx context.Context, jobID string) {
	if !o.markInflight(jobID) {
		o.release()
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.release()
		defer o.clearInflight(jobID)
		if err := o.Process(ctx, jobID); err != nil && !errors.Is(err, context.Canceled) {
			o.setLastError(err)
			o.logger.Error("job processing error",
				logging.Error(err),
				logging.String(logging.FieldJobID, jobID),
				logging.String(logging.FieldEventType, "job_process_error"),
				logging.String(logging.FieldErrorHint, "the job stays in flight and resumes on restart"),
			)
		}
	}()
}

func (o *Orchestrator) acquire(ctx context.Context) bool {
	select {
	case o.sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) release() {
	<-o.sem
}

func (o *Orchestrator) markInflight(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.inflight[jobID]; ok {
		return false
	}
	o.inflight[jobID] = struct{}{}
	return true
}

func (o *Orchestrator) clearInflight(jobID string) {
	o.mu.Lock()
	delete(o.inflight, jobID)
	o.mu.Unlock()
}

func (o *Orchestrator) waitForWork(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-o.wake:
	case <-o.timeAfter():
	}
}
