package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"studyhub/internal/ledger"
	"studyhub/internal/logging"
	"studyhub/internal/notifications"
	"studyhub/internal/services"
	"studyhub/internal/stage"
)

// errCancelled signals that processing stopped because the user asked.
var errCancelled = errors.New("job cancelled")

// jobRun carries per-job state through one Process call.
type jobRun struct {
	job    *ledger.Job
	logger *slog.Logger

	mu      sync.Mutex
	outputs map[ledger.Stage]stageOutput
}

type stageOutput struct {
	data        []byte
	contentType string
}

func (r *jobRun) setOutput(st ledger.Stage, out stageOutput) {
	r.mu.Lock()
	r.outputs[st] = out
	r.mu.Unlock()
}

func (r *jobRun) output(st ledger.Stage) (stageOutput, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, ok := r.outputs[st]
	return out, ok
}

// Process drives one job to a terminal status. Calling it on a terminal job
// is a no-op, and stages that already have a recorded result are not
// invoked again. A cancelled ctx stops processing without recording
// anything, leaving the job to be resumed later.
func (o *Orchestrator) Process(ctx context.Context, jobID string) error {
	ctx = services.WithJobID(ctx, jobID)
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	logger := logging.WithContext(ctx, o.logger).With(logging.String(logging.FieldKind, string(job.Kind)))
	if job.Status.IsTerminal() {
		logger.Debug("job already terminal", logging.String("status", string(job.Status)))
		return nil
	}
	o.setLastJob(job.ID)

	if job.Status == ledger.StatusPending {
		if err := o.store.MarkRunning(ctx, job.ID); err != nil {
			if errors.Is(err, ledger.ErrTerminal) {
				return nil
			}
			return fmt.Errorf("mark running: %w", err)
		}
		job.Status = ledger.StatusRunning
	}
	if job.Status == ledger.StatusCancellationRequested {
		return o.finishCancelled(ctx, job, logger)
	}

	logger.Info("job processing started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("title", job.Title),
		logging.Any("stages", job.RequestedStages),
	)
	o.publish(ctx, notifications.Event{Type: notifications.EventJobStarted, JobID: job.ID, Kind: string(job.Kind), Title: job.Title})

	run := &jobRun{job: job, logger: logger, outputs: make(map[ledger.Stage]stageOutput)}
	err = o.runPipeline(ctx, run)
	switch {
	case errors.Is(err, errCancelled):
		return o.finishCancelled(ctx, job, logger)
	case err != nil:
		return err
	}
	return nil
}

func (o *Orchestrator) runPipeline(ctx context.Context, run *jobRun) error {
	job := run.job
	var optional []stage.Node
	var final *stage.Node
	for _, node := range stage.Pipeline(job.Kind) {
		if !job.Requested(node.Stage) {
			continue
		}
		switch {
		case node.Optional:
			optional = append(optional, node)
		case len(node.Requires) > 0:
			n := node
			final = &n
		default:
			if err := o.checkCancelled(ctx, job.ID); err != nil {
				return err
			}
			ok, err := o.runPrerequisite(ctx, run, node.Stage)
			if err != nil {
				return err
			}
			if !ok {
				return o.failPrerequisite(ctx, run, node.Stage)
			}
		}
	}

	if len(optional) > 0 {
		if err := o.checkCancelled(ctx, job.ID); err != nil {
			return err
		}
		if err := o.runOptional(ctx, run, optional); err != nil {
			return err
		}
	}

	if err := o.checkCancelled(ctx, job.ID); err != nil {
		return err
	}
	return o.finalize(ctx, run, optional, final)
}

// runPrerequisite executes (or reuses) a blocking stage and reports whether
// it succeeded.
func (o *Orchestrator) runPrerequisite(ctx context.Context, run *jobRun, st ledger.Stage) (bool, error) {
	if result, ok := run.job.Result(st); ok {
		if result.Outcome != ledger.OutcomeSucceeded {
			return false, nil
		}
		if err := o.loadOutput(ctx, run, st, result); err != nil {
			return false, err
		}
		return true, nil
	}

	in, err := o.prerequisiteInput(ctx, run)
	if err != nil {
		return false, err
	}
	result, err := o.executeStage(ctx, run, st, in)
	if err != nil {
		return false, err
	}
	return result.Outcome == ledger.OutcomeSucceeded, nil
}

func (o *Orchestrator) prerequisiteInput(ctx context.Context, run *jobRun) (stage.Input, error) {
	ref := run.job.SourceBlobRef
	blob, err := o.blobs.Stat(ctx, ref)
	if err != nil {
		return stage.Input{}, fmt.Errorf("stat source blob: %w", err)
	}
	// Lecture media can be gigabytes; adapters stream it.
	open := func() (io.ReadCloser, error) {
		rc, _, err := o.blobs.Reader(ctx, ref)
		return rc, err
	}
	return stage.Input{
		JobID:    run.job.ID,
		Title:    run.job.Title,
		Filename: run.job.SourceFilename,
		Blob:     blob,
		Open:     open,
	}, nil
}

// dependentInput builds the input of a stage that consumes the blocking
// stage's output.
func (o *Orchestrator) dependentInput(run *jobRun, node stage.Node) stage.Input {
	in := stage.Input{JobID: run.job.ID, Title: run.job.Title, Filename: run.job.SourceFilename}
	for _, req := range node.Requires {
		out, ok := run.output(req)
		if !ok {
			continue
		}
		if strings.HasPrefix(out.contentType, "text/") {
			in.Text = string(out.data)
		} else {
			in.Data = out.data
		}
	}
	return in
}

// failPrerequisite records every requested dependent as skipped and fails
// the job.
func (o *Orchestrator) failPrerequisite(ctx context.Context, run *jobRun, failed ledger.Stage) error {
	job := run.job
	for _, node := range stage.Pipeline(job.Kind) {
		if !job.Requested(node.Stage) || node.Stage == failed {
			continue
		}
		if _, ok := job.Result(node.Stage); ok {
			continue
		}
		result := ledger.StageResult{
			Outcome: ledger.OutcomeSkipped,
			Error:   fmt.Sprintf("prerequisite %s failed", failed),
		}
		if _, err := o.store.UpdateStage(ctx, job.ID, node.Stage, result); err != nil {
			return fmt.Errorf("record skipped stage %s: %w", node.Stage, err)
		}
	}

	message := fmt.Sprintf("%s failed", failed)
	if result, ok := o.latestResult(ctx, job.ID, failed); ok && result.Error != "" {
		message = fmt.Sprintf("%s failed: %s", failed, result.Error)
	}
	return o.finish(ctx, run, ledger.Finish{Status: ledger.StatusFailed, Error: message})
}

func (o *Orchestrator) latestResult(ctx context.Context, jobID string, st ledger.Stage) (ledger.StageResult, bool) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return ledger.StageResult{}, false
	}
	return job.Result(st)
}

// runOptional executes the optional stages concurrently. Each records its
// own result; a failure never affects the others.
func (o *Orchestrator) runOptional(ctx context.Context, run *jobRun, nodes []stage.Node) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, node := range nodes {
		if result, ok := run.job.Result(node.Stage); ok {
			if result.Outcome == ledger.OutcomeSucceeded {
				if err := o.loadOutput(ctx, run, node.Stage, result); err != nil {
					return err
				}
			}
			continue
		}
		wg.Add(1)
		go func(node stage.Node) {
			defer wg.Done()
			if _, err := o.executeStage(ctx, run, node.Stage, o.dependentInput(run, node)); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(node)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (o *Orchestrator) loadOutput(ctx context.Context, run *jobRun, st ledger.Stage, result ledger.StageResult) error {
	if result.ResultRef == "" {
		return fmt.Errorf("stage %s succeeded without a result blob", st)
	}
	blob, data, err := o.blobs.Read(ctx, result.ResultRef)
	if err != nil {
		return fmt.Errorf("read %s result: %w", st, err)
	}
	run.setOutput(st, stageOutput{data: data, contentType: blob.ContentType})
	return nil
}

func (o *Orchestrator) checkCancelled(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	requested, err := o.store.CancellationRequested(ctx, jobID)
	if err != nil {
		return fmt.Errorf("check cancellation: %w", err)
	}
	if requested {
		return errCancelled
	}
	return nil
}

func (o *Orchestrator) finishCancelled(ctx context.Context, job *ledger.Job, logger *slog.Logger) error {
	if err := o.store.MarkCancelled(ctx, job.ID); err != nil {
		if errors.Is(err, ledger.ErrTerminal) {
			return nil
		}
		return fmt.Errorf("mark cancelled: %w", err)
	}
	logger.Info("job cancelled", logging.String(logging.FieldEventType, "job_cancelled"))
	o.publish(ctx, notifications.Event{
		Type:   notifications.EventJobFinished,
		JobID:  job.ID,
		Kind:   string(job.Kind),
		Title:  job.Title,
		Status: string(ledger.StatusCancelled),
	})
	return nil
}

func (o *Orchestrator) finish(ctx context.Context, run *jobRun, finish ledger.Finish) error {
	job := run.job
	if err := o.store.Finish(ctx, job.ID, finish); err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	attrs := []logging.Attr{logging.String("status", string(finish.Status))}
	if finish.FinalArtifactRef != "" {
		attrs = append(attrs, logging.String("artifact_ref", finish.FinalArtifactRef))
	}
	if len(finish.MissingSections) > 0 {
		attrs = append(attrs, logging.Any("missing_sections", finish.MissingSections))
	}
	if finish.Status == ledger.StatusFailed {
		attrs = append(attrs, logging.String("error", finish.Error))
		logging.WarnWithContext(run.logger, "job failed", "job_failed", attrs...)
	} else {
		attrs = append(attrs, logging.String(logging.FieldEventType, "job_complete"))
		run.logger.Info("job finished", logging.Args(attrs...)...)
	}
	o.publish(ctx, notifications.Event{
		Type:             notifications.EventJobFinished,
		JobID:            job.ID,
		Kind:             string(job.Kind),
		Title:            job.Title,
		Status:           string(finish.Status),
		Error:            finish.Error,
		FinalArtifactRef: finish.FinalArtifactRef,
		MissingSections:  finish.MissingSections,
	})
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, event notifications.Event) {
	if event.Time.IsZero() {
		event.Time = o.now()
	}
	if err := o.notifier.Publish(ctx, event); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "notification failed", "notification_failed",
			logging.Error(err),
			logging.String("notification_type", string(event.Type)),
			logging.String(logging.FieldErrorHint, "check ntfy and redis settings"),
		)
	}
}
