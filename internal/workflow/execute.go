package workflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"studyhub/internal/ledger"
	"studyhub/internal/logging"
	"studyhub/internal/notifications"
	"studyhub/internal/services"
	"studyhub/internal/stage"
)

// errStagePanic marks a recovered adapter panic.
var errStagePanic = errors.New("stage panicked")

// executeStage invokes st with retries, stores its output, and records the
// result. The returned error is non-nil only when the result could not be
// recorded or ctx was cancelled; adapter failures come back as a failed
// StageResult.
func (o *Orchestrator) executeStage(ctx context.Context, run *jobRun, st ledger.Stage, in stage.Input) (ledger.StageResult, error) {
	requestID := uuid.NewString()
	stageCtx := services.WithRequestID(services.WithStage(ctx, string(st)), requestID)
	logger := logging.WithContext(stageCtx, o.logger)

	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))
	started := time.Now()

	out, attempts, err := o.invokeWithRetry(stageCtx, st, in)
	if err != nil && ctx.Err() != nil {
		return ledger.StageResult{}, ctx.Err()
	}

	result := ledger.StageResult{Attempts: attempts}
	if err == nil {
		data, contentType := out.Payload()
		blob, putErr := o.blobs.PutBytes(stageCtx, data, contentType)
		if putErr != nil {
			if ctx.Err() != nil {
				return ledger.StageResult{}, ctx.Err()
			}
			err = fmt.Errorf("store %s result: %w", st, putErr)
		} else {
			result.Outcome = ledger.OutcomeSucceeded
			result.ResultRef = blob.Ref
			run.setOutput(st, stageOutput{data: data, contentType: blob.ContentType})
		}
	}
	if err != nil {
		result.Outcome = ledger.OutcomeFailed
		result.Error = err.Error()
		result.ErrorKind = services.ErrorKind(err)
	}

	recorded, recErr := o.store.UpdateStage(ctx, run.job.ID, st, result)
	if recErr != nil {
		return ledger.StageResult{}, fmt.Errorf("record stage %s: %w", st, recErr)
	}

	duration := time.Since(started)
	if recorded.Outcome == ledger.OutcomeSucceeded {
		logger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("stage_duration", duration),
			logging.Int("attempts", recorded.Attempts),
			logging.String("result_ref", recorded.ResultRef),
		)
	} else {
		o.setLastError(err)
		logging.WarnWithContext(logger, "stage failed", "stage_failure",
			logging.Error(err),
			logging.String("error_kind", recorded.ErrorKind),
			logging.Duration("stage_duration", duration),
			logging.Int("attempts", recorded.Attempts),
			logging.String(logging.FieldErrorHint, errorHint(recorded.ErrorKind)),
		)
	}

	o.publish(ctx, notifications.Event{
		Type:     notifications.EventStageFinished,
		JobID:    run.job.ID,
		Kind:     string(run.job.Kind),
		Title:    run.job.Title,
		Stage:    string(st),
		Outcome:  string(recorded.Outcome),
		Attempts: recorded.Attempts,
		Error:    recorded.Error,
	})
	return recorded, nil
}

// invokeWithRetry calls the adapter until it succeeds, fails permanently, or
// the attempt budget runs out. It returns the number of invocations made.
func (o *Orchestrator) invokeWithRetry(ctx context.Context, st ledger.Stage, in stage.Input) (stage.Output, int, error) {
	adapter, err := o.registry.Lookup(st)
	if err != nil {
		return stage.Output{}, 0, err
	}
	cfg := o.registry.Config(st)
	logger := logging.WithContext(ctx, o.logger)

	for attempt := 1; ; attempt++ {
		out, err := o.invokeOnce(ctx, adapter, in, cfg)
		if err == nil {
			return out, attempt, nil
		}
		if ctx.Err() != nil {
			return stage.Output{}, attempt, err
		}
		if !services.IsTransient(err) || attempt >= o.maxAttempts {
			return stage.Output{}, attempt, err
		}
		delay := backoff(o.baseDelay, o.maxDelay, attempt)
		logger.Info("stage attempt failed; retrying",
			logging.String(logging.FieldEventType, "stage_retry"),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", o.maxAttempts),
			logging.Duration("retry_delay", delay),
			logging.Error(err),
		)
		if err := o.sleep(ctx, delay); err != nil {
			return stage.Output{}, attempt, err
		}
	}
}

// invokeOnce runs a single adapter call under the per-stage timeout,
// converting panics into internal errors.
func (o *Orchestrator) invokeOnce(ctx context.Context, adapter stage.Adapter, in stage.Input, cfg stage.Config) (out stage.Output, err error) {
	callCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logging.WithContext(ctx, o.logger).Error("stage adapter panic",
				logging.String(logging.FieldEventType, "stage_panic"),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
			out = stage.Output{}
			err = fmt.Errorf("%w: %s: %v", errStagePanic, adapter.Stage(), r)
		}
	}()

	out, err = adapter.Invoke(callCtx, in, cfg)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = services.Wrap(services.ErrAdapterUnavailable, string(adapter.Stage()), "invoke", "timed out", err)
	}
	return out, err
}

func errorHint(kind string) string {
	switch kind {
	case services.KindAdapterUnavailable:
		return "external service unreachable or timed out; check connectivity and credentials"
	case services.KindAdapterRejected:
		return "input was rejected; check the uploaded file"
	default:
		return "see logs for details"
	}
}
