package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
)

type jobState struct {
	status    Status
	requested []Stage
	updated   string
}

func readState(ctx context.Context, tx *sql.Tx, id string) (jobState, error) {
	var (
		state        jobState
		status       string
		requestedRaw string
	)
	err := tx.QueryRowContext(ctx,
		`SELECT status, requested_stages, updated_at FROM jobs WHERE id = ?`, id,
	).Scan(&status, &requestedRaw, &state.updated)
	if errors.Is(err, sql.ErrNoRows) {
		return state, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return state, fmt.Errorf("read job state: %w", err)
	}
	state.status = Status(status)
	if err := decodeStages(requestedRaw, &state.requested); err != nil {
		return state, fmt.Errorf("decode requested stages for %s: %w", id, err)
	}
	return state, nil
}

func (s *Store) bump(state jobState) string {
	prev, _ := parseTimeString(state.updated)
	return formatTime(s.nextTimestamp(prev))
}

// MarkRunning moves a pending job to running.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	unlock := s.lockJob(id)
	defer unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		state, err := readState(ctx, tx, id)
		if err != nil {
			return err
		}
		switch {
		case state.status == StatusRunning:
			return nil
		case state.status.IsTerminal():
			return fmt.Errorf("mark running %s: %w", id, ErrTerminal)
		case state.status != StatusPending:
			return fmt.Errorf("mark running %s from %s: %w", id, state.status, ErrInvalidTransition)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
			StatusRunning, s.bump(state), id,
		); err != nil {
			return fmt.Errorf("mark running: %w", err)
		}
		return nil
	})
}

// UpdateStage records the terminal outcome of one requested stage. Retries of
// the same stage overwrite the previous result.
func (s *Store) UpdateStage(ctx context.Context, id string, stage Stage, result StageResult) (StageResult, error) {
	switch result.Outcome {
	case OutcomeSucceeded, OutcomeFailed, OutcomeSkipped:
	default:
		return StageResult{}, fmt.Errorf("update stage %s: unknown outcome %q", stage, result.Outcome)
	}

	unlock := s.lockJob(id)
	defer unlock()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		state, err := readState(ctx, tx, id)
		if err != nil {
			return err
		}
		if state.status.IsTerminal() {
			return fmt.Errorf("update stage %s on %s: %w", stage, id, ErrTerminal)
		}
		if !slices.Contains(state.requested, stage) {
			return fmt.Errorf("update stage %s on %s: %w", stage, id, ErrInvalidStage)
		}

		timestamp := s.bump(state)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stage_results (job_id, stage, outcome, result_ref, error_message, error_kind, attempts, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)
             ON CONFLICT(job_id, stage) DO UPDATE SET
                outcome = excluded.outcome,
                result_ref = excluded.result_ref,
                error_message = excluded.error_message,
                error_kind = excluded.error_kind,
                attempts = excluded.attempts,
                updated_at = excluded.updated_at`,
			id, stage, result.Outcome,
			nullableString(result.ResultRef),
			nullableString(result.Error),
			nullableString(result.ErrorKind),
			result.Attempts,
			timestamp,
		); err != nil {
			return fmt.Errorf("upsert stage result: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET updated_at = ? WHERE id = ?`, timestamp, id); err != nil {
			return fmt.Errorf("touch job: %w", err)
		}
		result.UpdatedAt, _ = parseTimeString(timestamp)
		return nil
	})
	if err != nil {
		return StageResult{}, err
	}
	return result, nil
}

// Finish moves a job into a terminal status. Completed and partially failed
// jobs must carry a final artifact; failed and cancelled jobs must not.
func (s *Store) Finish(ctx context.Context, id string, finish Finish) error {
	if !finish.Status.IsTerminal() {
		return fmt.Errorf("finish %s with %s: %w", id, finish.Status, ErrInvalidTransition)
	}
	artifact := strings.TrimSpace(finish.FinalArtifactRef)
	if finish.Status.HasArtifact() && artifact == "" {
		return fmt.Errorf("finish %s: status %s requires a final artifact: %w", id, finish.Status, ErrInvalidTransition)
	}
	if !finish.Status.HasArtifact() && artifact != "" {
		return fmt.Errorf("finish %s: status %s must not carry a final artifact: %w", id, finish.Status, ErrInvalidTransition)
	}
	if finish.Status == StatusPartiallyFailed && len(finish.MissingSections) == 0 {
		return fmt.Errorf("finish %s: partially failed jobs must list missing sections: %w", id, ErrInvalidTransition)
	}
	missing, err := encodeStrings(finish.MissingSections)
	if err != nil {
		return fmt.Errorf("encode missing sections: %w", err)
	}

	unlock := s.lockJob(id)
	defer unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		state, err := readState(ctx, tx, id)
		if err != nil {
			return err
		}
		if state.status.IsTerminal() {
			return fmt.Errorf("finish %s: %w", id, ErrTerminal)
		}
		placeholders, terminalArgs := terminalPlaceholders()
		args := []any{finish.Status, nullableString(artifact), missing, nullableString(finish.Error), s.bump(state), id}
		args = append(args, terminalArgs...)
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, final_artifact_ref = ?, missing_sections = ?, last_error = ?, updated_at = ?
             WHERE id = ? AND status NOT IN (`+placeholders+`)`,
			args...,
		); err != nil {
			return fmt.Errorf("finish job: %w", err)
		}
		return nil
	})
}

// RequestCancellation asks for a job to stop. Pending jobs are cancelled
// immediately; running jobs move to cancellation_requested and are stopped by
// the orchestrator before their next stage.
func (s *Store) RequestCancellation(ctx context.Context, id string) (*Job, error) {
	unlock := s.lockJob(id)
	defer unlock()

	var job *Job
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		state, err := readState(ctx, tx, id)
		if err != nil {
			return err
		}
		var next Status
		switch state.status {
		case StatusPending:
			next = StatusCancelled
		case StatusRunning:
			next = StatusCancellationRequested
		case StatusCancellationRequested:
		default:
			return fmt.Errorf("cancel %s: %w", id, ErrTerminal)
		}
		if next != "" {
			if _, err := tx.ExecContext(ctx,
				`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
				next, s.bump(state), id,
			); err != nil {
				return fmt.Errorf("request cancellation: %w", err)
			}
		}
		var fetchErr error
		job, fetchErr = fetchJob(ctx, tx, id)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// MarkCancelled finalizes a cancellation. Completed stage results are kept.
func (s *Store) MarkCancelled(ctx context.Context, id string) error {
	return s.Finish(ctx, id, Finish{Status: StatusCancelled})
}

// CancellationRequested reports whether the job has a pending cancellation.
func (s *Store) CancellationRequested(ctx context.Context, id string) (bool, error) {
	var requested bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		state, err := readState(ctx, tx, id)
		if err != nil {
			return err
		}
		requested = state.status == StatusCancellationRequested
		return nil
	})
	return requested, err
}

// DeleteJob removes a terminal job and its stage results from the ledger.
// Blobs the job referenced are left in the blob store; other jobs may share
// them since blobs are content addressed.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	unlock := s.lockJob(id)
	defer unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		state, err := readState(ctx, tx, id)
		if err != nil {
			return err
		}
		if !state.status.IsTerminal() {
			return fmt.Errorf("delete %s while %s: %w", id, state.status, ErrActive)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
		return nil
	})
}
