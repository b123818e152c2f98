package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "id, kind, title, source_filename, source_blob_ref, requested_stages, status, final_artifact_ref, missing_sections, last_error, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		id              string
		kind            string
		title           string
		sourceFilename  sql.NullString
		sourceBlobRef   string
		requestedRaw    string
		statusStr       string
		finalArtifact   sql.NullString
		missingRaw      sql.NullString
		lastError       sql.NullString
		createdRaw      string
		updatedRaw      string
		requestedStages []Stage
		missingSections []string
	)

	if err := scanner.Scan(
		&id,
		&kind,
		&title,
		&sourceFilename,
		&sourceBlobRef,
		&requestedRaw,
		&statusStr,
		&finalArtifact,
		&missingRaw,
		&lastError,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(requestedRaw), &requestedStages); err != nil {
		return nil, fmt.Errorf("decode requested stages for %s: %w", id, err)
	}
	if missingRaw.Valid && missingRaw.String != "" {
		if err := json.Unmarshal([]byte(missingRaw.String), &missingSections); err != nil {
			return nil, fmt.Errorf("decode missing sections for %s: %w", id, err)
		}
	}
	if missingSections == nil {
		missingSections = []string{}
	}

	job := &Job{
		ID:               id,
		Kind:             Kind(kind),
		Title:            title,
		SourceFilename:   sourceFilename.String,
		SourceBlobRef:    sourceBlobRef,
		RequestedStages:  requestedStages,
		Status:           Status(statusStr),
		StageResults:     map[Stage]StageResult{},
		MissingSections:  missingSections,
		FinalArtifactRef: finalArtifact.String,
		LastError:        lastError.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func loadStageResults(ctx context.Context, q queryer, job *Job) error {
	rows, err := q.QueryContext(ctx,
		`SELECT stage, outcome, result_ref, error_message, error_kind, attempts, updated_at
         FROM stage_results WHERE job_id = ?`,
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("query stage results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			stage      string
			outcome    string
			resultRef  sql.NullString
			errMessage sql.NullString
			errKind    sql.NullString
			attempts   int
			updatedRaw string
		)
		if err := rows.Scan(&stage, &outcome, &resultRef, &errMessage, &errKind, &attempts, &updatedRaw); err != nil {
			return fmt.Errorf("scan stage result: %w", err)
		}
		res := StageResult{
			Outcome:   Outcome(outcome),
			ResultRef: resultRef.String,
			Error:     errMessage.String,
			ErrorKind: errKind.String,
			Attempts:  attempts,
		}
		if updated, err := parseTimeString(updatedRaw); err == nil {
			res.UpdatedAt = updated
		}
		job.StageResults[Stage(stage)] = res
	}
	return rows.Err()
}

// fetchJob reads a job row and its stage results through q.
func fetchJob(ctx context.Context, q queryer, id string) (*Job, error) {
	row := q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if err := loadStageResults(ctx, q, job); err != nil {
		return nil, err
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func encodeStrings[T ~string](values []T) (string, error) {
	if values == nil {
		values = []T{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func terminalPlaceholders() (string, []any) {
	args := make([]any, 0, len(terminalStatuses))
	for _, status := range terminalStatuses {
		args = append(args, status)
	}
	return makePlaceholders(len(terminalStatuses)), args
}

func decodeStages(raw string, dst *[]Stage) error {
	return json.Unmarshal([]byte(raw), dst)
}
