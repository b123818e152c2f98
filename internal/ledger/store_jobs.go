package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const defaultListLimit = 50

// CreateJob inserts a pending job. The row becomes visible only once the
// transaction commits.
func (s *Store) CreateJob(ctx context.Context, in NewJob) (*Job, error) {
	if _, ok := ParseKind(string(in.Kind)); !ok {
		return nil, fmt.Errorf("create job: unknown kind %q", in.Kind)
	}
	if len(in.RequestedStages) == 0 {
		return nil, errors.New("create job: requested stages are required")
	}
	if strings.TrimSpace(in.SourceBlobRef) == "" {
		return nil, errors.New("create job: source blob ref is required")
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = DeriveTitle(in.SourceFilename)
	}
	stages, err := encodeStrings(in.RequestedStages)
	if err != nil {
		return nil, fmt.Errorf("encode requested stages: %w", err)
	}

	id := uuid.NewString()
	now := s.now().UTC()
	timestamp := formatTime(now)

	var job *Job
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (
                id, kind, title, title_folded, source_filename, source_blob_ref,
                requested_stages, status, missing_sections, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id,
			in.Kind,
			title,
			FoldTitle(title),
			nullableString(in.SourceFilename),
			in.SourceBlobRef,
			stages,
			StatusPending,
			"[]",
			timestamp,
			timestamp,
		); err != nil {
			return fmt.Errorf("insert job: %w", err)
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

// GetJob returns a coherent snapshot of a job and its stage results.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	var job *Job
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var fetchErr error
		job, fetchErr = fetchJob(ctx, tx, id)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns jobs newest first, narrowed by filter.
func (s *Store) ListJobs(ctx context.Context, filter ListFilter) ([]*Job, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, filter.Kind)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		clauses = append(clauses, "title_folded LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(FoldTitle(search))+"%")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	return s.queryJobs(ctx, query, args...)
}

// ListByStatus returns jobs in any of the statuses, oldest first.
func (s *Store) ListByStatus(ctx context.Context, statuses ...Status) ([]*Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(statuses))
	for _, status := range statuses {
		args = append(args, status)
	}
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status IN (` + makePlaceholders(len(statuses)) + `) ORDER BY seq`
	return s.queryJobs(ctx, query, args...)
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	var jobs []*Job
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		jobs = jobs[:0]
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}
		for rows.Next() {
			job, err := scanJob(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan job: %w", err)
			}
			jobs = append(jobs, job)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("iterate jobs: %w", err)
		}
		rows.Close()
		for _, job := range jobs {
			if err := loadStageResults(ctx, tx, job); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// ClaimNext atomically moves the oldest pending job to running. It returns
// nil when nothing is pending.
func (s *Store) ClaimNext(ctx context.Context) (*Job, error) {
	var job *Job
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		job = nil
		var (
			id         string
			updatedRaw string
		)
		err := tx.QueryRowContext(ctx,
			`SELECT id, updated_at FROM jobs WHERE status = ? ORDER BY seq LIMIT 1`,
			StatusPending,
		).Scan(&id, &updatedRaw)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select pending job: %w", err)
		}
		prev, _ := parseTimeString(updatedRaw)
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			StatusRunning, formatTime(s.nextTimestamp(prev)), id, StatusPending,
		); err != nil {
			return fmt.Errorf("claim job: %w", err)
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

// Stats returns job counts per status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int, len(allStatuses))
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan job stats: %w", err)
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
