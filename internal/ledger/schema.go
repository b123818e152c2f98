package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is stored in PRAGMA user_version. Bump it with schema.sql and
// add a step to migrations.
const schemaVersion = 2

// migrations[v] upgrades a database at version v to v+1.
var migrations = map[int]func(context.Context, *sql.Tx) error{
	1: addFoldedTitles,
}

// initSchema creates the tables on a fresh database (user_version 0), steps
// older databases forward, and refuses anything it has no path from.
func (s *Store) initSchema(ctx context.Context) error {
	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if current == schemaVersion {
		return nil
	}
	if current != 0 && !s.canMigrate(current) {
		return fmt.Errorf("%w: %s is at version %d, this build expects %d; remove it to start over",
			ErrSchemaMismatch, s.path, current, schemaVersion)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if current == 0 {
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	} else {
		for v := current; v < schemaVersion; v++ {
			if err := migrations[v](ctx, tx); err != nil {
				return fmt.Errorf("migrate schema %d to %d: %w", v, v+1, err)
			}
		}
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return tx.Commit()
}

func (s *Store) canMigrate(from int) bool {
	if from < 1 || from > schemaVersion {
		return false
	}
	for v := from; v < schemaVersion; v++ {
		if migrations[v] == nil {
			return false
		}
	}
	return true
}

// addFoldedTitles adds the caseless search column and backfills it. Folding
// happens in Go since SQLite's LOWER only covers ASCII.
func addFoldedTitles(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `ALTER TABLE jobs ADD COLUMN title_folded TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("add title_folded: %w", err)
	}
	rows, err := tx.QueryContext(ctx, `SELECT id, title FROM jobs`)
	if err != nil {
		return fmt.Errorf("select titles: %w", err)
	}
	folded := make(map[string]string)
	for rows.Next() {
		var id, title string
		if err := rows.Scan(&id, &title); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan title: %w", err)
		}
		folded[id] = FoldTitle(title)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for id, title := range folded {
		if _, err := tx.ExecContext(ctx, `UPDATE jobs SET title_folded = ? WHERE id = ?`, title, id); err != nil {
			return fmt.Errorf("backfill title_folded: %w", err)
		}
	}
	return nil
}
