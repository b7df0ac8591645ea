package store

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/actionsync/internal/types"
)

// RunSummary is the persisted form of one sync run.
type RunSummary struct {
	ID             string
	Mode           string
	Provider       string
	DatabaseID     string
	Success        bool
	ItemsProcessed int
	ItemsCreated   int
	ItemsUpdated   int
	ItemsSkipped   int
	ItemsDeleted   int
	ErrorCount     int
	StartedAt      time.Time
	FinishedAt     time.Time
}

// StoredConflict is a conflict persisted alongside the run that found it.
type StoredConflict struct {
	ID    int64
	RunID string
	types.Conflict
	CreatedAt time.Time
}

// SaveRun records a run summary and, optionally, its conflicts in one
// transaction.
func (db *DB) SaveRun(ctx context.Context, run *RunSummary, conflicts []types.Conflict) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	success := 0
	if run.Success {
		success = 1
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO sync_runs (
		id, mode, provider, database_id, success,
		items_processed, items_created, items_updated, items_skipped, items_deleted,
		error_count, started_at, finished_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.Mode, run.Provider, run.DatabaseID, success,
		run.ItemsProcessed, run.ItemsCreated, run.ItemsUpdated, run.ItemsSkipped, run.ItemsDeleted,
		run.ErrorCount, formatTime(run.StartedAt), formatTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync run %s: %w", run.ID, err)
	}

	now := formatTime(db.now())
	for _, c := range conflicts {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_conflicts (
			run_id, action_id, external_id, local_updated_at, external_updated_at, resolution, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			run.ID, c.LocalActionID, c.ExternalID,
			formatTime(c.LocalUpdatedAt), formatTime(c.ExternalUpdatedAt),
			string(c.Resolution), now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert conflict for %s: %w", c.ExternalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]*RunSummary, error) {
	query := `
	SELECT id, mode, provider, database_id, success,
	       items_processed, items_created, items_updated, items_skipped, items_deleted,
	       error_count, started_at, finished_at
	FROM sync_runs
	ORDER BY started_at DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunSummary
	for rows.Next() {
		var r RunSummary
		var success int
		var startedAt, finishedAt string
		err := rows.Scan(
			&r.ID, &r.Mode, &r.Provider, &r.DatabaseID, &success,
			&r.ItemsProcessed, &r.ItemsCreated, &r.ItemsUpdated, &r.ItemsSkipped, &r.ItemsDeleted,
			&r.ErrorCount, &startedAt, &finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		r.Success = success == 1
		if r.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("failed to parse started_at for run %s: %w", r.ID, err)
		}
		if r.FinishedAt, err = parseTime(finishedAt); err != nil {
			return nil, fmt.Errorf("failed to parse finished_at for run %s: %w", r.ID, err)
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}
	return runs, nil
}

// ListConflicts returns stored conflicts, newest first. With pendingOnly
// only conflicts left for manual resolution are returned.
func (db *DB) ListConflicts(ctx context.Context, pendingOnly bool) ([]*StoredConflict, error) {
	query := `
	SELECT id, run_id, action_id, external_id, local_updated_at, external_updated_at, resolution, created_at
	FROM sync_conflicts
	`
	var args []any
	if pendingOnly {
		query += ` WHERE resolution = ?`
		args = append(args, string(types.ResolutionPending))
	}
	query += ` ORDER BY id DESC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var out []*StoredConflict
	for rows.Next() {
		var c StoredConflict
		var resolution, localAt, externalAt, createdAt string
		if err := rows.Scan(&c.ID, &c.RunID, &c.LocalActionID, &c.ExternalID, &localAt, &externalAt, &resolution, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		c.Resolution = types.Resolution(resolution)
		c.LocalUpdatedAt, _ = parseTime(localAt)
		c.ExternalUpdatedAt, _ = parseTime(externalAt)
		c.CreatedAt, _ = parseTime(createdAt)
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conflicts: %w", err)
	}
	return out, nil
}
