package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/steveyegge/actionsync/internal/types"
)

const recordColumns = `r.id, r.action_id, r.provider, r.database_id, r.external_id, r.status, r.created_at, r.updated_at`

// RecordFilter configures the ListRecords query.
type RecordFilter struct {
	// Provider filters by provider name (empty = all providers)
	Provider string
	// DatabaseID filters by provider container (empty = all containers)
	DatabaseID string
	// ProjectID restricts to records whose action belongs to the project
	ProjectID string
	// Status filters by record status (empty = all statuses)
	Status types.RecordStatus
}

// GetRecordByExternalID returns the record linking the external item under
// the given provider. Returns ErrNotFound if there is none.
func (db *DB) GetRecordByExternalID(ctx context.Context, provider, externalID string) (*types.SyncRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM sync_records r WHERE r.provider = ? AND r.external_id = ?`
	rec, err := scanRecord(db.conn.QueryRowContext(ctx, query, provider, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s/%s: %w", provider, externalID, ErrNotFound)
	}
	return rec, err
}

// GetRecordByActionID returns the record linking the action under the given
// provider. Returns ErrNotFound if there is none.
func (db *DB) GetRecordByActionID(ctx context.Context, provider, actionID string) (*types.SyncRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM sync_records r WHERE r.provider = ? AND r.action_id = ?`
	rec, err := scanRecord(db.conn.QueryRowContext(ctx, query, provider, actionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record for action %s under %s: %w", actionID, provider, ErrNotFound)
	}
	return rec, err
}

// ListRecords retrieves sync records matching the filter, oldest first.
func (db *DB) ListRecords(ctx context.Context, filter RecordFilter) ([]*types.SyncRecord, error) {
	var conditions []string
	var args []any

	query := `SELECT ` + recordColumns + ` FROM sync_records r`
	if filter.ProjectID != "" {
		query += ` JOIN actions a ON a.id = r.action_id`
		conditions = append(conditions, "a.project_id = ?")
		args = append(args, filter.ProjectID)
	}

	if filter.Provider != "" {
		conditions = append(conditions, "r.provider = ?")
		args = append(args, filter.Provider)
	}

	if filter.DatabaseID != "" {
		conditions = append(conditions, "r.database_id = ?")
		args = append(args, filter.DatabaseID)
	}

	if filter.Status != "" {
		conditions = append(conditions, "r.status = ?")
		args = append(args, string(filter.Status))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY r.created_at ASC"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync records: %w", err)
	}
	defer rows.Close()

	var records []*types.SyncRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync records: %w", err)
	}
	return records, nil
}

// CreateRecord inserts a new sync record.
// Returns ErrDuplicateLink if either side of the link is already taken.
func (db *DB) CreateRecord(ctx context.Context, rec *types.SyncRecord) error {
	return insertRecord(ctx, db.conn, rec)
}

func insertRecord(ctx context.Context, ex execer, rec *types.SyncRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid sync record: %w", err)
	}

	query := `
	INSERT INTO sync_records (id, action_id, provider, database_id, external_id, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := ex.ExecContext(ctx, query,
		rec.ID,
		rec.ActionID,
		rec.Provider,
		rec.DatabaseID,
		rec.ExternalID,
		string(rec.Status),
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("link %s/%s -> %s: %w", rec.Provider, rec.ExternalID, rec.ActionID, ErrDuplicateLink)
		}
		return fmt.Errorf("failed to insert sync record: %w", err)
	}
	return nil
}

// UpdateRecord writes the record's status, DatabaseID and UpdatedAt.
// Returns ErrNotFound if the record does not exist.
func (db *DB) UpdateRecord(ctx context.Context, rec *types.SyncRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid sync record: %w", err)
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE sync_records SET status = ?, database_id = ?, updated_at = ? WHERE id = ?`,
		string(rec.Status), rec.DatabaseID, formatTime(rec.UpdatedAt), rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync record %s: %w", rec.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sync record %s: %w", rec.ID, ErrNotFound)
	}
	return nil
}

// DeleteRecord removes a sync record. Returns nil if it doesn't exist.
func (db *DB) DeleteRecord(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sync_records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete sync record %s: %w", id, err)
	}
	return nil
}

// CreateLinkedAction inserts a new action and its sync record in one
// transaction. If the record violates a uniqueness constraint nothing is
// written and ErrDuplicateLink is returned, so two runs racing to import the
// same external item never leave two local copies behind.
func (db *DB) CreateLinkedAction(ctx context.Context, a *types.Action, rec *types.SyncRecord) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := createAction(ctx, tx, db.now, a); err != nil {
		return err
	}

	// A link is never older than the action it was created with.
	rec.ActionID = a.ID
	if rec.UpdatedAt.Before(a.UpdatedAt) {
		rec.UpdatedAt = a.UpdatedAt
	}
	if err := insertRecord(ctx, tx, rec); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CountRecords returns the number of sync records per status for a provider
// (all providers when empty).
func (db *DB) CountRecords(ctx context.Context, provider string) (map[types.RecordStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM sync_records`
	var args []any
	if provider != "" {
		query += ` WHERE provider = ?`
		args = append(args, provider)
	}
	query += ` GROUP BY status`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count sync records: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.RecordStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan record count: %w", err)
		}
		counts[types.RecordStatus(status)] = n
	}
	return counts, rows.Err()
}

func scanRecord(row rowScanner) (*types.SyncRecord, error) {
	var rec types.SyncRecord
	var status, createdAt, updatedAt string

	err := row.Scan(
		&rec.ID,
		&rec.ActionID,
		&rec.Provider,
		&rec.DatabaseID,
		&rec.ExternalID,
		&status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan sync record: %w", err)
	}

	rec.Status = types.RecordStatus(status)
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at for record %s: %w", rec.ID, err)
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at for record %s: %w", rec.ID, err)
	}
	return &rec, nil
}
