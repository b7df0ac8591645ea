package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/actionsync/internal/types"
)

const actionColumns = `id, name, description, status, priority, due_date,
	project_id, created_by_id, source, created_at, updated_at`

// ActionFilter configures the ListActions query.
type ActionFilter struct {
	// IDs restricts to specific actions (empty = no restriction)
	IDs []string
	// CreatedByID filters by owner (empty = all owners)
	CreatedByID string
	// ProjectID filters by project (empty = all projects)
	ProjectID string
	// Statuses filters to any of the given statuses (empty = all statuses)
	Statuses []types.Status
	// Source filters by origin: "internal", a provider name, or empty for all
	Source string
	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// CreateAction inserts a new action. CreatedAt is kept when already set;
// UpdatedAt is always stamped with the store clock.
func (db *DB) CreateAction(ctx context.Context, a *types.Action) error {
	return createAction(ctx, db.conn, db.now, a)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func createAction(ctx context.Context, ex execer, now func() time.Time, a *types.Action) error {
	a.SetDefaults()
	ts := now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = ts
	}
	a.UpdatedAt = ts

	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid action: %w", err)
	}

	query := `INSERT INTO actions (` + actionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := ex.ExecContext(ctx, query,
		a.ID,
		a.Name,
		a.Description,
		string(a.Status),
		a.Priority,
		timeToNullString(a.DueDate),
		a.ProjectID,
		a.CreatedByID,
		a.Source,
		formatTime(a.CreatedAt),
		formatTime(a.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("action %s already exists: %w", a.ID, ErrDuplicateLink)
		}
		return fmt.Errorf("failed to insert action %s: %w", a.ID, err)
	}
	return nil
}

// UpdateAction overwrites the mutable fields of an existing action and
// stamps UpdatedAt. Returns ErrNotFound if the action does not exist.
func (db *DB) UpdateAction(ctx context.Context, a *types.Action) error {
	a.UpdatedAt = db.now()
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid action: %w", err)
	}

	query := `
	UPDATE actions SET
		name = ?,
		description = ?,
		status = ?,
		priority = ?,
		due_date = ?,
		project_id = ?,
		source = ?,
		updated_at = ?
	WHERE id = ?
	`
	res, err := db.conn.ExecContext(ctx, query,
		a.Name,
		a.Description,
		string(a.Status),
		a.Priority,
		timeToNullString(a.DueDate),
		a.ProjectID,
		a.Source,
		formatTime(a.UpdatedAt),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update action %s: %w", a.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("action %s: %w", a.ID, ErrNotFound)
	}
	return nil
}

// GetAction retrieves a single action by ID.
// Returns ErrNotFound if the action does not exist.
func (db *DB) GetAction(ctx context.Context, id string) (*types.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE id = ?`
	row := db.conn.QueryRowContext(ctx, query, id)

	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// DeleteAction hard-deletes an action. Sync records pointing at it are left
// in place. Returns nil if the action doesn't exist.
func (db *DB) DeleteAction(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM actions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete action %s: %w", id, err)
	}
	return nil
}

// ListActions retrieves actions matching the given filter.
// Results are ordered by priority ASC, then created_at ASC.
func (db *DB) ListActions(ctx context.Context, filter ActionFilter) ([]*types.Action, error) {
	var conditions []string
	var args []any

	if len(filter.IDs) > 0 {
		conditions = append(conditions, "id IN ("+placeholders(len(filter.IDs))+")")
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}

	if filter.CreatedByID != "" {
		conditions = append(conditions, "created_by_id = ?")
		args = append(args, filter.CreatedByID)
	}

	if filter.ProjectID != "" {
		conditions = append(conditions, "project_id = ?")
		args = append(args, filter.ProjectID)
	}

	if len(filter.Statuses) > 0 {
		conditions = append(conditions, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, s := range filter.Statuses {
			args = append(args, string(s))
		}
	}

	if filter.Source != "" && filter.Source != "all" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}

	query := `SELECT ` + actionColumns + ` FROM actions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY priority ASC, created_at ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var actions []*types.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}
	return actions, nil
}

// CountActions returns the number of actions in the database.
func (db *DB) CountActions(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM actions").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count actions: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (*types.Action, error) {
	var a types.Action
	var status string
	var dueDate sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Description,
		&status,
		&a.Priority,
		&dueDate,
		&a.ProjectID,
		&a.CreatedByID,
		&a.Source,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan action: %w", err)
	}

	a.Status = types.Status(status)
	a.DueDate = nullStringToTime(dueDate)
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at for action %s: %w", a.ID, err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at for action %s: %w", a.ID, err)
	}
	return &a, nil
}
