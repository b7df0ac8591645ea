package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/steveyegge/actionsync/internal/types"
)

// Entry kinds written to a JSONL export, one object per line.
const (
	EntryAction = "action"
	EntryRecord = "record"
)

// Entry is one line of a JSONL export.
type Entry struct {
	Kind   string            `json:"kind"`
	Action *types.Action     `json:"action,omitempty"`
	Record *types.SyncRecord `json:"record,omitempty"`
}

// TransferResult contains statistics about an export or import.
type TransferResult struct {
	Actions int
	Records int
	Skipped int
	Errors  []string
}

// ExportJSONL writes every action followed by every sync record to path.
// The file is written to a temp file and renamed into place.
func (db *DB) ExportJSONL(ctx context.Context, path string) (*TransferResult, error) {
	actions, err := db.ListActions(ctx, ActionFilter{})
	if err != nil {
		return nil, err
	}
	records, err := db.ListRecords(ctx, RecordFilter{})
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}

	result := &TransferResult{}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)

	writeErr := func() error {
		for _, a := range actions {
			if err := enc.Encode(Entry{Kind: EntryAction, Action: a}); err != nil {
				return fmt.Errorf("failed to encode action %s: %w", a.ID, err)
			}
			result.Actions++
		}
		for _, r := range records {
			if err := enc.Encode(Entry{Kind: EntryRecord, Record: r}); err != nil {
				return fmt.Errorf("failed to encode record %s: %w", r.ID, err)
			}
			result.Records++
		}
		return w.Flush()
	}()

	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return nil, writeErr
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return result, nil
}

// ImportJSONL loads an export produced by ExportJSONL. Actions are upserted
// by ID keeping their original timestamps; records that collide with an
// existing link are skipped, never overwritten. Individual bad lines are
// collected in the result and do not stop the import.
func (db *DB) ImportJSONL(ctx context.Context, path string) (*TransferResult, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer f.Close()

	result := &TransferResult{}
	dec := json.NewDecoder(f)
	line := 0

	for {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return result, fmt.Errorf("invalid JSON at entry %d: %w", line+1, err)
		}
		line++

		switch {
		case e.Kind == EntryAction && e.Action != nil:
			if err := db.upsertImportedAction(ctx, e.Action); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("entry %d: %v", line, err))
				continue
			}
			result.Actions++
		case e.Kind == EntryRecord && e.Record != nil:
			err := db.CreateRecord(ctx, e.Record)
			if errors.Is(err, ErrDuplicateLink) {
				result.Skipped++
				continue
			}
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("entry %d: %v", line, err))
				continue
			}
			result.Records++
		default:
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: unknown kind %q", line, e.Kind))
		}
	}

	return result, nil
}

func (db *DB) upsertImportedAction(ctx context.Context, a *types.Action) error {
	a.SetDefaults()
	if a.CreatedAt.IsZero() || a.UpdatedAt.IsZero() {
		return fmt.Errorf("action %s: timestamps are required", a.ID)
	}
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid action: %w", err)
	}

	query := `INSERT INTO actions (` + actionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		description = excluded.description,
		status = excluded.status,
		priority = excluded.priority,
		due_date = excluded.due_date,
		project_id = excluded.project_id,
		source = excluded.source,
		updated_at = excluded.updated_at
	`
	_, err := db.conn.ExecContext(ctx, query,
		a.ID, a.Name, a.Description, string(a.Status), a.Priority,
		timeToNullString(a.DueDate), a.ProjectID, a.CreatedByID, a.Source,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert action %s: %w", a.ID, err)
	}
	return nil
}
