package syncengine

import (
	"fmt"
	"sync"
	"time"

	"github.com/steveyegge/actionsync/internal/types"
)

// Operations reported in SyncError.Operation.
const (
	OpConfig         = "config"
	OpFetchExternal  = "fetch_external"
	OpFetchLocal     = "fetch_local"
	OpParse          = "parse"
	OpFormat         = "format"
	OpLookup         = "lookup"
	OpCreateLocal    = "create_local"
	OpUpdateLocal    = "update_local"
	OpCreateExternal = "create_external"
	OpUpdateExternal = "update_external"
	OpArchive        = "archive_external"
	OpLink           = "link"
	OpMarkDeleted    = "mark_deleted"
)

// SyncError is one failure recorded during a run.
type SyncError struct {
	ActionID   string `json:"action_id,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	Operation  string `json:"operation"`
	Message    string `json:"message"`
}

func (e SyncError) String() string {
	switch {
	case e.ActionID != "" && e.ExternalID != "":
		return fmt.Sprintf("%s %s/%s: %s", e.Operation, e.ActionID, e.ExternalID, e.Message)
	case e.ActionID != "":
		return fmt.Sprintf("%s %s: %s", e.Operation, e.ActionID, e.Message)
	case e.ExternalID != "":
		return fmt.Sprintf("%s %s: %s", e.Operation, e.ExternalID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

// Result summarizes one run. Every call returns a fresh Result.
//
// Success is false only when the run aborted on a batch-level failure.
// Item-level failures leave Success true and are listed in Errors.
type Result struct {
	Mode     Mode   `json:"mode"`
	Provider string `json:"provider"`
	Success  bool   `json:"success"`

	ItemsProcessed int `json:"items_processed"`
	ItemsCreated   int `json:"items_created"`
	ItemsUpdated   int `json:"items_updated"`
	ItemsSkipped   int `json:"items_skipped"`
	ItemsDeleted   int `json:"items_deleted"`

	Conflicts []types.Conflict `json:"conflicts"`
	Errors    []SyncError      `json:"errors"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// BatchError is returned when a run aborts before touching any item.
type BatchError struct {
	Op  string
	Err error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("sync aborted at %s: %v", e.Op, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// run accumulates a Result from concurrent item workers.
type run struct {
	mu  sync.Mutex
	res *Result
}

func newRun(mode Mode, provider string, started time.Time) *run {
	return &run{res: &Result{
		Mode:      mode,
		Provider:  provider,
		Success:   true,
		Conflicts: []types.Conflict{},
		Errors:    []SyncError{},
		StartedAt: started,
	}}
}

func (r *run) add(field *int) {
	r.mu.Lock()
	*field++
	r.mu.Unlock()
}

func (r *run) processed() { r.add(&r.res.ItemsProcessed) }
func (r *run) created()   { r.add(&r.res.ItemsCreated) }
func (r *run) updated()   { r.add(&r.res.ItemsUpdated) }
func (r *run) skipped()   { r.add(&r.res.ItemsSkipped) }
func (r *run) deleted()   { r.add(&r.res.ItemsDeleted) }

func (r *run) conflict(c types.Conflict) {
	r.mu.Lock()
	r.res.Conflicts = append(r.res.Conflicts, c)
	r.mu.Unlock()
}

func (r *run) fail(actionID, externalID, op string, err error) {
	r.mu.Lock()
	r.res.Errors = append(r.res.Errors, SyncError{
		ActionID:   actionID,
		ExternalID: externalID,
		Operation:  op,
		Message:    err.Error(),
	})
	r.mu.Unlock()
}

// abort ends the run on a batch-level failure.
func (r *run) abort(op string, err error, finished time.Time) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.res.Success = false
	r.res.Errors = []SyncError{{Operation: op, Message: err.Error()}}
	r.res.FinishedAt = finished
	return r.res, &BatchError{Op: op, Err: err}
}

func (r *run) finish(finished time.Time) *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.res.FinishedAt = finished
	return r.res
}
