// Package types defines the local task model shared by the store, the sync
// engine and the provider adapters.
package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a local action.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusDeleted   Status = "DELETED"
)

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusDeleted:
		return true
	}
	return false
}

// Priority levels: 0=critical, 1=high, 2=medium, 3=low, 4=backlog.
const (
	PriorityCritical = 0
	PriorityHigh     = 1
	PriorityMedium   = 2
	PriorityLow      = 3
	PriorityBacklog  = 4
)

// SourceInternal marks actions that were created locally rather than
// imported from a provider.
const SourceInternal = "internal"

// Action is the authoritative local task entity.
type Action struct {
	// ===== Core Identification =====
	ID string `json:"id"`

	// ===== Task Content =====
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      Status `json:"status"`
	Priority    int    `json:"priority"`

	// ===== Scheduling & Ownership =====
	DueDate     *time.Time `json:"due_date,omitempty"`
	ProjectID   string     `json:"project_id,omitempty"`
	CreatedByID string     `json:"created_by_id"`

	// Source is SourceInternal or the provider the action was imported from.
	Source string `json:"source"`

	// ===== Timestamps =====
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is maintained by the store on every write.
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the Action has valid field values.
func (a *Action) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if a.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(a.Name) > 2000 {
		return fmt.Errorf("name must be 2000 characters or less (got %d)", len(a.Name))
	}
	if !a.Status.IsValid() {
		return fmt.Errorf("invalid status %q", a.Status)
	}
	if a.Priority < PriorityCritical || a.Priority > PriorityBacklog {
		return fmt.Errorf("priority must be between 0 and 4 (got %d)", a.Priority)
	}
	if a.CreatedByID == "" {
		return fmt.Errorf("created_by_id is required")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (a *Action) SetDefaults() {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = StatusActive
	}
	if a.Source == "" {
		a.Source = SourceInternal
	}
}

// Clone returns a deep copy so callers can mutate without aliasing the
// due date pointer.
func (a *Action) Clone() *Action {
	c := *a
	if a.DueDate != nil {
		d := *a.DueDate
		c.DueDate = &d
	}
	return &c
}
