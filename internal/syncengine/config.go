package syncengine

import (
	"fmt"

	"github.com/steveyegge/actionsync/internal/integration"
	"github.com/steveyegge/actionsync/internal/store"
	"github.com/steveyegge/actionsync/internal/types"
)

// Mode is a sync flow.
type Mode string

const (
	ModePull          Mode = "pull"
	ModePush          Mode = "push"
	ModeBidirectional Mode = "bidirectional"
)

// ParseMode accepts a mode name, with "sync" as an alias for bidirectional.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "pull":
		return ModePull, nil
	case "push":
		return ModePush, nil
	case "bidirectional", "sync":
		return ModeBidirectional, nil
	}
	return "", fmt.Errorf("unknown sync mode %q (want pull, push or bidirectional)", s)
}

// ConflictPolicy decides which side wins when both changed.
type ConflictPolicy string

const (
	LocalWins  ConflictPolicy = "local_wins"
	RemoteWins ConflictPolicy = "remote_wins"
	Manual     ConflictPolicy = "manual"
)

// DeletionBehavior decides what happens to local actions whose external
// item disappeared.
type DeletionBehavior string

const (
	DeletionIgnore      DeletionBehavior = "ignore"
	DeletionMarkDeleted DeletionBehavior = "mark_deleted"
)

// Source values for push selection besides a provider name.
const (
	SourceAll      = "all"
	SourceInternal = types.SourceInternal
)

// Config scopes and tunes one run.
type Config struct {
	// Provider, when set, must match the engine's service.
	Provider integration.Provider
	// DatabaseID is the provider container to sync with.
	DatabaseID string

	// ProjectColumn is the provider property holding the project relation.
	ProjectColumn string
	// ProjectID scopes local actions to one project.
	ProjectID string
	// ProjectExternalRef is the provider id of the same project.
	ProjectExternalRef string

	// UserID owns the actions created and selected by the run.
	UserID string

	PropertyMappings integration.PropertyMappings
	StatusMappings   integration.StatusMappings
	PriorityMappings integration.PriorityMappings

	ConflictResolution ConflictPolicy
	DeletionBehavior   DeletionBehavior

	// OverwriteMode lets push update synced items and archive external
	// items no record references. Destructive.
	OverwriteMode bool

	// ActionIDs restricts push to specific actions.
	ActionIDs []string
	// Source restricts push by origin: all, internal or a provider name.
	Source string
	// IncludeCompleted lets push select completed actions.
	IncludeCompleted bool
}

// normalize applies defaults and validates the config.
func (c *Config) normalize() error {
	if c.DatabaseID == "" {
		return fmt.Errorf("database id is required")
	}
	if c.UserID == "" {
		return fmt.Errorf("user id is required")
	}

	switch c.ConflictResolution {
	case "":
		c.ConflictResolution = Manual
	case LocalWins, RemoteWins, Manual:
	default:
		return fmt.Errorf("invalid conflict resolution %q", c.ConflictResolution)
	}

	switch c.DeletionBehavior {
	case "":
		c.DeletionBehavior = DeletionIgnore
	case DeletionIgnore, DeletionMarkDeleted:
	default:
		return fmt.Errorf("invalid deletion behavior %q", c.DeletionBehavior)
	}

	if c.Source == "" {
		c.Source = SourceAll
	}

	// The external fetch and the local set must cover the same project,
	// otherwise local items outside the fetched scope would look deleted.
	if c.ProjectExternalRef != "" && (c.ProjectID == "" || c.ProjectColumn == "") {
		return fmt.Errorf("project external ref requires both project id and project column")
	}
	return nil
}

func (c *Config) itemFilter() *integration.ItemFilter {
	if c.ProjectColumn == "" || c.ProjectExternalRef == "" {
		return nil
	}
	return &integration.ItemFilter{ProjectColumn: c.ProjectColumn, ProjectRef: c.ProjectExternalRef}
}

func (c *Config) createOptions() *integration.CreateOptions {
	if c.ProjectColumn == "" || c.ProjectExternalRef == "" {
		return nil
	}
	return &integration.CreateOptions{ProjectColumn: c.ProjectColumn, ProjectRef: c.ProjectExternalRef}
}

// pushFilter selects local actions for push.
func (c *Config) pushFilter() store.ActionFilter {
	statuses := []types.Status{types.StatusActive}
	if c.IncludeCompleted {
		statuses = append(statuses, types.StatusCompleted)
	}

	f := store.ActionFilter{
		CreatedByID: c.UserID,
		Statuses:    statuses,
	}
	if len(c.ActionIDs) > 0 {
		f.IDs = c.ActionIDs
		return f
	}
	f.ProjectID = c.ProjectID
	f.Source = c.Source
	return f
}

// localFilter selects the local set of a bidirectional run.
func (c *Config) localFilter() store.ActionFilter {
	return store.ActionFilter{
		CreatedByID: c.UserID,
		ProjectID:   c.ProjectID,
		Statuses:    []types.Status{types.StatusActive, types.StatusCompleted},
	}
}
