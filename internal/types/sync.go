package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordStatus is the state of a link between a local action and an
// external item.
type RecordStatus string

const (
	RecordSynced          RecordStatus = "synced"
	RecordDeletedRemotely RecordStatus = "deleted_remotely"
)

// SyncRecord ties one local action to one external item under one provider.
//
// DatabaseID is the provider container (Notion database, task list) the item
// lives in. It is empty for links created before containers were tracked.
//
// UpdatedAt is the last known synchronized instant. It is not the edit time
// of either side.
type SyncRecord struct {
	ID         string       `json:"id"`
	ActionID   string       `json:"action_id"`
	Provider   string       `json:"provider"`
	DatabaseID string       `json:"database_id,omitempty"`
	ExternalID string       `json:"external_id"`
	Status     RecordStatus `json:"status"`
	UpdatedAt  time.Time    `json:"updated_at"`
	CreatedAt  time.Time    `json:"created_at"`
}

// NewSyncRecord builds a synced record for a fresh link.
func NewSyncRecord(actionID, provider, databaseID, externalID string, syncedAt time.Time) *SyncRecord {
	return &SyncRecord{
		ID:         uuid.NewString(),
		ActionID:   actionID,
		Provider:   provider,
		DatabaseID: databaseID,
		ExternalID: externalID,
		Status:     RecordSynced,
		UpdatedAt:  syncedAt,
		CreatedAt:  syncedAt,
	}
}

// Validate checks if the SyncRecord has valid field values.
func (r *SyncRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if r.ActionID == "" {
		return fmt.Errorf("action_id is required")
	}
	if r.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if r.ExternalID == "" {
		return fmt.Errorf("external_id is required")
	}
	if r.Status != RecordSynced && r.Status != RecordDeletedRemotely {
		return fmt.Errorf("invalid record status %q", r.Status)
	}
	if r.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// Resolution is the outcome recorded for a conflict.
type Resolution string

const (
	ResolutionPending    Resolution = "pending"
	ResolutionLocalWins  Resolution = "local_wins"
	ResolutionRemoteWins Resolution = "remote_wins"
)

// Conflict is an item changed on both sides since the last recorded sync
// instant. Conflicts are produced per run and are only persisted when the
// caller chooses to store them.
type Conflict struct {
	LocalActionID     string     `json:"local_action_id"`
	ExternalID        string     `json:"external_id"`
	LocalUpdatedAt    time.Time  `json:"local_updated_at"`
	ExternalUpdatedAt time.Time  `json:"external_updated_at"`
	Resolution        Resolution `json:"resolution"`
}
