package syncengine

import (
	"time"

	"github.com/steveyegge/actionsync/internal/types"
)

// change records which sides moved past the last sync instant.
type change struct {
	local    bool
	external bool
}

// detectChange compares both sides against lastSync. Equal timestamps are
// not a change.
func detectChange(lastSync, localUpdated, externalEdited time.Time) change {
	return change{
		local:    localUpdated.After(lastSync),
		external: externalEdited.After(lastSync),
	}
}

func (c change) conflicting() bool {
	return c.local && c.external
}

// resolution is the outcome recorded for a conflict under policy.
func resolution(policy ConflictPolicy) types.Resolution {
	switch policy {
	case LocalWins:
		return types.ResolutionLocalWins
	case RemoteWins:
		return types.ResolutionRemoteWins
	}
	return types.ResolutionPending
}
