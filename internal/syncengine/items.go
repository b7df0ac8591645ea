package syncengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/actionsync/internal/integration"
	"github.com/steveyegge/actionsync/internal/store"
	"github.com/steveyegge/actionsync/internal/types"
)

// importItem creates a local action and its record for an unlinked
// external item. Losing a link race to a concurrent run counts as skipped.
func (e *Engine) importItem(ctx context.Context, cfg *Config, r *run, item integration.ExternalItem, parsed integration.ParsedAction) {
	extID := item.ID()
	a := &types.Action{
		CreatedByID: cfg.UserID,
		ProjectID:   cfg.ProjectID,
		Source:      e.provider(),
	}
	parsed.ApplyTo(a)

	rec := types.NewSyncRecord("", e.provider(), cfg.DatabaseID, extID, e.syncInstant(item.LastEditedTime()))
	err := e.records.CreateLinkedAction(ctx, a, rec)
	if errors.Is(err, store.ErrDuplicateLink) {
		winner, gerr := e.records.GetRecordByExternalID(ctx, e.provider(), extID)
		if gerr != nil {
			r.fail("", extID, OpLink, fmt.Errorf("lost link race but cannot read winner: %w", gerr))
			return
		}
		e.debug.Printf("%s already linked to %s by a concurrent run", extID, winner.ActionID)
		r.skipped()
		return
	}
	if err != nil {
		e.logger.Printf("Failed to import %s: %v", extID, err)
		r.fail("", extID, OpCreateLocal, err)
		return
	}

	e.debug.Printf("Imported %s as %s (%s)", extID, a.ID, a.Name)
	r.created()
}

// selfHeal replaces a record whose action vanished with a fresh import.
func (e *Engine) selfHeal(ctx context.Context, cfg *Config, r *run, rec *types.SyncRecord, item integration.ExternalItem, parsed integration.ParsedAction) {
	e.logger.Printf("Action %s linked to %s is gone, re-importing", rec.ActionID, rec.ExternalID)
	if err := e.records.DeleteRecord(ctx, rec.ID); err != nil {
		r.fail(rec.ActionID, rec.ExternalID, OpLink, err)
		return
	}
	e.importItem(ctx, cfg, r, item, parsed)
}

// applyExternal overwrites the action from parsed external fields when any
// synchronized field differs, then advances the record. changed reports
// whether the action was rewritten; ok is false when a failure was recorded.
func (e *Engine) applyExternal(ctx context.Context, r *run, rec *types.SyncRecord, a *types.Action, item integration.ExternalItem, parsed integration.ParsedAction) (changed, ok bool) {
	if !parsed.DiffersFrom(a) {
		return false, true
	}

	parsed.ApplyTo(a)
	if err := e.actions.UpdateAction(ctx, a); err != nil {
		e.logger.Printf("Failed to update action %s from %s: %v", a.ID, rec.ExternalID, err)
		r.fail(a.ID, rec.ExternalID, OpUpdateLocal, err)
		return false, false
	}

	return true, e.advance(ctx, r, rec, a.UpdatedAt, item.LastEditedTime())
}

// pushUpdate writes the action to its linked external item and advances the
// record past both sides.
func (e *Engine) pushUpdate(ctx context.Context, cfg *Config, r *run, rec *types.SyncRecord, a *types.Action, seen integration.ExternalItem) bool {
	data, err := e.svc.FormatFromAction(a, cfg.PropertyMappings, cfg.StatusMappings, cfg.PriorityMappings)
	if err != nil {
		r.fail(a.ID, rec.ExternalID, OpFormat, err)
		return false
	}

	updated, err := e.svc.UpdateItem(ctx, rec.ExternalID, data)
	if err != nil {
		e.logger.Printf("Failed to update %s from action %s: %v", rec.ExternalID, a.ID, err)
		r.fail(a.ID, rec.ExternalID, OpUpdateExternal, err)
		return false
	}

	return e.advance(ctx, r, rec, a.UpdatedAt, updated.LastEditedTime(), seen.LastEditedTime())
}

// pushNew creates an external item for an unlinked action and links it. If
// a concurrent run linked the action first, the new external item is
// archived again and the action counts as skipped.
func (e *Engine) pushNew(ctx context.Context, cfg *Config, r *run, a *types.Action) {
	data, err := e.svc.FormatFromAction(a, cfg.PropertyMappings, cfg.StatusMappings, cfg.PriorityMappings)
	if err != nil {
		r.fail(a.ID, "", OpFormat, err)
		return
	}

	item, err := e.svc.CreateItem(ctx, cfg.DatabaseID, data, cfg.createOptions())
	if err != nil {
		e.logger.Printf("Failed to create external item for %s: %v", a.ID, err)
		r.fail(a.ID, "", OpCreateExternal, err)
		return
	}

	rec := types.NewSyncRecord(a.ID, e.provider(), cfg.DatabaseID, item.ID(), e.syncInstant(a.UpdatedAt, item.LastEditedTime()))
	err = e.records.CreateRecord(ctx, rec)
	if errors.Is(err, store.ErrDuplicateLink) {
		e.logger.Printf("Action %s was linked concurrently, archiving duplicate %s", a.ID, item.ID())
		if aerr := e.svc.ArchiveItem(ctx, item.ID()); aerr != nil {
			r.fail(a.ID, item.ID(), OpArchive, aerr)
			return
		}
		r.skipped()
		return
	}
	if err != nil {
		// The external item exists but is unlinked; the next push recreates it.
		r.fail(a.ID, item.ID(), OpLink, err)
		return
	}

	e.debug.Printf("Created %s for action %s (%s)", item.ID(), a.ID, a.Name)
	r.created()
}

// markDeleted flags an action whose external item disappeared and flips its
// record to deleted_remotely.
func (e *Engine) markDeleted(ctx context.Context, r *run, rec *types.SyncRecord, a *types.Action) {
	a.Status = types.StatusDeleted
	if err := e.actions.UpdateAction(ctx, a); err != nil {
		r.fail(a.ID, rec.ExternalID, OpMarkDeleted, err)
		return
	}

	rec.Status = types.RecordDeletedRemotely
	rec.UpdatedAt = e.syncInstant(a.UpdatedAt)
	if err := e.records.UpdateRecord(ctx, rec); err != nil {
		r.fail(a.ID, rec.ExternalID, OpMarkDeleted, err)
		return
	}

	e.logger.Printf("Marked action %s deleted: %s no longer exists at %s", a.ID, rec.ExternalID, rec.Provider)
	r.deleted()
}

// advance moves the record's sync instant past the given timestamps.
func (e *Engine) advance(ctx context.Context, r *run, rec *types.SyncRecord, sides ...time.Time) bool {
	rec.Status = types.RecordSynced
	rec.UpdatedAt = e.syncInstant(sides...)
	if err := e.records.UpdateRecord(ctx, rec); err != nil {
		r.fail(rec.ActionID, rec.ExternalID, OpLink, err)
		return false
	}
	return true
}

// inContainer returns the records that belong to cfg's container. Records
// from before containers were tracked are claimed for it when their item was
// fetched; unseen ones are left out because their container is unknown.
func (e *Engine) inContainer(ctx context.Context, cfg *Config, r *run, records []*types.SyncRecord, seen map[string]bool) []*types.SyncRecord {
	var out []*types.SyncRecord
	for _, rec := range records {
		switch {
		case rec.DatabaseID == cfg.DatabaseID:
			out = append(out, rec)
		case rec.DatabaseID == "" && seen[rec.ExternalID]:
			rec.DatabaseID = cfg.DatabaseID
			if err := e.records.UpdateRecord(ctx, rec); err != nil {
				rec.DatabaseID = ""
				r.fail(rec.ActionID, rec.ExternalID, OpLink, err)
				continue
			}
			e.debug.Printf("Record for %s now belongs to %s", rec.ExternalID, cfg.DatabaseID)
			out = append(out, rec)
		}
	}
	return out
}
