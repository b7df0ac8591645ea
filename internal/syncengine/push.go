package syncengine

import (
	"context"
	"errors"

	"github.com/steveyegge/actionsync/internal/integration"
	"github.com/steveyegge/actionsync/internal/store"
	"github.com/steveyegge/actionsync/internal/types"
)

// Push makes the provider reflect the selected local actions.
//
// Selection is the explicit ActionIDs list, or Source plus the optional
// project scope. Completed actions are excluded unless IncludeCompleted is
// set. Unlinked actions are created externally. Linked actions are skipped
// unless OverwriteMode is set, in which case they are updated and external
// items not referenced by any synced record are archived first.
func (e *Engine) Push(ctx context.Context, cfg Config) (*Result, error) {
	r, err := e.begin(ModePush, &cfg)
	if err != nil {
		return r.abort(OpConfig, err, e.now().UTC())
	}

	actions, err := e.actions.ListActions(ctx, cfg.pushFilter())
	if err != nil {
		e.logger.Printf("Push aborted: %v", err)
		return r.abort(OpFetchLocal, err, e.now().UTC())
	}

	if cfg.OverwriteMode {
		unreferenced, err := e.unreferencedItems(ctx, &cfg)
		if err != nil {
			e.logger.Printf("Push aborted: %v", err)
			return r.abort(OpFetchExternal, err, e.now().UTC())
		}
		if len(unreferenced) > 0 {
			e.logger.Printf("Overwrite mode: archiving %d unreferenced items in %s", len(unreferenced), cfg.DatabaseID)
		}
		forEach(ctx, e.concurrency, unreferenced, func(ctx context.Context, item integration.ExternalItem) {
			r.processed()
			if err := e.svc.ArchiveItem(ctx, item.ID()); err != nil {
				e.logger.Printf("Failed to archive %s: %v", item.ID(), err)
				r.fail("", item.ID(), OpArchive, err)
				return
			}
			r.deleted()
		})
	}

	e.logger.Printf("Pushing %d actions to %s %s", len(actions), e.provider(), cfg.DatabaseID)
	forEach(ctx, e.concurrency, actions, func(ctx context.Context, a *types.Action) {
		e.pushAction(ctx, &cfg, r, a)
	})

	res := r.finish(e.now().UTC())
	e.logSummary(res)
	return res, nil
}

// unreferencedItems lists external items in scope that no synced record of
// this provider points at.
func (e *Engine) unreferencedItems(ctx context.Context, cfg *Config) ([]integration.ExternalItem, error) {
	items, err := e.svc.GetItems(ctx, cfg.DatabaseID, cfg.itemFilter())
	if err != nil {
		return nil, err
	}
	records, err := e.records.ListRecords(ctx, store.RecordFilter{
		Provider: e.provider(),
		Status:   types.RecordSynced,
	})
	if err != nil {
		return nil, err
	}

	referenced := make(map[string]bool, len(records))
	for _, rec := range records {
		referenced[rec.ExternalID] = true
	}

	var out []integration.ExternalItem
	for _, item := range items {
		if !referenced[item.ID()] {
			out = append(out, item)
		}
	}
	return out, nil
}

func (e *Engine) pushAction(ctx context.Context, cfg *Config, r *run, a *types.Action) {
	r.processed()

	rec, err := e.records.GetRecordByActionID(ctx, e.provider(), a.ID)
	if errors.Is(err, store.ErrNotFound) {
		e.pushNew(ctx, cfg, r, a)
		return
	}
	if err != nil {
		r.fail(a.ID, "", OpLookup, err)
		return
	}

	switch {
	case rec.Status == types.RecordDeletedRemotely:
		// Do not resurrect an item the provider deleted.
		r.skipped()
	case !cfg.OverwriteMode:
		r.skipped()
	default:
		if e.pushUpdate(ctx, cfg, r, rec, a, integration.ExternalItem{}) {
			r.updated()
		}
	}
}
