package syncengine

import (
	"context"
	"errors"

	"github.com/steveyegge/actionsync/internal/integration"
	"github.com/steveyegge/actionsync/internal/store"
	"github.com/steveyegge/actionsync/internal/types"
)

// Pull makes the local store reflect the external items in scope.
//
// Unlinked items are imported. Linked items overwrite their action when a
// synchronized field differs and are skipped otherwise. A record whose
// action vanished is replaced by a fresh import. With mark_deleted and a
// project scope, synced actions of that project whose item is no longer
// listed are marked deleted.
func (e *Engine) Pull(ctx context.Context, cfg Config) (*Result, error) {
	r, err := e.begin(ModePull, &cfg)
	if err != nil {
		return r.abort(OpConfig, err, e.now().UTC())
	}

	items, err := e.svc.GetItems(ctx, cfg.DatabaseID, cfg.itemFilter())
	if err != nil {
		e.logger.Printf("Pull aborted: %v", err)
		return r.abort(OpFetchExternal, err, e.now().UTC())
	}
	e.logger.Printf("Pulling %d items from %s %s", len(items), e.provider(), cfg.DatabaseID)

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		seen[item.ID()] = true
	}

	forEach(ctx, e.concurrency, items, func(ctx context.Context, item integration.ExternalItem) {
		e.pullItem(ctx, &cfg, r, item)
	})

	if cfg.DeletionBehavior == DeletionMarkDeleted && cfg.ProjectID != "" {
		e.scanDeletions(ctx, &cfg, r, seen)
	}

	res := r.finish(e.now().UTC())
	e.logSummary(res)
	return res, nil
}

func (e *Engine) pullItem(ctx context.Context, cfg *Config, r *run, item integration.ExternalItem) {
	r.processed()
	extID := item.ID()

	parsed, err := e.svc.ParseToAction(item, cfg.PropertyMappings, cfg.StatusMappings, cfg.PriorityMappings)
	if err != nil {
		e.logger.Printf("Skipping unparseable item %s: %v", extID, err)
		r.fail("", extID, OpParse, err)
		return
	}

	rec, err := e.records.GetRecordByExternalID(ctx, e.provider(), extID)
	if errors.Is(err, store.ErrNotFound) {
		e.importItem(ctx, cfg, r, item, parsed)
		return
	}
	if err != nil {
		r.fail("", extID, OpLookup, err)
		return
	}

	// Never resurrect an item this provider already reported deleted.
	if rec.Status == types.RecordDeletedRemotely {
		r.skipped()
		return
	}

	a, err := e.actions.GetAction(ctx, rec.ActionID)
	if errors.Is(err, store.ErrNotFound) {
		e.selfHeal(ctx, cfg, r, rec, item, parsed)
		return
	}
	if err != nil {
		r.fail(rec.ActionID, extID, OpLookup, err)
		return
	}

	changed, ok := e.applyExternal(ctx, r, rec, a, item, parsed)
	switch {
	case !ok:
	case changed:
		r.updated()
	default:
		r.skipped()
	}
}

// scanDeletions marks deleted every synced action of this provider,
// container and project whose external item was not in the fetched set. It
// never looks outside the configured container or project.
func (e *Engine) scanDeletions(ctx context.Context, cfg *Config, r *run, seen map[string]bool) {
	records, err := e.records.ListRecords(ctx, store.RecordFilter{
		Provider:  e.provider(),
		ProjectID: cfg.ProjectID,
		Status:    types.RecordSynced,
	})
	if err != nil {
		r.fail("", "", OpFetchLocal, err)
		return
	}

	var missing []*types.SyncRecord
	for _, rec := range e.inContainer(ctx, cfg, r, records, seen) {
		if !seen[rec.ExternalID] {
			missing = append(missing, rec)
		}
	}

	forEach(ctx, e.concurrency, missing, func(ctx context.Context, rec *types.SyncRecord) {
		a, err := e.actions.GetAction(ctx, rec.ActionID)
		if err != nil {
			r.fail(rec.ActionID, rec.ExternalID, OpLookup, err)
			return
		}
		if a.ProjectID != cfg.ProjectID || a.CreatedByID != cfg.UserID || a.Status == types.StatusDeleted {
			return
		}
		e.markDeleted(ctx, r, rec, a)
	})
}
