package syncengine

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/actionsync/internal/integration"
	"github.com/steveyegge/actionsync/internal/store"
	"github.com/steveyegge/actionsync/internal/types"
)

// Bidirectional reconciles both sides using each record's UpdatedAt as the
// pivot.
//
//  1. Fetch external items, local actions and this provider's records
//     concurrently.
//  2. Index local actions by the external id of their record.
//  3. For every external item: import it when unlinked, otherwise compare
//     both sides against the last sync instant and pull, push, resolve a
//     conflict, or do nothing.
//  4. With mark_deleted, mark deleted every local action linked into this
//     container whose external item is gone.
//  5. Push every local action that was never linked.
//
// The local set is the user's ACTIVE and COMPLETED actions, narrowed to
// ProjectID when set.
func (e *Engine) Bidirectional(ctx context.Context, cfg Config) (*Result, error) {
	r, err := e.begin(ModeBidirectional, &cfg)
	if err != nil {
		return r.abort(OpConfig, err, e.now().UTC())
	}

	// Step 1
	var (
		items   []integration.ExternalItem
		locals  []*types.Action
		records []*types.SyncRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if items, err = e.svc.GetItems(gctx, cfg.DatabaseID, cfg.itemFilter()); err != nil {
			return &BatchError{Op: OpFetchExternal, Err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if locals, err = e.actions.ListActions(gctx, cfg.localFilter()); err != nil {
			return &BatchError{Op: OpFetchLocal, Err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if records, err = e.records.ListRecords(gctx, store.RecordFilter{Provider: e.provider()}); err != nil {
			return &BatchError{Op: OpFetchLocal, Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		e.logger.Printf("Bidirectional sync aborted: %v", err)
		var be *BatchError
		if errors.As(err, &be) {
			return r.abort(be.Op, be.Err, e.now().UTC())
		}
		return r.abort(OpFetchLocal, err, e.now().UTC())
	}

	// Step 2
	localByID := make(map[string]*types.Action, len(locals))
	for _, a := range locals {
		localByID[a.ID] = a
	}
	recordByExt := make(map[string]*types.SyncRecord, len(records))
	recordByAction := make(map[string]*types.SyncRecord, len(records))
	for _, rec := range records {
		recordByExt[rec.ExternalID] = rec
		recordByAction[rec.ActionID] = rec
	}
	external := make(map[string]bool, len(items))
	for _, item := range items {
		external[item.ID()] = true
	}
	inContainer := make(map[string]bool, len(records))
	for _, rec := range e.inContainer(ctx, &cfg, r, records, external) {
		inContainer[rec.ID] = true
	}

	e.logger.Printf("Reconciling %d external items with %d local actions (%s)", len(items), len(locals), cfg.ConflictResolution)

	// Step 3
	forEach(ctx, e.concurrency, items, func(ctx context.Context, item integration.ExternalItem) {
		e.reconcileItem(ctx, &cfg, r, item, recordByExt[item.ID()], localByID)
	})

	// Step 4
	if cfg.DeletionBehavior == DeletionMarkDeleted {
		var gone []*types.Action
		for _, a := range locals {
			rec := recordByAction[a.ID]
			if rec != nil && inContainer[rec.ID] && rec.Status == types.RecordSynced && !external[rec.ExternalID] {
				gone = append(gone, a)
			}
		}
		forEach(ctx, e.concurrency, gone, func(ctx context.Context, a *types.Action) {
			r.processed()
			e.markDeleted(ctx, r, recordByAction[a.ID], a)
		})
	}

	// Step 5
	var unlinked []*types.Action
	for _, a := range locals {
		if recordByAction[a.ID] == nil {
			unlinked = append(unlinked, a)
		}
	}
	forEach(ctx, e.concurrency, unlinked, func(ctx context.Context, a *types.Action) {
		r.processed()
		e.pushNew(ctx, &cfg, r, a)
	})

	res := r.finish(e.now().UTC())
	e.logSummary(res)
	return res, nil
}

// reconcileItem handles one external item of a bidirectional run.
func (e *Engine) reconcileItem(ctx context.Context, cfg *Config, r *run, item integration.ExternalItem, rec *types.SyncRecord, localByID map[string]*types.Action) {
	r.processed()
	extID := item.ID()

	if rec == nil {
		parsed, err := e.svc.ParseToAction(item, cfg.PropertyMappings, cfg.StatusMappings, cfg.PriorityMappings)
		if err != nil {
			r.fail("", extID, OpParse, err)
			return
		}
		e.importItem(ctx, cfg, r, item, parsed)
		return
	}

	if rec.Status == types.RecordDeletedRemotely {
		r.skipped()
		return
	}

	a := localByID[rec.ActionID]
	if a == nil {
		// Linked to an action outside the local set.
		found, err := e.actions.GetAction(ctx, rec.ActionID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			parsed, perr := e.svc.ParseToAction(item, cfg.PropertyMappings, cfg.StatusMappings, cfg.PriorityMappings)
			if perr != nil {
				r.fail(rec.ActionID, extID, OpParse, perr)
				return
			}
			e.selfHeal(ctx, cfg, r, rec, item, parsed)
			return
		case err != nil:
			r.fail(rec.ActionID, extID, OpLookup, err)
			return
		case found.Status == types.StatusDeleted:
			r.skipped()
			return
		}
		a = found
	}

	ch := detectChange(rec.UpdatedAt, a.UpdatedAt, item.LastEditedTime())
	switch {
	case ch.conflicting():
		e.resolveConflict(ctx, cfg, r, rec, a, item)
	case ch.external:
		e.pullChange(ctx, cfg, r, rec, a, item)
	case ch.local:
		if e.pushUpdate(ctx, cfg, r, rec, a, item) {
			r.updated()
		}
	default:
		r.skipped()
	}
}

// pullChange applies an external-only change and advances the record even
// when no synchronized field differed.
func (e *Engine) pullChange(ctx context.Context, cfg *Config, r *run, rec *types.SyncRecord, a *types.Action, item integration.ExternalItem) {
	parsed, err := e.svc.ParseToAction(item, cfg.PropertyMappings, cfg.StatusMappings, cfg.PriorityMappings)
	if err != nil {
		r.fail(a.ID, rec.ExternalID, OpParse, err)
		return
	}

	changed, ok := e.applyExternal(ctx, r, rec, a, item, parsed)
	switch {
	case !ok:
	case changed:
		r.updated()
	default:
		if e.advance(ctx, r, rec, a.UpdatedAt, item.LastEditedTime()) {
			r.skipped()
		}
	}
}

// resolveConflict records the conflict and applies the configured policy.
// Under manual nothing is mutated.
func (e *Engine) resolveConflict(ctx context.Context, cfg *Config, r *run, rec *types.SyncRecord, a *types.Action, item integration.ExternalItem) {
	c := types.Conflict{
		LocalActionID:     a.ID,
		ExternalID:        rec.ExternalID,
		LocalUpdatedAt:    a.UpdatedAt,
		ExternalUpdatedAt: item.LastEditedTime(),
		Resolution:        resolution(cfg.ConflictResolution),
	}
	r.conflict(c)
	e.logger.Printf("Conflict on %s/%s (local %s, external %s): %s",
		a.ID, rec.ExternalID, c.LocalUpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		c.ExternalUpdatedAt.Format("2006-01-02T15:04:05Z07:00"), c.Resolution)

	switch cfg.ConflictResolution {
	case LocalWins:
		if e.pushUpdate(ctx, cfg, r, rec, a, item) {
			r.updated()
		}
	case RemoteWins:
		parsed, err := e.svc.ParseToAction(item, cfg.PropertyMappings, cfg.StatusMappings, cfg.PriorityMappings)
		if err != nil {
			r.fail(a.ID, rec.ExternalID, OpParse, err)
			return
		}
		changed, ok := e.applyExternal(ctx, r, rec, a, item, parsed)
		if !ok {
			return
		}
		if !changed && !e.advance(ctx, r, rec, a.UpdatedAt, item.LastEditedTime()) {
			return
		}
		r.updated()
	default:
		r.skipped()
	}
}
