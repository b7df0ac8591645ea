package syncengine

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/steveyegge/actionsync/internal/integration"
	"github.com/steveyegge/actionsync/internal/types"
)

func TestPush_CreatesThenSkipsLinked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.createAction(t, "Book flights", "")
	h.createAction(t, "Renew passport", "")

	res := mustRun(t, "Push", func() (*Result, error) { return h.eng.Push(ctx, h.config()) })
	if diff := cmp.Diff(counts{Processed: 2, Created: 2}, countsOf(res)); diff != "" {
		t.Errorf("first Push() counts mismatch (-want +got):\n%s", diff)
	}

	rec, err := h.db.GetRecordByActionID(ctx, integration.ProviderGoogleTasks.String(), a.ID)
	if err != nil {
		t.Fatalf("GetRecordByActionID() failed: %v", err)
	}
	task, ok := h.svc.get(rec.ExternalID)
	if !ok || task.Title != "Book flights" {
		t.Errorf("external task = %+v, %v", task, ok)
	}
	if rec.UpdatedAt.Before(task.Updated) || rec.UpdatedAt.Before(a.UpdatedAt) {
		t.Errorf("record UpdatedAt %v older than a side (%v, %v)", rec.UpdatedAt, task.Updated, a.UpdatedAt)
	}

	res = mustRun(t, "Push", func() (*Result, error) { return h.eng.Push(ctx, h.config()) })
	if diff := cmp.Diff(counts{Processed: 2, Skipped: 2}, countsOf(res)); diff != "" {
		t.Errorf("second Push() counts mismatch (-want +got):\n%s", diff)
	}
	if h.svc.creates != 2 {
		t.Errorf("CreateItem calls = %d, want 2", h.svc.creates)
	}
}

func TestPush_Selection(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, h *harness, cfg *Config)
		want  []string
	}{
		{
			name: "completed excluded by default",
			setup: func(t *testing.T, h *harness, cfg *Config) {
				h.createAction(t, "open", "")
				done := h.createAction(t, "done", "")
				h.editAction(t, done.ID, func(a *types.Action) { a.Status = types.StatusCompleted })
			},
			want: []string{"open"},
		},
		{
			name: "completed included on request",
			setup: func(t *testing.T, h *harness, cfg *Config) {
				h.createAction(t, "open", "")
				done := h.createAction(t, "done", "")
				h.editAction(t, done.ID, func(a *types.Action) { a.Status = types.StatusCompleted })
				cfg.IncludeCompleted = true
			},
			want: []string{"done", "open"},
		},
		{
			name: "project scope",
			setup: func(t *testing.T, h *harness, cfg *Config) {
				h.createAction(t, "mine", "p1")
				h.createAction(t, "theirs", "p2")
				cfg.ProjectID = "p1"
			},
			want: []string{"mine"},
		},
		{
			name: "explicit ids",
			setup: func(t *testing.T, h *harness, cfg *Config) {
				pick := h.createAction(t, "picked", "p2")
				h.createAction(t, "ignored", "p1")
				cfg.ProjectID = "p1"
				cfg.ActionIDs = []string{pick.ID}
			},
			want: []string{"picked"},
		},
		{
			name: "internal source only",
			setup: func(t *testing.T, h *harness, cfg *Config) {
				h.createAction(t, "typed here", "")
				imported := h.createAction(t, "imported", "")
				h.editAction(t, imported.ID, func(a *types.Action) { a.Source = "notion" })
				cfg.Source = SourceInternal
			},
			want: []string{"typed here"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			cfg := h.config()
			tt.setup(t, h, &cfg)

			mustRun(t, "Push", func() (*Result, error) { return h.eng.Push(context.Background(), cfg) })

			items, err := h.svc.GetItems(context.Background(), testDatabase, nil)
			if err != nil {
				t.Fatalf("GetItems() failed: %v", err)
			}
			var got []string
			for _, item := range items {
				got = append(got, item.GoogleTask.Title)
			}
			if diff := cmp.Diff(tt.want, sortedStrings(got)); diff != "" {
				t.Errorf("pushed titles mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPush_OverwriteUpdatesAndArchivesUnreferenced(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	stray := h.svc.add("made elsewhere", "needsAction")
	a := h.createAction(t, "v1", "")
	mustRun(t, "Push", func() (*Result, error) { return h.eng.Push(ctx, h.config()) })

	h.editAction(t, a.ID, func(a *types.Action) { a.Name = "v2" })

	cfg := h.config()
	cfg.OverwriteMode = true
	res := mustRun(t, "Push", func() (*Result, error) { return h.eng.Push(ctx, cfg) })
	if diff := cmp.Diff(counts{Processed: 2, Updated: 1, Deleted: 1}, countsOf(res)); diff != "" {
		t.Errorf("Push() counts mismatch (-want +got):\n%s", diff)
	}

	if _, ok := h.svc.get(stray); ok {
		t.Error("unreferenced item was not archived")
	}
	rec, err := h.db.GetRecordByActionID(ctx, integration.ProviderGoogleTasks.String(), a.ID)
	if err != nil {
		t.Fatalf("GetRecordByActionID() failed: %v", err)
	}
	if task, _ := h.svc.get(rec.ExternalID); task.Title != "v2" {
		t.Errorf("external title = %q, want v2", task.Title)
	}
}

func TestPush_OverwriteFetchFailureAbortsBatch(t *testing.T) {
	h := newHarness(t)
	h.createAction(t, "never pushed", "")
	h.svc.getItemsErr = integration.ErrRateLimited

	cfg := h.config()
	cfg.OverwriteMode = true
	res, err := h.eng.Push(context.Background(), cfg)
	var be *BatchError
	if !errors.As(err, &be) || be.Op != OpFetchExternal {
		t.Fatalf("Push() error = %v, want BatchError at %s", err, OpFetchExternal)
	}
	if res.Success || h.svc.creates != 0 {
		t.Errorf("Success = %v, creates = %d after abort", res.Success, h.svc.creates)
	}
}

func TestPush_ItemErrorsAreIsolated(t *testing.T) {
	h := newHarness(t)

	h.createAction(t, "fine", "")
	bad := h.createAction(t, "rejected", "")
	h.svc.createErr["rejected"] = integration.ErrUnavailable

	res := mustRun(t, "Push", func() (*Result, error) { return h.eng.Push(context.Background(), h.config()) })
	if res.ItemsCreated != 1 {
		t.Errorf("ItemsCreated = %d, want 1", res.ItemsCreated)
	}
	if len(res.Errors) != 1 || res.Errors[0].ActionID != bad.ID || res.Errors[0].Operation != OpCreateExternal {
		t.Errorf("Errors = %v, want one create failure for %s", res.Errors, bad.ID)
	}

	// The failed action is retried on the next run.
	delete(h.svc.createErr, "rejected")
	res = mustRun(t, "Push", func() (*Result, error) { return h.eng.Push(context.Background(), h.config()) })
	if res.ItemsCreated != 1 || res.ItemsSkipped != 1 {
		t.Errorf("retry created=%d skipped=%d, want 1/1", res.ItemsCreated, res.ItemsSkipped)
	}
}

func TestPush_NeverResurrectsDeletedRemotely(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.createAction(t, "removed upstream", "")
	mustRun(t, "Push", func() (*Result, error) { return h.eng.Push(ctx, h.config()) })
	rec, err := h.db.GetRecordByActionID(ctx, integration.ProviderGoogleTasks.String(), a.ID)
	if err != nil {
		t.Fatalf("GetRecordByActionID() failed: %v", err)
	}
	rec.Status = types.RecordDeletedRemotely
	if err := h.db.UpdateRecord(ctx, rec); err != nil {
		t.Fatalf("UpdateRecord() failed: %v", err)
	}

	cfg := h.config()
	cfg.OverwriteMode = true
	res := mustRun(t, "Push", func() (*Result, error) { return h.eng.Push(ctx, cfg) })
	if res.ItemsSkipped != 1 || h.svc.updates != 0 || h.svc.creates != 1 {
		t.Errorf("skipped=%d updates=%d creates=%d, want 1/0/1", res.ItemsSkipped, h.svc.updates, h.svc.creates)
	}
}
