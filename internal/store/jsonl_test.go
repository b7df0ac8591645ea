package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/steveyegge/actionsync/internal/types"
)

func TestExportImportJSONL(t *testing.T) {
	src := testDB(t)
	ctx := context.Background()

	a := createTestAction(t, src, "exported", "p1")
	b := createTestAction(t, src, "also exported", "")
	rec := types.NewSyncRecord(a.ID, "notion", "db-1", "ext-1", syncedAt)
	if err := src.CreateRecord(ctx, rec); err != nil {
		t.Fatalf("CreateRecord() failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "out", "export.jsonl")
	res, err := src.ExportJSONL(ctx, path)
	if err != nil {
		t.Fatalf("ExportJSONL() failed: %v", err)
	}
	if res.Actions != 2 || res.Records != 1 {
		t.Errorf("export = %+v, want 2 actions and 1 record", res)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file was left behind")
	}

	dst := testDB(t)
	res, err = dst.ImportJSONL(ctx, path)
	if err != nil {
		t.Fatalf("ImportJSONL() failed: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("import errors: %v", res.Errors)
	}
	if res.Actions != 2 || res.Records != 1 {
		t.Errorf("import = %+v, want 2 actions and 1 record", res)
	}

	for _, want := range []*types.Action{a, b} {
		got, err := dst.GetAction(ctx, want.ID)
		if err != nil {
			t.Fatalf("GetAction(%s) failed: %v", want.ID, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("action mismatch (-want +got):\n%s", diff)
		}
	}

	gotRec, err := dst.GetRecordByExternalID(ctx, "notion", "ext-1")
	if err != nil {
		t.Fatalf("GetRecordByExternalID() failed: %v", err)
	}
	if diff := cmp.Diff(rec, gotRec); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	// Re-importing upserts actions and skips existing links.
	res, err = dst.ImportJSONL(ctx, path)
	if err != nil {
		t.Fatalf("second ImportJSONL() failed: %v", err)
	}
	if res.Actions != 2 || res.Skipped != 1 {
		t.Errorf("re-import = %+v, want 2 actions and 1 skipped", res)
	}
}

func TestImportJSONL_CollectsBadEntries(t *testing.T) {
	db := testDB(t)
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	content := `{"kind":"action","action":{"id":"x","name":"","created_by_id":"u","created_at":"2024-01-01T00:00:00Z","updated_at":"2024-01-01T00:00:00Z"}}
{"kind":"widget"}
{"kind":"action","action":{"id":"y","name":"ok","created_by_id":"u","created_at":"2024-01-01T00:00:00Z","updated_at":"2024-01-01T00:00:00Z"}}
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	res, err := db.ImportJSONL(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportJSONL() failed: %v", err)
	}
	if res.Actions != 1 {
		t.Errorf("Actions = %d, want 1", res.Actions)
	}
	if len(res.Errors) != 2 {
		t.Errorf("Errors = %v, want 2 entries", res.Errors)
	}
}
