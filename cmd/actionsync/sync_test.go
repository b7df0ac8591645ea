package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/steveyegge/actionsync/internal/config"
	"github.com/steveyegge/actionsync/internal/integration"
	"github.com/steveyegge/actionsync/internal/logging"
	"github.com/steveyegge/actionsync/internal/store"
	"github.com/steveyegge/actionsync/internal/syncengine"
	"github.com/steveyegge/actionsync/internal/ui"
)

func TestSyncOnce_FailedRunIsRecordedAndStoreClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"object":"error","status":401,"code":"unauthorized","message":"API token is invalid."}`)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "actionsync.db")
	wfPath := filepath.Join(dir, "workflow.yaml")
	workflow := fmt.Sprintf("provider: notion\ncredentials:\n  token: secret_test\n  baseUrl: %s\ndatabaseId: db-1\nuserId: user-1\n", srv.URL)
	if err := os.WriteFile(wfPath, []byte(workflow), 0600); err != nil {
		t.Fatal(err)
	}

	config.Set(config.KeyDB, dbPath)
	config.Set(config.KeyWorkflow, wfPath)
	t.Cleanup(func() {
		config.Set(config.KeyDB, "")
		config.Set(config.KeyWorkflow, "")
	})
	logs = logging.NewWriter(io.Discard, logging.LevelInfo)
	ui.DisableColor()
	pullCmd.SetContext(context.Background())

	err := syncOnce(pullCmd, syncengine.ModePull)
	if !integration.IsAuthError(err) {
		t.Fatalf("syncOnce() error = %v, want an auth error", err)
	}

	// A checkpointed, closed store leaves no WAL content behind.
	if fi, err := os.Stat(dbPath + "-wal"); err == nil && fi.Size() > 0 {
		t.Errorf("WAL holds %d bytes after syncOnce returned", fi.Size())
	}

	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()
	runs, err := db.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("recorded %d runs, want 1", len(runs))
	}
	if runs[0].Success || runs[0].ErrorCount != 1 || runs[0].Mode != string(syncengine.ModePull) {
		t.Errorf("run = %+v, want a failed pull with one error", runs[0])
	}
}
