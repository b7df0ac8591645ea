package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/steveyegge/actionsync/internal/config"
	"github.com/steveyegge/actionsync/internal/integration"
	"github.com/steveyegge/actionsync/internal/store"
	"github.com/steveyegge/actionsync/internal/syncengine"
	"github.com/steveyegge/actionsync/internal/types"
)

const notionPage = `{
	"object": "page",
	"id": "%s",
	"url": "https://www.notion.so/%s",
	"created_time": "2024-01-01T10:00:00.000Z",
	"last_edited_time": "2024-01-02T11:30:00.000Z",
	"archived": false,
	"properties": {
		"Name": {"id": "title", "type": "title", "title": [{"type": "text", "plain_text": "%s"}]},
		"Status": {"type": "status", "status": {"name": "Not started"}}
	}
}`

func testStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "exec.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

func quietFactory(st Store, opts ...FactoryOption) *Factory {
	discard := log.New(io.Discard, "", 0)
	opts = append([]FactoryOption{WithLogger(discard), WithAdapterLogger(discard)}, opts...)
	return NewFactory(st, opts...)
}

func notionWorkflow(baseURL string) *config.Workflow {
	return &config.Workflow{
		Provider:    integration.ProviderNotion,
		Credentials: config.Credentials{Token: "secret_test", BaseURL: baseURL},
		DatabaseID:  "db-1",
		UserID:      "user-1",
	}
}

// fakeNotion serves one existing page and accepts page creation.
func fakeNotion(t *testing.T, created *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret_test" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/databases/db-1/query":
			fmt.Fprintf(w, `{"results": [`+notionPage+`], "has_more": false}`, "page-1", "page-1", "Existing page")
		case r.Method == http.MethodPost && r.URL.Path == "/pages":
			n := atomic.AddInt32(created, 1)
			id := fmt.Sprintf("new-%d", n)
			fmt.Fprintf(w, notionPage, id, id, "Created")
		default:
			http.Error(w, `{"object":"error","message":"unexpected"}`, http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBuild_RunsAgainstRegisteredAdapter(t *testing.T) {
	var created int32
	srv := fakeNotion(t, &created)
	db := testStore(t)
	ctx := context.Background()

	exec, err := quietFactory(db, WithConcurrency(2)).Build(notionWorkflow(srv.URL))
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if exec.Service().Provider() != integration.ProviderNotion {
		t.Errorf("Service().Provider() = %q", exec.Service().Provider())
	}
	if exec.Config().ConflictResolution != syncengine.Manual {
		t.Errorf("ConflictResolution = %q, want manual default", exec.Config().ConflictResolution)
	}

	res, err := exec.Run(ctx, syncengine.ModePull)
	if err != nil {
		t.Fatalf("Run(pull) failed: %v", err)
	}
	if res.ItemsCreated != 1 || len(res.Errors) != 0 {
		t.Errorf("pull created=%d errors=%v, want 1 and none", res.ItemsCreated, res.Errors)
	}
	rec, err := db.GetRecordByExternalID(ctx, "notion", "page-1")
	if err != nil {
		t.Fatalf("GetRecordByExternalID() failed: %v", err)
	}
	a, err := db.GetAction(ctx, rec.ActionID)
	if err != nil {
		t.Fatalf("GetAction() failed: %v", err)
	}
	if a.Name != "Existing page" || a.Status != types.StatusActive {
		t.Errorf("imported action = %q/%s", a.Name, a.Status)
	}

	local := &types.Action{Name: "Local only", Priority: types.PriorityHigh, CreatedByID: "user-1"}
	if err := db.CreateAction(ctx, local); err != nil {
		t.Fatalf("CreateAction() failed: %v", err)
	}
	cfg := exec.Config()
	cfg.ActionIDs = []string{local.ID}
	res, err = exec.RunWith(ctx, syncengine.ModePush, cfg)
	if err != nil {
		t.Fatalf("RunWith(push) failed: %v", err)
	}
	if res.ItemsCreated != 1 || atomic.LoadInt32(&created) != 1 {
		t.Errorf("push created=%d server creates=%d, want 1/1", res.ItemsCreated, atomic.LoadInt32(&created))
	}
}

func TestBuild_Errors(t *testing.T) {
	db := testStore(t)
	f := quietFactory(db)

	if _, err := f.Build(nil); err == nil {
		t.Error("Build(nil) succeeded")
	}

	invalid := notionWorkflow("")
	invalid.UserID = ""
	if _, err := f.Build(invalid); err == nil || !strings.Contains(err.Error(), "userId") {
		t.Errorf("Build() with missing user = %v", err)
	}

	unknown := notionWorkflow("")
	unknown.Provider = "trello"
	if _, err := f.Build(unknown); !errors.Is(err, integration.ErrUnknownProvider) {
		t.Errorf("Build() unknown provider = %v, want ErrUnknownProvider", err)
	}

	noToken := notionWorkflow("")
	noToken.Credentials.Token = ""
	if _, err := f.Build(noToken); !errors.Is(err, integration.ErrUnauthorized) {
		t.Errorf("Build() without token = %v, want ErrUnauthorized", err)
	}
}

// stubService only answers Provider; Run must fail before any other call.
type stubService struct {
	integration.Service
	p integration.Provider
}

func (s stubService) Provider() integration.Provider { return s.p }

func TestWithServiceOverride(t *testing.T) {
	db := testStore(t)

	exec, err := quietFactory(db, WithServiceOverride(stubService{p: integration.ProviderNotion})).Build(notionWorkflow(""))
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if _, ok := exec.Service().(stubService); !ok {
		t.Errorf("Service() = %T, want the override", exec.Service())
	}

	cfg := exec.Config()
	cfg.DatabaseID = ""
	res, err := exec.RunWith(context.Background(), syncengine.ModeBidirectional, cfg)
	var be *syncengine.BatchError
	if !errors.As(err, &be) || be.Op != syncengine.OpConfig || res.Success {
		t.Errorf("RunWith() = %v, %v; want config batch error", res, err)
	}

	wf := notionWorkflow("")
	wf.Provider = integration.ProviderGoogleTasks
	if _, err := quietFactory(db, WithServiceOverride(stubService{p: integration.ProviderNotion})).Build(wf); err == nil {
		t.Error("Build() accepted an override for the wrong provider")
	}
}

func TestRun_UnknownMode(t *testing.T) {
	db := testStore(t)
	exec, err := quietFactory(db, WithServiceOverride(stubService{p: integration.ProviderNotion})).Build(notionWorkflow(""))
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if _, err := exec.Run(context.Background(), syncengine.Mode("mirror")); err == nil {
		t.Error("Run() accepted an unknown mode")
	}
}
