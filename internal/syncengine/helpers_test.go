package syncengine

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/steveyegge/actionsync/internal/integration"
	"github.com/steveyegge/actionsync/internal/store"
	"github.com/steveyegge/actionsync/internal/types"
)

const (
	testDatabase = "list-1"
	testUser     = "user-1"
)

// testClock is shared by the store, the engine and the fake provider so
// every timestamp in a test is strictly ordered.
type testClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newTestClock() *testClock {
	return &testClock{cur: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

// fakeService is an in-memory task list speaking the Google Tasks variant.
type fakeService struct {
	mu    sync.Mutex
	now   func() time.Time
	tasks map[string]*integration.GoogleTask
	seq   int

	getItemsErr error
	createErr   map[string]error // by title
	updateErr   map[string]error // by external id

	creates  int
	updates  int
	archives int
}

func newFakeService(now func() time.Time) *fakeService {
	return &fakeService{
		now:       now,
		tasks:     make(map[string]*integration.GoogleTask),
		createErr: make(map[string]error),
		updateErr: make(map[string]error),
	}
}

// add places a task directly in the list, as if created in the provider UI.
func (f *fakeService) add(title, status string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("task-%03d", f.seq)
	f.tasks[id] = &integration.GoogleTask{ID: id, Title: title, Status: status, Updated: f.now()}
	return id
}

// edit changes a task as if edited in the provider UI.
func (f *fakeService) edit(id string, fn func(*integration.GoogleTask)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tasks[id]
	fn(t)
	t.Updated = f.now()
}

func (f *fakeService) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, id)
}

func (f *fakeService) get(id string) (integration.GoogleTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return integration.GoogleTask{}, false
	}
	return *t, true
}

func (f *fakeService) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

func (f *fakeService) Provider() integration.Provider {
	return integration.ProviderGoogleTasks
}

func (f *fakeService) TestConnection(ctx context.Context) integration.ConnectionResult {
	return integration.ConnectionResult{Success: true, User: testUser}
}

func (f *fakeService) GetDatabases(ctx context.Context) ([]integration.Database, error) {
	return []integration.Database{{ID: testDatabase, Title: "Inbox"}}, nil
}

func (f *fakeService) GetDatabaseSchema(ctx context.Context, databaseID string) (*integration.DatabaseSchema, error) {
	return &integration.DatabaseSchema{ID: databaseID}, nil
}

func (f *fakeService) GetItems(ctx context.Context, databaseID string, filter *integration.ItemFilter) ([]integration.ExternalItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getItemsErr != nil {
		return nil, &integration.FetchError{Provider: f.Provider(), Op: "list tasks", Err: f.getItemsErr}
	}

	ids := make([]string, 0, len(f.tasks))
	for id := range f.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]integration.ExternalItem, 0, len(ids))
	for _, id := range ids {
		t := *f.tasks[id]
		items = append(items, integration.NewGoogleTaskItem(&t))
	}
	return items, nil
}

func (f *fakeService) CreateItem(ctx context.Context, databaseID string, data integration.ItemData, opts *integration.CreateOptions) (integration.ExternalItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErr[data.GoogleTask.Title]; err != nil {
		return integration.ExternalItem{}, err
	}
	f.seq++
	f.creates++
	t := taskFromData(fmt.Sprintf("task-%03d", f.seq), data.GoogleTask)
	t.Updated = f.now()
	f.tasks[t.ID] = t
	cp := *t
	return integration.NewGoogleTaskItem(&cp), nil
}

func (f *fakeService) UpdateItem(ctx context.Context, externalID string, data integration.ItemData) (integration.ExternalItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[externalID]; err != nil {
		return integration.ExternalItem{}, err
	}
	if _, ok := f.tasks[externalID]; !ok {
		return integration.ExternalItem{}, fmt.Errorf("task %s: %w", externalID, integration.ErrNotFound)
	}
	f.updates++
	t := taskFromData(externalID, data.GoogleTask)
	t.Updated = f.now()
	f.tasks[externalID] = t
	cp := *t
	return integration.NewGoogleTaskItem(&cp), nil
}

func (f *fakeService) ArchiveItem(ctx context.Context, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archives++
	delete(f.tasks, externalID)
	return nil
}

func (f *fakeService) ToCanonical(item integration.ExternalItem, props integration.PropertyMappings) (integration.CanonicalItem, error) {
	p, err := f.ParseToAction(item, props, nil, nil)
	if err != nil {
		return integration.CanonicalItem{}, err
	}
	return integration.CanonicalItem{
		ExternalID:     item.ID(),
		Title:          p.Name,
		Description:    p.Description,
		Status:         p.Status,
		Priority:       p.Priority,
		DueDate:        p.DueDate,
		LastEditedTime: item.LastEditedTime(),
	}, nil
}

func (f *fakeService) ParseToAction(item integration.ExternalItem, props integration.PropertyMappings, statuses integration.StatusMappings, priorities integration.PriorityMappings) (integration.ParsedAction, error) {
	t := item.GoogleTask
	if t == nil {
		return integration.ParsedAction{}, fmt.Errorf("not a task: %w", integration.ErrInvalidItem)
	}
	if t.Title == "" {
		return integration.ParsedAction{}, fmt.Errorf("task %s has no title: %w", t.ID, integration.ErrInvalidItem)
	}
	status := types.StatusActive
	if t.Status == "completed" {
		status = types.StatusCompleted
	}
	return integration.ParsedAction{
		Name:        t.Title,
		Description: t.Notes,
		Status:      status,
		Priority:    types.PriorityMedium,
	}, nil
}

func (f *fakeService) FormatFromAction(a *types.Action, props integration.PropertyMappings, statuses integration.StatusMappings, priorities integration.PriorityMappings) (integration.ItemData, error) {
	status := "needsAction"
	if a.Status == types.StatusCompleted {
		status = "completed"
	}
	return integration.ItemData{
		Provider: integration.ProviderGoogleTasks,
		GoogleTask: &integration.GoogleTaskData{
			Title:  a.Name,
			Notes:  a.Description,
			Status: status,
			Due:    a.DueDate,
		},
	}, nil
}

func taskFromData(id string, d *integration.GoogleTaskData) *integration.GoogleTask {
	return &integration.GoogleTask{ID: id, Title: d.Title, Notes: d.Notes, Status: d.Status}
}

// harness wires a real store and a fake provider to one engine.
type harness struct {
	clock *testClock
	db    *store.DB
	svc   *fakeService
	eng   *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := newTestClock()

	db, err := store.Open(filepath.Join(t.TempDir(), "sync.db"), store.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	svc := newFakeService(clock.Now)
	h := &harness{clock: clock, db: db, svc: svc}
	h.eng = h.engine()
	return h
}

// engine builds another engine over the same store and provider.
func (h *harness) engine() *Engine {
	return New(h.db, h.db, h.svc,
		WithLogger(log.New(io.Discard, "", 0)),
		WithClock(h.clock.Now),
	)
}

// otherList adds a second task list of the same provider over the same
// store. Its task ids start after firstSeq so they never collide with the
// first list's.
func (h *harness) otherList(databaseID string, firstSeq int) (*fakeService, *Engine, Config) {
	svc := newFakeService(h.clock.Now)
	svc.seq = firstSeq
	eng := New(h.db, h.db, svc,
		WithLogger(log.New(io.Discard, "", 0)),
		WithClock(h.clock.Now),
	)
	cfg := h.config()
	cfg.DatabaseID = databaseID
	return svc, eng, cfg
}

func (h *harness) config() Config {
	return Config{DatabaseID: testDatabase, UserID: testUser}
}

func (h *harness) createAction(t *testing.T, name, project string) *types.Action {
	t.Helper()
	a := &types.Action{
		Name:        name,
		Priority:    types.PriorityMedium,
		ProjectID:   project,
		CreatedByID: testUser,
	}
	if err := h.db.CreateAction(context.Background(), a); err != nil {
		t.Fatalf("CreateAction() failed: %v", err)
	}
	return a
}

// editAction changes an action as a local user would.
func (h *harness) editAction(t *testing.T, id string, fn func(*types.Action)) *types.Action {
	t.Helper()
	a := h.action(t, id)
	fn(a)
	if err := h.db.UpdateAction(context.Background(), a); err != nil {
		t.Fatalf("UpdateAction() failed: %v", err)
	}
	return a
}

func (h *harness) action(t *testing.T, id string) *types.Action {
	t.Helper()
	a, err := h.db.GetAction(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAction(%s) failed: %v", id, err)
	}
	return a
}

func (h *harness) recordFor(t *testing.T, externalID string) *types.SyncRecord {
	t.Helper()
	rec, err := h.db.GetRecordByExternalID(context.Background(), integration.ProviderGoogleTasks.String(), externalID)
	if err != nil {
		t.Fatalf("GetRecordByExternalID(%s) failed: %v", externalID, err)
	}
	return rec
}

func (h *harness) actionCount(t *testing.T) int {
	t.Helper()
	n, err := h.db.CountActions(context.Background())
	if err != nil {
		t.Fatalf("CountActions() failed: %v", err)
	}
	return n
}

func (h *harness) recordCount(t *testing.T) int {
	t.Helper()
	recs, err := h.db.ListRecords(context.Background(), store.RecordFilter{})
	if err != nil {
		t.Fatalf("ListRecords() failed: %v", err)
	}
	return len(recs)
}

// counts is the subset of a Result most tests assert on.
type counts struct {
	Processed, Created, Updated, Skipped, Deleted, Conflicts, Errors int
}

func countsOf(r *Result) counts {
	return counts{
		Processed: r.ItemsProcessed,
		Created:   r.ItemsCreated,
		Updated:   r.ItemsUpdated,
		Skipped:   r.ItemsSkipped,
		Deleted:   r.ItemsDeleted,
		Conflicts: len(r.Conflicts),
		Errors:    len(r.Errors),
	}
}

func sortedStrings(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

func mustRun(t *testing.T, name string, fn func() (*Result, error)) *Result {
	t.Helper()
	res, err := fn()
	if err != nil {
		t.Fatalf("%s() failed: %v", name, err)
	}
	if !res.Success {
		t.Fatalf("%s() Success = false, errors: %v", name, res.Errors)
	}
	return res
}
