package gtasks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/steveyegge/actionsync/internal/integration"
	"github.com/steveyegge/actionsync/internal/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(context.Background(), integration.Credentials{
		BaseURL:    server.URL + "/",
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	c.SetLogger(log.New(io.Discard, "", 0))
	return c
}

func TestRegisteredWithIntegration(t *testing.T) {
	if !integration.IsRegistered(integration.ProviderGoogleTasks) {
		t.Fatal("gtasks adapter is not registered")
	}
}

func TestGetItems_Pagination(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tasks/v1/lists/L1/tasks" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("showCompleted") != "true" || q.Get("showHidden") != "true" {
			t.Errorf("query = %s, want completed and hidden tasks", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		if q.Get("pageToken") == "" {
			w.Write([]byte(`{"items":[{"id":"t1","title":"First","status":"needsAction","updated":"2024-01-01T10:00:00.000Z"}],"nextPageToken":"n2"}`))
			return
		}
		w.Write([]byte(`{"items":[
			{"id":"t2","title":"Second","status":"completed","updated":"2024-01-02T10:00:00.000Z","due":"2024-02-01T00:00:00.000Z"},
			{"id":"t3","title":"Gone","status":"needsAction","deleted":true,"updated":"2024-01-02T10:00:00.000Z"}
		]}`))
	})

	items, err := c.GetItems(context.Background(), "L1", &integration.ItemFilter{ProjectColumn: "ignored", ProjectRef: "x"})
	if err != nil {
		t.Fatalf("GetItems() failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2 (deleted task skipped)", len(items))
	}
	if items[0].ID() != "L1:t1" || items[1].ID() != "L1:t2" {
		t.Errorf("ids = %q, %q", items[0].ID(), items[1].ID())
	}
	want := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	if !items[1].LastEditedTime().Equal(want) {
		t.Errorf("LastEditedTime() = %v, want %v", items[1].LastEditedTime(), want)
	}
}

func TestGetItems_FailureIsFetchError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"code":503,"message":"backend error"}}`))
	})

	_, err := c.GetItems(context.Background(), "L1", nil)
	var fe *integration.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *integration.FetchError", err)
	}
	if !integration.IsRetryable(err) {
		t.Errorf("503 should be retryable: %v", err)
	}
}

func TestTestConnection_Unauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":401,"message":"Invalid Credentials"}}`))
	})

	res := c.TestConnection(context.Background())
	if res.Success || res.Error == "" {
		t.Errorf("TestConnection() = %+v, want failure with message", res)
	}
}

func TestCreateAndUpdateItem(t *testing.T) {
	var patched map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/tasks/v1/lists/L1/tasks":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["title"] != "Write tests" || body["due"] != "2024-05-06T00:00:00Z" {
				t.Errorf("insert body = %v", body)
			}
			w.Write([]byte(`{"id":"new","title":"Write tests","status":"needsAction","due":"2024-05-06T00:00:00.000Z","updated":"2024-05-01T00:00:00.000Z"}`))
		case r.Method == http.MethodPatch && r.URL.Path == "/tasks/v1/lists/L1/tasks/new":
			json.NewDecoder(r.Body).Decode(&patched)
			w.Write([]byte(`{"id":"new","title":"Write tests","status":"needsAction","updated":"2024-05-02T00:00:00.000Z"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	due := time.Date(2024, 5, 6, 15, 30, 0, 0, time.UTC)
	a := &types.Action{Name: "Write tests", Status: types.StatusActive, DueDate: &due}
	data, err := c.FormatFromAction(a, integration.PropertyMappings{}, nil, nil)
	if err != nil {
		t.Fatalf("FormatFromAction() failed: %v", err)
	}

	item, err := c.CreateItem(context.Background(), "L1", data, nil)
	if err != nil {
		t.Fatalf("CreateItem() failed: %v", err)
	}
	if item.ID() != "L1:new" {
		t.Fatalf("ID() = %q, want L1:new", item.ID())
	}

	a.DueDate = nil
	data, _ = c.FormatFromAction(a, integration.PropertyMappings{}, nil, nil)
	if _, err := c.UpdateItem(context.Background(), item.ID(), data); err != nil {
		t.Fatalf("UpdateItem() failed: %v", err)
	}
	if v, ok := patched["due"]; !ok || v != nil {
		t.Errorf("patch should null the due date, got %v", patched)
	}
	if v, ok := patched["notes"]; !ok || v != "" {
		t.Errorf("patch should force-send empty notes, got %v", patched)
	}
}

func TestArchiveItem_DeletesTask(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/tasks/v1/lists/L1/tasks/t1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		called = true
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.ArchiveItem(context.Background(), "L1:t1"); err != nil {
		t.Fatalf("ArchiveItem() failed: %v", err)
	}
	if !called {
		t.Error("delete was not sent")
	}
	if err := c.ArchiveItem(context.Background(), "no-list"); !errors.Is(err, integration.ErrInvalidItem) {
		t.Errorf("err = %v, want ErrInvalidItem", err)
	}
}

func TestRoundTripMapping(t *testing.T) {
	c := &Client{}
	due := time.Date(2024, 8, 9, 0, 0, 0, 0, time.UTC)

	for _, a := range []types.Action{
		{Name: "Active", Status: types.StatusActive, Priority: types.PriorityMedium},
		{Name: "Done", Description: "notes", Status: types.StatusCompleted, Priority: types.PriorityMedium, DueDate: &due},
	} {
		data, err := c.FormatFromAction(&a, integration.PropertyMappings{}, nil, nil)
		if err != nil {
			t.Fatalf("FormatFromAction() failed: %v", err)
		}
		task := &integration.GoogleTask{
			ID:     "L:t",
			Title:  data.GoogleTask.Title,
			Notes:  data.GoogleTask.Notes,
			Status: data.GoogleTask.Status,
		}
		if data.GoogleTask.Due != nil {
			task.Due = formatDue(*data.GoogleTask.Due)
		}

		got, err := c.ParseToAction(integration.NewGoogleTaskItem(task), integration.PropertyMappings{}, nil, nil)
		if err != nil {
			t.Fatalf("ParseToAction() failed: %v", err)
		}
		want := integration.ParsedAction{
			Name:        a.Name,
			Description: a.Description,
			Status:      a.Status,
			Priority:    types.PriorityMedium,
			DueDate:     a.DueDate,
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestParseToAction_NoPriority(t *testing.T) {
	c := &Client{}
	item := integration.NewGoogleTaskItem(&integration.GoogleTask{ID: "L:t", Title: "x", Status: "needsAction"})

	got, err := c.ParseToAction(item, integration.PropertyMappings{}, nil, integration.PriorityMappings{1: "High"})
	if err != nil {
		t.Fatalf("ParseToAction() failed: %v", err)
	}
	if got.Priority != types.PriorityMedium {
		t.Errorf("Priority = %d, want medium", got.Priority)
	}
}

func TestSplitID(t *testing.T) {
	tests := []struct {
		in       string
		list, id string
		wantErr  bool
	}{
		{"L1:t1", "L1", "t1", false},
		{"L1:", "", "", true},
		{"plain", "", "", true},
	}
	for _, tt := range tests {
		list, id, err := SplitID(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("SplitID(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if list != tt.list || id != tt.id {
			t.Errorf("SplitID(%q) = %q, %q", tt.in, list, id)
		}
	}
}
