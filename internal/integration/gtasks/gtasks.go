// Package gtasks implements the integration.Service contract for Google
// Tasks. A "database" is a task list.
//
// Google Tasks addresses a task by (task list, task), so external ids
// produced by this adapter are composite: "<tasklist>:<task>".
package gtasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"

	"github.com/steveyegge/actionsync/internal/integration"
)

const (
	statusNeedsAction = "needsAction"
	statusCompleted   = "completed"

	pageSize = 100
)

func init() {
	integration.Register(integration.ProviderGoogleTasks, func(creds integration.Credentials) (integration.Service, error) {
		return New(context.Background(), creds)
	})
}

// Client wraps the generated Tasks API service.
type Client struct {
	srv    *tasks.Service
	logger *log.Logger
}

// New creates a Google Tasks client from an OAuth access token, or from a
// preconfigured HTTP client.
func New(ctx context.Context, creds integration.Credentials) (*Client, error) {
	httpClient := creds.HTTPClient
	if httpClient == nil {
		if creds.Token == "" {
			return nil, fmt.Errorf("gtasks: access token is required: %w", integration.ErrUnauthorized)
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.Token, TokenType: "Bearer"})
		httpClient = oauth2.NewClient(ctx, ts)
		httpClient.Timeout = 30 * time.Second
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if creds.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(creds.BaseURL))
	}

	srv, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Tasks client: %w", err)
	}
	return &Client{
		srv:    srv,
		logger: log.New(os.Stderr, "[gtasks] ", log.LstdFlags),
	}, nil
}

// SetLogger replaces the client logger.
func (c *Client) SetLogger(l *log.Logger) {
	if l != nil {
		c.logger = l
	}
}

// Provider returns integration.ProviderGoogleTasks.
func (c *Client) Provider() integration.Provider {
	return integration.ProviderGoogleTasks
}

// TestConnection lists one task list to verify the token.
func (c *Client) TestConnection(ctx context.Context) integration.ConnectionResult {
	if _, err := c.srv.Tasklists.List().MaxResults(1).Context(ctx).Do(); err != nil {
		return integration.ConnectionResult{Success: false, Error: mapError("list task lists", err).Error()}
	}
	return integration.ConnectionResult{Success: true}
}

// GetDatabases lists the user's task lists.
func (c *Client) GetDatabases(ctx context.Context) ([]integration.Database, error) {
	var dbs []integration.Database
	err := c.srv.Tasklists.List().MaxResults(pageSize).Pages(ctx, func(page *tasks.TaskLists) error {
		for _, tl := range page.Items {
			dbs = append(dbs, integration.Database{ID: tl.Id, Title: tl.Title, URL: tl.SelfLink})
		}
		return nil
	})
	if err != nil {
		return nil, mapError("list task lists", err)
	}
	return dbs, nil
}

// GetDatabaseSchema returns the fixed task schema of a list.
func (c *Client) GetDatabaseSchema(ctx context.Context, databaseID string) (*integration.DatabaseSchema, error) {
	tl, err := c.srv.Tasklists.Get(databaseID).Context(ctx).Do()
	if err != nil {
		return nil, mapError("get task list "+databaseID, err)
	}
	return &integration.DatabaseSchema{
		ID:    tl.Id,
		Title: tl.Title,
		Properties: []integration.Property{
			{Name: "due", Type: "date"},
			{Name: "notes", Type: "rich_text"},
			{Name: "status", Type: "status", Options: []string{statusNeedsAction, statusCompleted}},
			{Name: "title", Type: "title"},
		},
	}, nil
}

// GetItems lists every task in the list, including completed and hidden
// ones. Task lists have no project relation, so the filter is ignored.
func (c *Client) GetItems(ctx context.Context, databaseID string, _ *integration.ItemFilter) ([]integration.ExternalItem, error) {
	var items []integration.ExternalItem
	call := c.srv.Tasks.List(databaseID).ShowCompleted(true).ShowHidden(true).MaxResults(pageSize)
	err := call.Pages(ctx, func(page *tasks.Tasks) error {
		for _, t := range page.Items {
			if t.Deleted {
				continue
			}
			item, err := toItem(databaseID, t)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, &integration.FetchError{Provider: integration.ProviderGoogleTasks, Op: "list tasks in " + databaseID, Err: mapError("list tasks", err)}
	}
	return items, nil
}

// CreateItem inserts a task at the top of the list.
func (c *Client) CreateItem(ctx context.Context, databaseID string, data integration.ItemData, _ *integration.CreateOptions) (integration.ExternalItem, error) {
	fields, err := taskData(data)
	if err != nil {
		return integration.ExternalItem{}, err
	}

	created, err := c.srv.Tasks.Insert(databaseID, toTask(fields)).Context(ctx).Do()
	if err != nil {
		return integration.ExternalItem{}, mapError("insert task", err)
	}
	return toItem(databaseID, created)
}

// UpdateItem patches title, notes, status and due date. Empty values are
// sent explicitly so they clear the remote field.
func (c *Client) UpdateItem(ctx context.Context, externalID string, data integration.ItemData) (integration.ExternalItem, error) {
	list, id, err := SplitID(externalID)
	if err != nil {
		return integration.ExternalItem{}, err
	}
	fields, err := taskData(data)
	if err != nil {
		return integration.ExternalItem{}, err
	}

	patch := toTask(fields)
	patch.ForceSendFields = []string{"Title", "Notes", "Status"}
	if fields.Due == nil {
		patch.NullFields = append(patch.NullFields, "Due")
	}
	if fields.Status != statusCompleted {
		patch.NullFields = append(patch.NullFields, "Completed")
	}

	updated, err := c.srv.Tasks.Patch(list, id, patch).Context(ctx).Do()
	if err != nil {
		return integration.ExternalItem{}, mapError("patch task "+externalID, err)
	}
	return toItem(list, updated)
}

// ArchiveItem deletes the task. Google Tasks keeps deleted tasks out of
// listings, which is the closest it has to archiving.
func (c *Client) ArchiveItem(ctx context.Context, externalID string) error {
	list, id, err := SplitID(externalID)
	if err != nil {
		return err
	}
	if err := c.srv.Tasks.Delete(list, id).Context(ctx).Do(); err != nil {
		return mapError("delete task "+externalID, err)
	}
	return nil
}

// JoinID builds the composite external id of a task.
func JoinID(list, task string) string {
	return list + ":" + task
}

// SplitID splits a composite external id.
func SplitID(externalID string) (list, task string, err error) {
	list, task, ok := strings.Cut(externalID, ":")
	if !ok || list == "" || task == "" {
		return "", "", fmt.Errorf("gtasks: malformed external id %q: %w", externalID, integration.ErrInvalidItem)
	}
	return list, task, nil
}

func taskData(data integration.ItemData) (*integration.GoogleTaskData, error) {
	if data.Provider != integration.ProviderGoogleTasks || data.GoogleTask == nil {
		return nil, fmt.Errorf("gtasks: item data for provider %q: %w", data.Provider, integration.ErrInvalidItem)
	}
	return data.GoogleTask, nil
}

func toTask(d *integration.GoogleTaskData) *tasks.Task {
	t := &tasks.Task{
		Title:  d.Title,
		Notes:  d.Notes,
		Status: d.Status,
	}
	if d.Due != nil {
		t.Due = formatDue(*d.Due)
	}
	return t
}

func toItem(list string, t *tasks.Task) (integration.ExternalItem, error) {
	updated, err := time.Parse(time.RFC3339Nano, t.Updated)
	if err != nil {
		return integration.ExternalItem{}, fmt.Errorf("gtasks: task %s: bad updated time %q: %w", t.Id, t.Updated, integration.ErrInvalidItem)
	}
	completed := ""
	if t.Completed != nil {
		completed = *t.Completed
	}
	return integration.NewGoogleTaskItem(&integration.GoogleTask{
		ID:        JoinID(list, t.Id),
		Title:     t.Title,
		Notes:     t.Notes,
		Status:    t.Status,
		Due:       t.Due,
		Completed: completed,
		Updated:   updated.UTC(),
		Deleted:   t.Deleted,
		Hidden:    t.Hidden,
		WebLink:   t.SelfLink,
	}), nil
}

// mapError translates googleapi errors onto the integration sentinels.
func mapError(op string, err error) error {
	if errors.Is(err, integration.ErrInvalidItem) {
		return err
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("%s: %v: %w", op, err, integration.ErrUnavailable)
	}

	switch {
	case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
		return fmt.Errorf("%s: %w: %w", op, gerr, integration.ErrUnauthorized)
	case gerr.Code == http.StatusNotFound:
		return fmt.Errorf("%s: %w: %w", op, gerr, integration.ErrNotFound)
	case gerr.Code == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w: %w", op, gerr, integration.ErrRateLimited)
	case gerr.Code >= 500:
		return fmt.Errorf("%s: %w: %w", op, gerr, integration.ErrUnavailable)
	}
	return fmt.Errorf("%s: %w", op, gerr)
}
