package notion

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/steveyegge/actionsync/internal/integration"
)

// TestConnection calls /users/me with the configured token.
func (c *Client) TestConnection(ctx context.Context) integration.ConnectionResult {
	body, err := c.do(ctx, http.MethodGet, "/users/me", nil, true)
	if err != nil {
		return integration.ConnectionResult{Success: false, Error: err.Error()}
	}

	user := gjson.GetBytes(body, "name").String()
	if user == "" {
		user = gjson.GetBytes(body, "bot.owner.user.name").String()
	}
	return integration.ConnectionResult{Success: true, User: user}
}

// GetDatabases lists the databases shared with the integration.
func (c *Client) GetDatabases(ctx context.Context) ([]integration.Database, error) {
	var dbs []integration.Database
	cursor := ""
	for {
		req := map[string]any{
			"filter":    map[string]any{"property": "object", "value": "database"},
			"page_size": pageSize,
		}
		if cursor != "" {
			req["start_cursor"] = cursor
		}

		body, err := c.do(ctx, http.MethodPost, "/search", req, true)
		if err != nil {
			return nil, fmt.Errorf("failed to search databases: %w", err)
		}

		gjson.GetBytes(body, "results").ForEach(func(_, r gjson.Result) bool {
			dbs = append(dbs, integration.Database{
				ID:    r.Get("id").String(),
				Title: plainText(r.Get("title")),
				URL:   r.Get("url").String(),
			})
			return true
		})

		if !gjson.GetBytes(body, "has_more").Bool() {
			return dbs, nil
		}
		cursor = gjson.GetBytes(body, "next_cursor").String()
	}
}

// GetDatabaseSchema describes a database's properties, sorted by name.
func (c *Client) GetDatabaseSchema(ctx context.Context, databaseID string) (*integration.DatabaseSchema, error) {
	body, err := c.do(ctx, http.MethodGet, "/databases/"+databaseID, nil, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get database %s: %w", databaseID, err)
	}

	schema := &integration.DatabaseSchema{
		ID:    gjson.GetBytes(body, "id").String(),
		Title: plainText(gjson.GetBytes(body, "title")),
	}
	gjson.GetBytes(body, "properties").ForEach(func(key, p gjson.Result) bool {
		prop := integration.Property{Name: key.String(), Type: p.Get("type").String()}
		p.Get(prop.Type + ".options").ForEach(func(_, o gjson.Result) bool {
			prop.Options = append(prop.Options, o.Get("name").String())
			return true
		})
		schema.Properties = append(schema.Properties, prop)
		return true
	})
	sortProperties(schema.Properties)
	return schema, nil
}

// GetItems queries every page of a database. A project filter becomes a
// relation "contains" filter on the project column.
func (c *Client) GetItems(ctx context.Context, databaseID string, filter *integration.ItemFilter) ([]integration.ExternalItem, error) {
	var items []integration.ExternalItem
	cursor := ""
	for {
		req := map[string]any{"page_size": pageSize}
		if filter != nil && filter.ProjectColumn != "" && filter.ProjectRef != "" {
			req["filter"] = map[string]any{
				"property": filter.ProjectColumn,
				"relation": map[string]any{"contains": filter.ProjectRef},
			}
		}
		if cursor != "" {
			req["start_cursor"] = cursor
		}

		body, err := c.do(ctx, http.MethodPost, "/databases/"+databaseID+"/query", req, true)
		if err != nil {
			return nil, &integration.FetchError{Provider: integration.ProviderNotion, Op: "query database " + databaseID, Err: err}
		}

		var parseErr error
		gjson.GetBytes(body, "results").ForEach(func(_, r gjson.Result) bool {
			page, err := parsePage(r)
			if err != nil {
				parseErr = err
				return false
			}
			items = append(items, integration.NewNotionItem(page))
			return true
		})
		if parseErr != nil {
			return nil, &integration.FetchError{Provider: integration.ProviderNotion, Op: "decode query results", Err: parseErr}
		}

		if !gjson.GetBytes(body, "has_more").Bool() {
			return items, nil
		}
		cursor = gjson.GetBytes(body, "next_cursor").String()
		if cursor == "" {
			return nil, &integration.FetchError{Provider: integration.ProviderNotion, Op: "query database " + databaseID, Err: fmt.Errorf("has_more without next_cursor")}
		}
	}
}

// CreateItem creates a page in the database. A project relation from opts is
// added to the properties.
func (c *Client) CreateItem(ctx context.Context, databaseID string, data integration.ItemData, opts *integration.CreateOptions) (integration.ExternalItem, error) {
	props, err := notionProperties(data)
	if err != nil {
		return integration.ExternalItem{}, err
	}
	if opts != nil && opts.ProjectColumn != "" && opts.ProjectRef != "" {
		withProject := make(map[string]any, len(props)+1)
		for k, v := range props {
			withProject[k] = v
		}
		withProject[opts.ProjectColumn] = map[string]any{
			"relation": []map[string]any{{"id": opts.ProjectRef}},
		}
		props = withProject
	}

	req := map[string]any{
		"parent":     map[string]any{"database_id": databaseID},
		"properties": props,
	}
	body, err := c.do(ctx, http.MethodPost, "/pages", req, false)
	if err != nil {
		return integration.ExternalItem{}, fmt.Errorf("failed to create page in %s: %w", databaseID, err)
	}
	return pageItem(body)
}

// UpdateItem patches the page properties.
func (c *Client) UpdateItem(ctx context.Context, externalID string, data integration.ItemData) (integration.ExternalItem, error) {
	props, err := notionProperties(data)
	if err != nil {
		return integration.ExternalItem{}, err
	}

	body, err := c.do(ctx, http.MethodPatch, "/pages/"+externalID, map[string]any{"properties": props}, false)
	if err != nil {
		return integration.ExternalItem{}, fmt.Errorf("failed to update page %s: %w", externalID, err)
	}
	return pageItem(body)
}

// ArchiveItem archives the page. Notion has no hard delete through the API.
func (c *Client) ArchiveItem(ctx context.Context, externalID string) error {
	if _, err := c.do(ctx, http.MethodPatch, "/pages/"+externalID, map[string]any{"archived": true}, false); err != nil {
		return fmt.Errorf("failed to archive page %s: %w", externalID, err)
	}
	return nil
}

func notionProperties(data integration.ItemData) (map[string]any, error) {
	if data.Provider != integration.ProviderNotion || data.NotionProperties == nil {
		return nil, fmt.Errorf("notion: item data for provider %q: %w", data.Provider, integration.ErrInvalidItem)
	}
	return data.NotionProperties, nil
}

func pageItem(body []byte) (integration.ExternalItem, error) {
	page, err := parsePage(gjson.ParseBytes(body))
	if err != nil {
		return integration.ExternalItem{}, err
	}
	return integration.NewNotionItem(page), nil
}

func parsePage(r gjson.Result) (*integration.NotionPage, error) {
	id := r.Get("id").String()
	if id == "" {
		return nil, fmt.Errorf("page without id: %w", integration.ErrInvalidItem)
	}

	created, err := parseTimestamp(r.Get("created_time").String())
	if err != nil {
		return nil, fmt.Errorf("page %s: bad created_time: %w", id, err)
	}
	edited, err := parseTimestamp(r.Get("last_edited_time").String())
	if err != nil {
		return nil, fmt.Errorf("page %s: bad last_edited_time: %w", id, err)
	}

	return &integration.NotionPage{
		ID:             id,
		URL:            r.Get("url").String(),
		CreatedTime:    created,
		LastEditedTime: edited,
		Archived:       r.Get("archived").Bool() || r.Get("in_trash").Bool(),
		Properties:     []byte(r.Get("properties").Raw),
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// plainText joins the plain_text of a rich text array, falling back to
// text.content for request-shaped payloads.
func plainText(arr gjson.Result) string {
	var sb strings.Builder
	arr.ForEach(func(_, seg gjson.Result) bool {
		if pt := seg.Get("plain_text"); pt.Exists() {
			sb.WriteString(pt.String())
		} else {
			sb.WriteString(seg.Get("text.content").String())
		}
		return true
	})
	return sb.String()
}
