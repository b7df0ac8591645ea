// Package integration defines the provider adapter contract used by the sync
// engine.
//
// An adapter is the only code that knows a provider's wire format and
// property names. The engine sees external items through ExternalItem.ID,
// ExternalItem.LastEditedTime and the Service methods below, and nothing else.
//
// # Implementations
//
//   - internal/integration/notion: Notion databases over the REST API
//   - internal/integration/gtasks: Google Tasks lists
//
// Adapters register a constructor from init() and are built by provider name:
//
//	svc, err := integration.New(integration.ProviderNotion, integration.Credentials{
//	    Token: os.Getenv("NOTION_TOKEN"),
//	})
package integration

import (
	"context"
	"net/http"
	"time"

	"github.com/steveyegge/actionsync/internal/types"
)

// Provider identifies an external task service.
type Provider string

const (
	// ProviderNotion is a Notion database.
	ProviderNotion Provider = "notion"

	// ProviderGoogleTasks is a Google Tasks task list.
	ProviderGoogleTasks Provider = "gtasks"
)

// String returns the string representation of the provider
func (p Provider) String() string {
	return string(p)
}

// Credentials carries what an adapter needs to reach its provider.
type Credentials struct {
	// Token is an integration secret or OAuth access token.
	Token string

	// BaseURL overrides the provider API endpoint (tests, proxies).
	BaseURL string

	// HTTPClient overrides the transport. When set, Token is not applied.
	HTTPClient *http.Client
}

// Service is the provider adapter contract.
type Service interface {
	// Provider returns the provider this adapter talks to.
	Provider() Provider

	// ===================
	// Discovery
	// ===================

	// TestConnection verifies the credentials. Failures, including auth
	// failures, are reported in the result rather than as an error.
	TestConnection(ctx context.Context) ConnectionResult

	// GetDatabases lists the containers (databases, task lists) the
	// credentials can see.
	GetDatabases(ctx context.Context) ([]Database, error)

	// GetDatabaseSchema describes one container's properties.
	GetDatabaseSchema(ctx context.Context, databaseID string) (*DatabaseSchema, error)

	// ===================
	// Item CRUD
	// ===================

	// GetItems returns every item in the container, following pagination
	// to the end. A failure on any page fails the whole call with a
	// *FetchError; items are never silently dropped.
	GetItems(ctx context.Context, databaseID string, filter *ItemFilter) ([]ExternalItem, error)

	// CreateItem creates an item. The adapter does not deduplicate.
	CreateItem(ctx context.Context, databaseID string, data ItemData, opts *CreateOptions) (ExternalItem, error)

	// UpdateItem overwrites the mapped fields of an existing item.
	UpdateItem(ctx context.Context, externalID string, data ItemData) (ExternalItem, error)

	// ArchiveItem removes an item from the active view (archive or delete,
	// depending on what the provider supports).
	ArchiveItem(ctx context.Context, externalID string) error

	// ===================
	// Mapping (pure)
	// ===================

	// ToCanonical converts a provider item into the provider-independent
	// representation using the provider's default status and priority tables.
	ToCanonical(item ExternalItem, props PropertyMappings) (CanonicalItem, error)

	// ParseToAction extracts the synchronized local fields from an item.
	// The same input always yields the same output.
	ParseToAction(item ExternalItem, props PropertyMappings, statuses StatusMappings, priorities PriorityMappings) (ParsedAction, error)

	// FormatFromAction is the inverse of ParseToAction. Explicit status and
	// priority tables win; provider defaults apply otherwise.
	FormatFromAction(a *types.Action, props PropertyMappings, statuses StatusMappings, priorities PriorityMappings) (ItemData, error)
}

// ConnectionResult is the outcome of TestConnection.
type ConnectionResult struct {
	Success bool   `json:"success"`
	User    string `json:"user,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Database is a container of items in the provider.
type Database struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// DatabaseSchema describes the properties of one container.
type DatabaseSchema struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Properties []Property `json:"properties"`
}

// Property is one column of a container schema.
type Property struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Options []string `json:"options,omitempty"`
}

// ItemFilter narrows GetItems to items related to one project.
type ItemFilter struct {
	// ProjectColumn is the provider property holding the project relation.
	ProjectColumn string
	// ProjectRef is the external id of the project.
	ProjectRef string
}

// CreateOptions carries provider-side placement for a new item.
type CreateOptions struct {
	ProjectColumn string
	ProjectRef    string
}

// CanonicalItem is the provider-independent view of an external item. It is
// rebuilt from the provider response every time and never mutated.
type CanonicalItem struct {
	ExternalID         string       `json:"external_id"`
	Title              string       `json:"title"`
	Description        string       `json:"description,omitempty"`
	Status             types.Status `json:"status"`
	Priority           int          `json:"priority"`
	DueDate            *time.Time   `json:"due_date,omitempty"`
	LastEditedTime     time.Time    `json:"last_edited_time"`
	CreatedTime        time.Time    `json:"created_time"`
	URL                string       `json:"url,omitempty"`
	Archived           bool         `json:"archived,omitempty"`
	ProjectExternalRef string       `json:"project_external_ref,omitempty"`
}

// ParsedAction holds the local fields an external item maps to.
type ParsedAction struct {
	Name        string
	Description string
	Status      types.Status
	Priority    int
	DueDate     *time.Time
	ProjectRef  string
}

// ApplyTo copies the parsed fields onto a local action.
func (p ParsedAction) ApplyTo(a *types.Action) {
	a.Name = p.Name
	a.Description = p.Description
	a.Status = p.Status
	a.Priority = p.Priority
	a.DueDate = p.DueDate
}

// DiffersFrom reports whether any synchronized field differs from the
// action: name, status, description, priority or due date.
func (p ParsedAction) DiffersFrom(a *types.Action) bool {
	if p.Name != a.Name || p.Status != a.Status || p.Description != a.Description || p.Priority != a.Priority {
		return true
	}
	switch {
	case p.DueDate == nil && a.DueDate == nil:
		return false
	case p.DueDate == nil || a.DueDate == nil:
		return true
	default:
		return !p.DueDate.Equal(*a.DueDate)
	}
}
