package integration

import (
	"encoding/json"
	"time"
)

// ExternalItem is a provider-native item. Exactly one variant is set,
// matching Provider.
type ExternalItem struct {
	Provider   Provider
	Notion     *NotionPage
	GoogleTask *GoogleTask
}

// NotionPage is a page in a Notion database.
type NotionPage struct {
	ID             string
	URL            string
	CreatedTime    time.Time
	LastEditedTime time.Time
	Archived       bool
	// Properties is the raw "properties" object of the page.
	Properties json.RawMessage
}

// GoogleTask is a task in a Google Tasks list.
type GoogleTask struct {
	ID        string
	Title     string
	Notes     string
	Status    string
	Due       string
	Completed string
	Updated   time.Time
	Deleted   bool
	Hidden    bool
	WebLink   string
}

// NewNotionItem wraps a Notion page.
func NewNotionItem(p *NotionPage) ExternalItem {
	return ExternalItem{Provider: ProviderNotion, Notion: p}
}

// NewGoogleTaskItem wraps a Google task.
func NewGoogleTaskItem(t *GoogleTask) ExternalItem {
	return ExternalItem{Provider: ProviderGoogleTasks, GoogleTask: t}
}

// ID returns the provider-assigned id, or "" for an empty item.
func (i ExternalItem) ID() string {
	switch {
	case i.Provider == ProviderNotion && i.Notion != nil:
		return i.Notion.ID
	case i.Provider == ProviderGoogleTasks && i.GoogleTask != nil:
		return i.GoogleTask.ID
	}
	return ""
}

// LastEditedTime returns when the provider last saw the item change.
func (i ExternalItem) LastEditedTime() time.Time {
	switch {
	case i.Provider == ProviderNotion && i.Notion != nil:
		return i.Notion.LastEditedTime
	case i.Provider == ProviderGoogleTasks && i.GoogleTask != nil:
		return i.GoogleTask.Updated
	}
	return time.Time{}
}

// ItemData is the provider-native payload for a create or update. Exactly
// one variant is set, matching Provider.
type ItemData struct {
	Provider Provider
	// NotionProperties is the "properties" object of a page request.
	NotionProperties map[string]any
	GoogleTask       *GoogleTaskData
}

// GoogleTaskData is the writable subset of a Google task.
type GoogleTaskData struct {
	Title  string
	Notes  string
	Status string
	Due    *time.Time
}
