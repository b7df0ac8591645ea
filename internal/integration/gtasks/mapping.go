package gtasks

import (
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/actionsync/internal/integration"
	"github.com/steveyegge/actionsync/internal/types"
)

// DefaultStatusMappings is the fallback status table. Google Tasks only
// knows two states.
var DefaultStatusMappings = integration.StatusMappings{
	types.StatusActive:    statusNeedsAction,
	types.StatusCompleted: statusCompleted,
	types.StatusDeleted:   statusCompleted,
}

// ToCanonical converts a task. Tasks carry no priority, so it is always
// medium.
func (c *Client) ToCanonical(item integration.ExternalItem, props integration.PropertyMappings) (integration.CanonicalItem, error) {
	t, err := taskOf(item)
	if err != nil {
		return integration.CanonicalItem{}, err
	}
	parsed, err := parseTask(t, nil)
	if err != nil {
		return integration.CanonicalItem{}, err
	}
	return integration.CanonicalItem{
		ExternalID:     t.ID,
		Title:          parsed.Name,
		Description:    parsed.Description,
		Status:         parsed.Status,
		Priority:       parsed.Priority,
		DueDate:        parsed.DueDate,
		LastEditedTime: t.Updated,
		URL:            t.WebLink,
		Archived:       t.Deleted || t.Hidden,
	}, nil
}

// ParseToAction maps a task onto the local fields. Property and priority
// mappings do not apply to the fixed task schema.
func (c *Client) ParseToAction(item integration.ExternalItem, _ integration.PropertyMappings, statuses integration.StatusMappings, _ integration.PriorityMappings) (integration.ParsedAction, error) {
	t, err := taskOf(item)
	if err != nil {
		return integration.ParsedAction{}, err
	}
	return parseTask(t, statuses)
}

// FormatFromAction builds the writable task fields for an action.
func (c *Client) FormatFromAction(a *types.Action, _ integration.PropertyMappings, statuses integration.StatusMappings, _ integration.PriorityMappings) (integration.ItemData, error) {
	if a == nil {
		return integration.ItemData{}, fmt.Errorf("gtasks: nil action: %w", integration.ErrInvalidItem)
	}

	status, ok := statuses.Format(a.Status)
	if !ok || (status != statusNeedsAction && status != statusCompleted) {
		status, _ = DefaultStatusMappings.Format(a.Status)
	}

	data := &integration.GoogleTaskData{
		Title:  a.Name,
		Notes:  a.Description,
		Status: status,
	}
	if a.DueDate != nil {
		due := dueDate(*a.DueDate)
		data.Due = &due
	}
	return integration.ItemData{Provider: integration.ProviderGoogleTasks, GoogleTask: data}, nil
}

func taskOf(item integration.ExternalItem) (*integration.GoogleTask, error) {
	if item.Provider != integration.ProviderGoogleTasks || item.GoogleTask == nil {
		return nil, fmt.Errorf("gtasks: item of provider %q: %w", item.Provider, integration.ErrInvalidItem)
	}
	return item.GoogleTask, nil
}

func parseTask(t *integration.GoogleTask, statuses integration.StatusMappings) (integration.ParsedAction, error) {
	name := strings.TrimSpace(t.Title)
	if name == "" {
		return integration.ParsedAction{}, fmt.Errorf("gtasks: task %s has no title: %w", t.ID, integration.ErrInvalidItem)
	}

	status, ok := statuses.Parse(t.Status)
	if !ok {
		status = types.StatusActive
		if t.Status == statusCompleted {
			status = types.StatusCompleted
		}
	}

	parsed := integration.ParsedAction{
		Name:        name,
		Description: t.Notes,
		Status:      status,
		Priority:    types.PriorityMedium,
	}
	if t.Due != "" {
		due, err := time.Parse(time.RFC3339Nano, t.Due)
		if err != nil {
			return integration.ParsedAction{}, fmt.Errorf("gtasks: task %s: bad due date %q: %w", t.ID, t.Due, integration.ErrInvalidItem)
		}
		due = dueDate(due)
		parsed.DueDate = &due
	}
	return parsed, nil
}

// dueDate truncates to the calendar date; the API discards the time part.
func dueDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func formatDue(t time.Time) string {
	return dueDate(t).Format(time.RFC3339)
}
