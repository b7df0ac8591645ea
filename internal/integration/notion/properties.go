package notion

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/steveyegge/actionsync/internal/integration"
	"github.com/steveyegge/actionsync/internal/types"
)

// Property types understood by the mapper.
const (
	typeTitle    = "title"
	typeRichText = "rich_text"
	typeStatus   = "status"
	typeSelect   = "select"
	typeCheckbox = "checkbox"
	typeDate     = "date"
	typeRelation = "relation"
	typeURL      = "url"
)

const dateLayout = "2006-01-02"

// DefaultPropertyMappings is used for any property left unset in a workflow.
var DefaultPropertyMappings = integration.PropertyMappings{
	Title:       integration.PropertyRef{Name: "Name", Type: typeTitle},
	Description: integration.PropertyRef{Name: "Description", Type: typeRichText},
	Status:      integration.PropertyRef{Name: "Status", Type: typeStatus},
	Priority:    integration.PropertyRef{Name: "Priority", Type: typeSelect},
	DueDate:     integration.PropertyRef{Name: "Due Date", Type: typeDate},
}

// DefaultStatusMappings is the fallback status table.
var DefaultStatusMappings = integration.StatusMappings{
	types.StatusActive:    "Not started",
	types.StatusCompleted: "Done",
	types.StatusDeleted:   "Done",
}

// DefaultPriorityMappings is the fallback priority table. Five local levels
// collapse onto three Notion options, so P0 and P4 do not survive a round
// trip.
var DefaultPriorityMappings = integration.PriorityMappings{
	types.PriorityCritical: "High",
	types.PriorityHigh:     "High",
	types.PriorityMedium:   "Medium",
	types.PriorityLow:      "Low",
	types.PriorityBacklog:  "Low",
}

// ToCanonical converts a page using the default status and priority tables.
func (c *Client) ToCanonical(item integration.ExternalItem, props integration.PropertyMappings) (integration.CanonicalItem, error) {
	page, err := pageOf(item)
	if err != nil {
		return integration.CanonicalItem{}, err
	}
	parsed, err := parseProperties(page, props, nil, nil)
	if err != nil {
		return integration.CanonicalItem{}, err
	}

	return integration.CanonicalItem{
		ExternalID:         page.ID,
		Title:              parsed.Name,
		Description:        parsed.Description,
		Status:             parsed.Status,
		Priority:           parsed.Priority,
		DueDate:            parsed.DueDate,
		LastEditedTime:     page.LastEditedTime,
		CreatedTime:        page.CreatedTime,
		URL:                page.URL,
		Archived:           page.Archived,
		ProjectExternalRef: parsed.ProjectRef,
	}, nil
}

// ParseToAction reads the mapped properties of a page.
func (c *Client) ParseToAction(item integration.ExternalItem, props integration.PropertyMappings, statuses integration.StatusMappings, priorities integration.PriorityMappings) (integration.ParsedAction, error) {
	page, err := pageOf(item)
	if err != nil {
		return integration.ParsedAction{}, err
	}
	return parseProperties(page, props, statuses, priorities)
}

func pageOf(item integration.ExternalItem) (*integration.NotionPage, error) {
	if item.Provider != integration.ProviderNotion || item.Notion == nil {
		return nil, fmt.Errorf("notion: item of provider %q: %w", item.Provider, integration.ErrInvalidItem)
	}
	return item.Notion, nil
}

func parseProperties(page *integration.NotionPage, props integration.PropertyMappings, statuses integration.StatusMappings, priorities integration.PriorityMappings) (integration.ParsedAction, error) {
	props = props.WithDefaults(DefaultPropertyMappings)
	all := gjson.ParseBytes(page.Properties)

	name := strings.TrimSpace(textValue(lookup(all, props.Title.Name), props.Title.Type))
	if name == "" {
		return integration.ParsedAction{}, fmt.Errorf("notion: page %s has no title: %w", page.ID, integration.ErrInvalidItem)
	}

	parsed := integration.ParsedAction{
		Name:        name,
		Description: textValue(lookup(all, props.Description.Name), props.Description.Type),
		Status:      parseStatus(lookup(all, props.Status.Name), props.Status.Type, statuses),
		Priority:    parsePriority(textValue(lookup(all, props.Priority.Name), props.Priority.Type), priorities),
	}

	if due := lookup(all, props.DueDate.Name).Get("date.start").String(); due != "" {
		t, err := parseDate(due)
		if err != nil {
			return integration.ParsedAction{}, fmt.Errorf("notion: page %s: bad due date %q: %w", page.ID, due, integration.ErrInvalidItem)
		}
		parsed.DueDate = &t
	}

	if !props.Project.IsZero() {
		parsed.ProjectRef = lookup(all, props.Project.Name).Get("relation.0.id").String()
	}
	return parsed, nil
}

// lookup finds a property by exact name. Names may contain spaces and dots,
// so they are matched by iteration rather than as a gjson path.
func lookup(all gjson.Result, name string) gjson.Result {
	var found gjson.Result
	if name == "" {
		return found
	}
	all.ForEach(func(key, value gjson.Result) bool {
		if key.String() == name {
			found = value
			return false
		}
		return true
	})
	return found
}

// textValue renders a property as text according to its type. The type
// embedded in the property wins over the mapped type.
func textValue(p gjson.Result, mappedType string) string {
	if !p.Exists() {
		return ""
	}
	typ := p.Get("type").String()
	if typ == "" {
		typ = mappedType
	}

	switch typ {
	case typeTitle, typeRichText:
		return plainText(p.Get(typ))
	case typeStatus, typeSelect:
		return p.Get(typ + ".name").String()
	case "multi_select":
		return p.Get("multi_select.0.name").String()
	case typeURL:
		return p.Get("url").String()
	case "number":
		return p.Get("number").String()
	}

	// Unknown type: try the common shapes
	for _, path := range []string{"select.name", "status.name"} {
		if v := p.Get(path); v.Exists() {
			return v.String()
		}
	}
	return ""
}

func parseStatus(p gjson.Result, mappedType string, explicit integration.StatusMappings) types.Status {
	if p.Get("type").String() == typeCheckbox || (mappedType == typeCheckbox && p.Get(typeCheckbox).Exists()) {
		if p.Get(typeCheckbox).Bool() {
			return types.StatusCompleted
		}
		return types.StatusActive
	}

	value := textValue(p, mappedType)
	if s, ok := explicit.Parse(value); ok {
		return s
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "done", "complete", "completed", "closed", "archived":
		return types.StatusCompleted
	}
	return types.StatusActive
}

func parsePriority(value string, explicit integration.PriorityMappings) int {
	if p, ok := explicit.Parse(value); ok {
		return p
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "high", "urgent", "critical":
		return types.PriorityHigh
	case "low":
		return types.PriorityLow
	}
	return types.PriorityMedium
}

func parseDate(s string) (time.Time, error) {
	if len(s) == len(dateLayout) {
		return time.Parse(dateLayout, s)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FormatFromAction builds the page properties for an action.
func (c *Client) FormatFromAction(a *types.Action, props integration.PropertyMappings, statuses integration.StatusMappings, priorities integration.PriorityMappings) (integration.ItemData, error) {
	if a == nil {
		return integration.ItemData{}, fmt.Errorf("notion: nil action: %w", integration.ErrInvalidItem)
	}
	props = props.WithDefaults(DefaultPropertyMappings)
	out := make(map[string]any)

	out[props.Title.Name] = map[string]any{typeTitle: richText(a.Name)}

	if !props.Description.IsZero() {
		out[props.Description.Name] = map[string]any{typeRichText: richText(a.Description)}
	}

	if !props.Status.IsZero() {
		status, ok := statuses.Format(a.Status)
		if !ok {
			status, _ = DefaultStatusMappings.Format(a.Status)
		}
		switch props.Status.Type {
		case typeCheckbox:
			out[props.Status.Name] = map[string]any{typeCheckbox: a.Status != types.StatusActive}
		case typeSelect:
			out[props.Status.Name] = map[string]any{typeSelect: map[string]any{"name": status}}
		default:
			out[props.Status.Name] = map[string]any{typeStatus: map[string]any{"name": status}}
		}
	}

	if !props.Priority.IsZero() {
		priority, ok := priorities.Format(a.Priority)
		if !ok {
			priority, _ = DefaultPriorityMappings.Format(a.Priority)
		}
		typ := props.Priority.Type
		if typ != typeStatus {
			typ = typeSelect
		}
		out[props.Priority.Name] = map[string]any{typ: map[string]any{"name": priority}}
	}

	if !props.DueDate.IsZero() {
		if a.DueDate == nil {
			out[props.DueDate.Name] = map[string]any{typeDate: nil}
		} else {
			out[props.DueDate.Name] = map[string]any{typeDate: map[string]any{"start": formatDate(*a.DueDate)}}
		}
	}

	return integration.ItemData{Provider: integration.ProviderNotion, NotionProperties: out}, nil
}

// Notion request limits: one text object holds at most maxTextContent UTF-16
// code units, and a rich text array at most maxTextObjects objects.
const (
	maxTextContent = 2000
	maxTextObjects = 100
)

// richText splits s into text objects within Notion's limits. Text beyond
// maxTextObjects segments is dropped.
func richText(s string) []map[string]any {
	out := []map[string]any{}
	for s != "" && len(out) < maxTextObjects {
		end, units := len(s), 0
		for i, r := range s {
			w := 1
			if r > 0xFFFF {
				w = 2
			}
			if units+w > maxTextContent {
				end = i
				break
			}
			units += w
		}
		out = append(out, map[string]any{"type": "text", "text": map[string]any{"content": s[:end]}})
		s = s[end:]
	}
	return out
}

// formatDate writes midnight UTC as a date-only value.
func formatDate(t time.Time) string {
	t = t.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(dateLayout)
	}
	return t.Format(time.RFC3339)
}

func sortProperties(ps []integration.Property) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Name < ps[j].Name })
}
