package integration

import (
	"strings"

	"github.com/steveyegge/actionsync/internal/types"
)

// PropertyRef names a provider property and its type.
type PropertyRef struct {
	Name string `json:"name" yaml:"name" toml:"name"`
	Type string `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`
}

// IsZero reports whether the reference is unset.
func (r PropertyRef) IsZero() bool {
	return r.Name == ""
}

// PropertyMappings maps the synchronized local fields to provider properties.
type PropertyMappings struct {
	Title       PropertyRef `json:"title" yaml:"title" toml:"title"`
	Description PropertyRef `json:"description" yaml:"description" toml:"description"`
	Status      PropertyRef `json:"status" yaml:"status" toml:"status"`
	Priority    PropertyRef `json:"priority" yaml:"priority" toml:"priority"`
	DueDate     PropertyRef `json:"dueDate" yaml:"dueDate" toml:"dueDate"`
	Project     PropertyRef `json:"project" yaml:"project" toml:"project"`
}

// WithDefaults fills every unset reference from defaults.
func (m PropertyMappings) WithDefaults(defaults PropertyMappings) PropertyMappings {
	fill := func(r *PropertyRef, d PropertyRef) {
		if r.Name == "" {
			*r = d
			return
		}
		if r.Type == "" && strings.EqualFold(r.Name, d.Name) {
			r.Type = d.Type
		}
	}
	fill(&m.Title, defaults.Title)
	fill(&m.Description, defaults.Description)
	fill(&m.Status, defaults.Status)
	fill(&m.Priority, defaults.Priority)
	fill(&m.DueDate, defaults.DueDate)
	fill(&m.Project, defaults.Project)
	return m
}

// StatusMappings maps local statuses to provider status values.
type StatusMappings map[types.Status]string

// statusOrder is the reverse lookup precedence when several local statuses
// share one provider value.
var statusOrder = []types.Status{types.StatusActive, types.StatusCompleted, types.StatusDeleted}

// Format returns the provider value for s.
func (m StatusMappings) Format(s types.Status) (string, bool) {
	v, ok := m[s]
	return v, ok && v != ""
}

// Parse returns the local status mapped to value (case-insensitive).
func (m StatusMappings) Parse(value string) (types.Status, bool) {
	if value == "" {
		return "", false
	}
	for _, s := range statusOrder {
		if v, ok := m[s]; ok && strings.EqualFold(v, value) {
			return s, true
		}
	}
	return "", false
}

// PriorityMappings maps local priorities (0..4) to provider values.
type PriorityMappings map[int]string

// Format returns the provider value for p.
func (m PriorityMappings) Format(p int) (string, bool) {
	v, ok := m[p]
	return v, ok && v != ""
}

// Parse returns the local priority mapped to value (case-insensitive). When
// several priorities share a value the most urgent wins.
func (m PriorityMappings) Parse(value string) (int, bool) {
	if value == "" {
		return 0, false
	}
	for p := types.PriorityCritical; p <= types.PriorityBacklog; p++ {
		if v, ok := m[p]; ok && strings.EqualFold(v, value) {
			return p, true
		}
	}
	return 0, false
}
