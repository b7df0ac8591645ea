package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/actionsync/internal/integration"
	"github.com/steveyegge/actionsync/internal/syncengine"
	"github.com/steveyegge/actionsync/internal/types"
)

// Workflow is one user's sync setup against one provider container, as
// stored in a YAML or TOML file.
type Workflow struct {
	Name        string               `yaml:"name" toml:"name"`
	Provider    integration.Provider `yaml:"provider" toml:"provider"`
	Credentials Credentials          `yaml:"credentials" toml:"credentials"`
	DatabaseID  string               `yaml:"databaseId" toml:"databaseId"`
	UserID      string               `yaml:"userId" toml:"userId"`
	Project     Project              `yaml:"project" toml:"project"`

	PropertyMappings integration.PropertyMappings `yaml:"propertyMappings" toml:"propertyMappings"`
	// StatusMappings is keyed by local status (ACTIVE, COMPLETED, DELETED).
	StatusMappings map[string]string `yaml:"statusMappings" toml:"statusMappings"`
	// PriorityMappings is keyed by local priority, "0".."4" or "P0".."P4".
	PriorityMappings map[string]string `yaml:"priorityMappings" toml:"priorityMappings"`

	ConflictResolution syncengine.ConflictPolicy   `yaml:"conflictResolution" toml:"conflictResolution"`
	DeletionBehavior   syncengine.DeletionBehavior `yaml:"deletionBehavior" toml:"deletionBehavior"`

	OverwriteMode    bool   `yaml:"overwriteMode" toml:"overwriteMode"`
	Source           string `yaml:"source" toml:"source"`
	IncludeCompleted bool   `yaml:"includeCompleted" toml:"includeCompleted"`
}

// Credentials may reference environment variables as ${NAME}.
type Credentials struct {
	Token   string `yaml:"token" toml:"token"`
	BaseURL string `yaml:"baseUrl" toml:"baseUrl"`
}

// Project scopes a workflow to one local project and its provider twin.
type Project struct {
	ID          string `yaml:"id" toml:"id"`
	Column      string `yaml:"column" toml:"column"`
	ExternalRef string `yaml:"externalRef" toml:"externalRef"`
}

// LoadWorkflow reads a workflow file. The format follows the extension:
// .toml for TOML, anything else for YAML.
func LoadWorkflow(path string) (*Workflow, error) {
	// #nosec G304 - controlled path from CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow: %w", err)
	}

	var wf Workflow
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &wf); err != nil {
			return nil, fmt.Errorf("failed to parse workflow %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &wf); err != nil {
			return nil, fmt.Errorf("failed to parse workflow %s: %w", path, err)
		}
	}

	wf.expandEnv()
	if err := wf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow %s: %w", path, err)
	}
	return &wf, nil
}

// expandEnv resolves ${NAME} references in credentials. An empty token
// falls back to <PROVIDER>_TOKEN, e.g. NOTION_TOKEN.
func (w *Workflow) expandEnv() {
	w.Credentials.Token = os.ExpandEnv(w.Credentials.Token)
	w.Credentials.BaseURL = os.ExpandEnv(w.Credentials.BaseURL)
	if w.Credentials.Token == "" && w.Provider != "" {
		w.Credentials.Token = os.Getenv(strings.ToUpper(w.Provider.String()) + "_TOKEN")
	}
}

// Validate checks required fields and known values, and fills defaults.
func (w *Workflow) Validate() error {
	if w.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if w.DatabaseID == "" {
		return fmt.Errorf("databaseId is required")
	}
	if w.UserID == "" {
		return fmt.Errorf("userId is required")
	}

	switch w.ConflictResolution {
	case "":
		w.ConflictResolution = syncengine.Manual
	case syncengine.LocalWins, syncengine.RemoteWins, syncengine.Manual:
	default:
		return fmt.Errorf("unknown conflictResolution %q", w.ConflictResolution)
	}

	switch w.DeletionBehavior {
	case "":
		w.DeletionBehavior = syncengine.DeletionIgnore
	case syncengine.DeletionIgnore, syncengine.DeletionMarkDeleted:
	default:
		return fmt.Errorf("unknown deletionBehavior %q", w.DeletionBehavior)
	}

	if w.Project.ExternalRef != "" && (w.Project.ID == "" || w.Project.Column == "") {
		return fmt.Errorf("project.externalRef requires project.id and project.column")
	}

	if _, err := w.Statuses(); err != nil {
		return err
	}
	if _, err := w.Priorities(); err != nil {
		return err
	}
	return nil
}

// Statuses converts StatusMappings to the typed table.
func (w *Workflow) Statuses() (integration.StatusMappings, error) {
	if len(w.StatusMappings) == 0 {
		return nil, nil
	}
	out := make(integration.StatusMappings, len(w.StatusMappings))
	for k, val := range w.StatusMappings {
		s := types.Status(strings.ToUpper(k))
		if !s.IsValid() {
			return nil, fmt.Errorf("statusMappings: unknown status %q", k)
		}
		out[s] = val
	}
	return out, nil
}

// Priorities converts PriorityMappings to the typed table.
func (w *Workflow) Priorities() (integration.PriorityMappings, error) {
	if len(w.PriorityMappings) == 0 {
		return nil, nil
	}
	out := make(integration.PriorityMappings, len(w.PriorityMappings))
	for k, val := range w.PriorityMappings {
		n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(k), "P"))
		if err != nil || n < types.PriorityCritical || n > types.PriorityBacklog {
			return nil, fmt.Errorf("priorityMappings: unknown priority %q", k)
		}
		out[n] = val
	}
	return out, nil
}

// SyncConfig converts the workflow into an engine run config.
func (w *Workflow) SyncConfig() (syncengine.Config, error) {
	statuses, err := w.Statuses()
	if err != nil {
		return syncengine.Config{}, err
	}
	priorities, err := w.Priorities()
	if err != nil {
		return syncengine.Config{}, err
	}
	return syncengine.Config{
		Provider:           w.Provider,
		DatabaseID:         w.DatabaseID,
		ProjectColumn:      w.Project.Column,
		ProjectID:          w.Project.ID,
		ProjectExternalRef: w.Project.ExternalRef,
		UserID:             w.UserID,
		PropertyMappings:   w.PropertyMappings,
		StatusMappings:     statuses,
		PriorityMappings:   priorities,
		ConflictResolution: w.ConflictResolution,
		DeletionBehavior:   w.DeletionBehavior,
		OverwriteMode:      w.OverwriteMode,
		Source:             w.Source,
		IncludeCompleted:   w.IncludeCompleted,
	}, nil
}

// IntegrationCredentials returns the adapter credentials.
func (w *Workflow) IntegrationCredentials() integration.Credentials {
	return integration.Credentials{Token: w.Credentials.Token, BaseURL: w.Credentials.BaseURL}
}
