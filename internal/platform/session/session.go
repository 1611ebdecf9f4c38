// Package session holds the per-user workspace state and its storage
// backends.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/kim/varmap/internal/domain/granularity"
	"github.com/kim/varmap/internal/domain/mapping"
	"github.com/kim/varmap/internal/domain/project"
	"github.com/kim/varmap/internal/domain/tree"
	"github.com/kim/varmap/internal/domain/wizard"
	"github.com/kim/varmap/internal/platform/backend"
)

// Session is everything one user has done in the workflow so far. It is
// passed explicitly to every operation that reads or changes that state.
type Session struct {
	ID             string        `json:"id"`
	Token          string        `json:"token"`
	AuthSource     string        `json:"auth_source"`
	TokenExpiresAt *time.Time    `json:"token_expires_at,omitempty"`
	User           *backend.User `json:"user,omitempty"`

	Project      string               `json:"project"`
	ProjectMeta  *project.Meta        `json:"project_meta,omitempty"`
	SourceFilter mapping.SourceFilter `json:"source_filter"`

	Overlay   mapping.Overlay `json:"overlay"`
	Selection []string        `json:"selection"`
	Expanded  []string        `json:"expanded"`

	CustomGranularity bool              `json:"custom_granularity"`
	Granularity       []granularity.Row `json:"granularity"`

	LastExportAt *time.Time `json:"last_export_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// New starts a session for token.
func New(token, authSource string, now time.Time) *Session {
	return &Session{
		ID:         uuid.NewString(),
		Token:      token,
		AuthSource: authSource,
		Selection:  []string{},
		Expanded:   []string{},
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
}

// Scope is the read scope of mapping operations.
func (s *Session) Scope() mapping.Scope {
	return mapping.Scope{Token: s.Token, Project: s.Project, Filter: s.SourceFilter}
}

// SelectProject switches the active project and starts a new workflow:
// selection, expansion and granularity are cleared. Moving to a different
// project also drops the overlay, and the source filter falls back to Both
// unless the project stores one.
func (s *Session) SelectProject(meta project.Meta, filter mapping.SourceFilter) {
	switching := s.Project != meta.Name
	s.Project = meta.Name
	s.ProjectMeta = &meta
	switch {
	case filter != "":
		s.SourceFilter = filter
	case switching:
		s.SourceFilter = mapping.FilterBoth
	}
	if switching {
		s.Overlay = mapping.Overlay{Version: s.Overlay.Version + 1}
	}
	s.Selection = []string{}
	s.Expanded = []string{}
	s.Granularity = nil
	s.CustomGranularity = false
	s.LastExportAt = nil
}

// Reconcile drops selections of rows missing from the master view and
// keeps custom granularity rows in step with the selection.
func (s *Session) Reconcile(valid map[string]struct{}) {
	s.Selection = tree.FilterSelection(tree.NormalizeSelection(s.Selection), valid)
	if s.CustomGranularity {
		s.Granularity = granularity.Sync(s.Granularity, tree.SelectedKeys(s.Selection), valid)
	}
}

// ExportRows returns the granularity rows an export uses.
func (s *Session) ExportRows(valid map[string]struct{}) []granularity.Row {
	return granularity.Effective(s.CustomGranularity, s.Granularity, tree.SelectedKeys(s.Selection), valid)
}

// WizardState summarises the session for the stepper.
func (s *Session) WizardState() wizard.State {
	return wizard.State{
		Project:           s.Project,
		SourceFilter:      string(s.SourceFilter),
		Selected:          len(s.Selection),
		CustomGranularity: s.CustomGranularity,
		GranularityRows:   len(s.Granularity),
		Exported:          s.LastExportAt != nil,
	}
}

// Expired reports whether the bearer token is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return s.TokenExpiresAt != nil && !now.Before(*s.TokenExpiresAt)
}
