package project

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kim/varmap/internal/platform/backend"
)

// ErrInvalid is matched by input validation failures.
var ErrInvalid = errors.New("invalid project")

// SettingSourceFilter is the project setting that stores the visible
// source systems.
const SettingSourceFilter = "source_filter"

// Backend is the project surface of the REST backend.
type Backend interface {
	ListProjects(ctx context.Context, token string) ([]backend.Project, error)
	CreateProject(ctx context.Context, token string, req backend.CreateProjectRequest) (*backend.Project, error)
	GetProject(ctx context.Context, token, name string) (*backend.Project, error)
	UpdateProjectSettings(ctx context.Context, token, name string, settings map[string]interface{}) error
}

// Meta is the project information kept in a session.
type Meta struct {
	Name          string   `json:"name"`
	DisplayName   string   `json:"display_name"`
	OwnerEmail    string   `json:"owner_email,omitempty"`
	Collaborators []string `json:"collaborators"`
}

// MetaFrom converts a backend project record.
func MetaFrom(p *backend.Project) Meta {
	m := Meta{
		Name:          p.Name,
		DisplayName:   p.DisplayName,
		OwnerEmail:    p.OwnerEmail,
		Collaborators: append([]string{}, p.AllowedUsers...),
	}
	if m.DisplayName == "" {
		m.DisplayName = m.Name
	}
	return m
}

// SourceFilter returns the persisted source filter setting, if any.
func SourceFilter(p *backend.Project) string {
	if p == nil || p.Settings == nil {
		return ""
	}
	s, _ := p.Settings[SettingSourceFilter].(string)
	return s
}

// CreateInput is the overview form.
type CreateInput struct {
	Name          string `json:"name"`
	OwnerEmail    string `json:"owner_email"`
	Collaborators string `json:"collaborators"`
}

// ParseEmails splits a comma-separated list, dropping empty entries.
func ParseEmails(raw string) []string {
	out := []string{}
	for _, e := range strings.Split(raw, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

func (in CreateInput) validate() ([]string, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("project name is required: %w", ErrInvalid)
	}
	if in.OwnerEmail != "" {
		if _, err := mail.ParseAddress(strings.TrimSpace(in.OwnerEmail)); err != nil {
			return nil, fmt.Errorf("owner email %q: %w", in.OwnerEmail, ErrInvalid)
		}
	}
	emails := ParseEmails(in.Collaborators)
	for _, e := range emails {
		if _, err := mail.ParseAddress(e); err != nil {
			return nil, fmt.Errorf("collaborator %q: %w", e, ErrInvalid)
		}
	}
	return emails, nil
}

type Service struct {
	backend       Backend
	persistFilter bool
	logger        zerolog.Logger
}

func NewService(b Backend, persistFilter bool, logger zerolog.Logger) *Service {
	return &Service{backend: b, persistFilter: persistFilter, logger: logger}
}

func (s *Service) List(ctx context.Context, token string) ([]Meta, error) {
	ps, err := s.backend.ListProjects(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	out := make([]Meta, len(ps))
	for i := range ps {
		out[i] = MetaFrom(&ps[i])
	}
	return out, nil
}

// Create registers a project with the backend. The display name is the
// name as typed.
func (s *Service) Create(ctx context.Context, token string, in CreateInput) (*backend.Project, error) {
	emails, err := in.validate()
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	p, err := s.backend.CreateProject(ctx, token, backend.CreateProjectRequest{
		Name:         name,
		DisplayName:  name,
		OwnerEmail:   strings.TrimSpace(in.OwnerEmail),
		AllowedUsers: emails,
	})
	if err != nil {
		return nil, fmt.Errorf("create project %q: %w", name, err)
	}
	s.logger.Info().Str("project", p.Name).Int("collaborators", len(emails)).Msg("project created")
	return p, nil
}

func (s *Service) Get(ctx context.Context, token, name string) (*backend.Project, error) {
	p, err := s.backend.GetProject(ctx, token, name)
	if err != nil {
		return nil, fmt.Errorf("get project %q: %w", name, err)
	}
	return p, nil
}

// SaveSourceFilter persists the filter as a project setting when enabled.
// Failures are logged and not returned: the session keeps the filter.
func (s *Service) SaveSourceFilter(ctx context.Context, token, name, filter string) {
	if !s.persistFilter || name == "" {
		return
	}
	err := s.backend.UpdateProjectSettings(ctx, token, name, map[string]interface{}{SettingSourceFilter: filter})
	if err != nil {
		s.logger.Warn().Err(err).Str("project", name).Msg("persisting source filter failed")
	}
}
