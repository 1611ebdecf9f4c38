package project

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kim/varmap/internal/platform/backend"
)

type mockBackend struct {
	projects map[string]backend.Project
	created  []backend.CreateProjectRequest
	settings map[string]map[string]interface{}
	err      error
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		projects: map[string]backend.Project{},
		settings: map[string]map[string]interface{}{},
	}
}

func (m *mockBackend) ListProjects(_ context.Context, _ string) ([]backend.Project, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []backend.Project
	for _, p := range m.projects {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockBackend) CreateProject(_ context.Context, _ string, req backend.CreateProjectRequest) (*backend.Project, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.created = append(m.created, req)
	p := backend.Project{Name: req.Name, DisplayName: req.DisplayName, OwnerEmail: req.OwnerEmail, AllowedUsers: req.AllowedUsers}
	m.projects[p.Name] = p
	return &p, nil
}

func (m *mockBackend) GetProject(_ context.Context, _, name string) (*backend.Project, error) {
	p, ok := m.projects[name]
	if !ok {
		return nil, &backend.APIError{Method: "GET", Path: "/projects/" + name, Status: 404}
	}
	return &p, nil
}

func (m *mockBackend) UpdateProjectSettings(_ context.Context, _, name string, settings map[string]interface{}) error {
	if m.err != nil {
		return m.err
	}
	m.settings[name] = settings
	return nil
}

func TestParseEmails(t *testing.T) {
	got := ParseEmails(" a@insel.ch, ,b@insel.ch,")
	if !reflect.DeepEqual(got, []string{"a@insel.ch", "b@insel.ch"}) {
		t.Errorf("ParseEmails = %v", got)
	}
	if got := ParseEmails(""); got == nil || len(got) != 0 {
		t.Errorf("ParseEmails(\"\") = %#v, want empty non-nil", got)
	}
}

func TestService_Create(t *testing.T) {
	mb := newMockBackend()
	svc := NewService(mb, false, zerolog.Nop())

	p, err := svc.Create(context.Background(), "tok", CreateInput{
		Name:          " ICU Study ",
		OwnerEmail:    "owner@insel.ch",
		Collaborators: "a@insel.ch, b@insel.ch",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Name != "ICU Study" || p.DisplayName != "ICU Study" {
		t.Errorf("project = %+v", p)
	}
	req := mb.created[0]
	if req.OwnerEmail != "owner@insel.ch" || len(req.AllowedUsers) != 2 {
		t.Errorf("request = %+v", req)
	}
	meta := MetaFrom(p)
	if !reflect.DeepEqual(meta.Collaborators, []string{"a@insel.ch", "b@insel.ch"}) {
		t.Errorf("meta = %+v", meta)
	}
}

func TestService_CreateValidation(t *testing.T) {
	svc := NewService(newMockBackend(), false, zerolog.Nop())
	cases := []CreateInput{
		{Name: "  "},
		{Name: "x", OwnerEmail: "not an email"},
		{Name: "x", Collaborators: "a@insel.ch, nope"},
	}
	for _, in := range cases {
		if _, err := svc.Create(context.Background(), "tok", in); !errors.Is(err, ErrInvalid) {
			t.Errorf("Create(%+v) err = %v, want ErrInvalid", in, err)
		}
	}
}

func TestService_GetNotFound(t *testing.T) {
	svc := NewService(newMockBackend(), false, zerolog.Nop())
	_, err := svc.Get(context.Background(), "tok", "missing")
	if !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("err = %v, want backend.ErrNotFound", err)
	}
}

func TestService_SaveSourceFilter(t *testing.T) {
	mb := newMockBackend()

	NewService(mb, false, zerolog.Nop()).SaveSourceFilter(context.Background(), "tok", "icu", "EPIC")
	if len(mb.settings) != 0 {
		t.Errorf("persisted while disabled: %v", mb.settings)
	}

	NewService(mb, true, zerolog.Nop()).SaveSourceFilter(context.Background(), "tok", "icu", "EPIC")
	if mb.settings["icu"][SettingSourceFilter] != "EPIC" {
		t.Errorf("settings = %v", mb.settings)
	}

	mb.err = backend.ErrBackendUnavailable
	NewService(mb, true, zerolog.Nop()).SaveSourceFilter(context.Background(), "tok", "icu", "PDMS")
	if mb.settings["icu"][SettingSourceFilter] != "EPIC" {
		t.Error("failed write changed settings")
	}
}

func TestSourceFilter(t *testing.T) {
	p := &backend.Project{Settings: map[string]interface{}{SettingSourceFilter: "PDMS"}}
	if got := SourceFilter(p); got != "PDMS" {
		t.Errorf("SourceFilter = %q", got)
	}
	if got := SourceFilter(&backend.Project{}); got != "" {
		t.Errorf("SourceFilter = %q", got)
	}
}
