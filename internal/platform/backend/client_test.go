package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 5*time.Second, zerolog.Nop())
}

func TestClient_RequiresToken(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := c.ListProjects(context.Background(), "  ")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if called {
		t.Error("expected no request without a token")
	}
}

func TestClient_SendsBearerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("expected bearer header, got %q", got)
		}
		if r.URL.Path != "/projects" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`[{"name":"icu-study","display_name":"ICU Study"}]`))
	})

	projects, err := c.ListProjects(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(projects) != 1 || projects[0].DisplayName != "ICU Study" {
		t.Errorf("unexpected projects: %+v", projects)
	}
}

func TestClient_ListMappings_DecodesNumericIDs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/projects/my study/mappings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`[
			{"id": 42, "name": "Creatinine", "unit": "umol/L",
			 "classification": {"path": ["Renal", "Labs"]},
			 "source": [{"system": "epic", "variable": "123"}]},
			{"id": "m-7", "name": "HR", "unit": "bpm", "classification": {"path": []}, "source": []}
		]`))
	})

	mappings, err := c.ListMappings(context.Background(), "tok", "my study")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mappings) != 2 {
		t.Fatalf("expected 2 mappings, got %d", len(mappings))
	}
	if mappings[0].ID != "42" || mappings[1].ID != "m-7" {
		t.Errorf("unexpected ids: %q %q", mappings[0].ID, mappings[1].ID)
	}
	if got := mappings[0].SourceVariable(SystemEPIC); got != "123" {
		t.Errorf("expected EPIC variable 123, got %q", got)
	}
}

func TestClient_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthenticated},
		{http.StatusForbidden, ErrUnauthenticated},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrRejected},
		{http.StatusBadGateway, ErrBackendUnavailable},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(`{"detail":"nope"}`))
		})
		_, err := c.GetProject(context.Background(), "tok", "p")
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.want, err)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != tt.status {
			t.Errorf("status %d: expected APIError, got %T", tt.status, err)
		}
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second, zerolog.Nop())
	_, err := c.ListMappings(context.Background(), "tok", "p")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestClient_MalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not": "a list"`))
	})
	_, err := c.ListMappings(context.Background(), "tok", "p")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestClient_CreateProject_Payload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["name"] != "sepsis" {
			t.Errorf("unexpected name: %v", body["name"])
		}
		if users, ok := body["allowed_users"].([]interface{}); !ok || len(users) != 0 {
			t.Errorf("expected empty allowed_users list, got %v", body["allowed_users"])
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"name":"sepsis"}`))
	})

	p, err := c.CreateProject(context.Background(), "tok", CreateProjectRequest{Name: "sepsis", DisplayName: "Sepsis"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.DisplayName != "Sepsis" {
		t.Errorf("expected display name to fall back to request, got %q", p.DisplayName)
	}
}

func TestClient_MappingWrites(t *testing.T) {
	var seen []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen = append(seen, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/batch") {
			var batch []Mapping
			if err := json.Unmarshal(body, &batch); err != nil || len(batch) != 1 {
				t.Errorf("unexpected batch body: %s", body)
			}
		}
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Write([]byte(`{"id":"9","name":"Lactate"}`))
	})

	ctx := context.Background()
	m := Mapping{Name: "Lactate", Source: []SourceRef{{System: SystemPDMS, Variable: "LAC"}}}
	if _, err := c.CreateMapping(ctx, "tok", "p", m); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.UpdateMapping(ctx, "tok", "p", "9", m); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := c.DeleteMapping(ctx, "tok", "p", "9"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := c.SaveAllMappings(ctx, "tok", "p", []Mapping{m}); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if err := c.UpdateProjectSettings(ctx, "tok", "p", map[string]interface{}{"source_filter": "EPIC"}); err != nil {
		t.Fatalf("settings: %v", err)
	}

	want := []string{
		"POST /projects/p/mappings",
		"PUT /projects/p/mappings/9",
		"DELETE /projects/p/mappings/9",
		"PUT /projects/p/mappings/batch",
		"PATCH /projects/p/config",
	}
	if strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Errorf("unexpected calls:\n got %v\nwant %v", seen, want)
	}
}

func TestClient_LoginURL(t *testing.T) {
	c := NewClient("https://backend.example/", 0, zerolog.Nop())
	got := c.LoginURL("https://varmap.example")
	want := "https://backend.example/auth/login?origin=https%3A%2F%2Fvarmap.example&return_mode=redirect"
	if got != want {
		t.Errorf("LoginURL() = %q, want %q", got, want)
	}
}
