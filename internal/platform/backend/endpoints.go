package backend

import (
	"context"
	"net/http"
	"net/url"
)

func projectPath(name string) string {
	return "/projects/" + url.PathEscape(name)
}

// ListProjects calls GET /projects.
func (c *Client) ListProjects(ctx context.Context, token string) ([]Project, error) {
	var out []Project
	if err := c.do(ctx, token, http.MethodGet, "/projects", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateProject calls POST /projects.
func (c *Client) CreateProject(ctx context.Context, token string, req CreateProjectRequest) (*Project, error) {
	if req.AllowedUsers == nil {
		req.AllowedUsers = []string{}
	}
	var out Project
	if err := c.do(ctx, token, http.MethodPost, "/projects", req, &out); err != nil {
		return nil, err
	}
	if out.Name == "" {
		out.Name = req.Name
	}
	if out.DisplayName == "" {
		out.DisplayName = req.DisplayName
	}
	return &out, nil
}

// GetProject calls GET /projects/{name}.
func (c *Client) GetProject(ctx context.Context, token, name string) (*Project, error) {
	var out Project
	if err := c.do(ctx, token, http.MethodGet, projectPath(name), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProjectSettings calls PATCH /projects/{name}/config.
func (c *Client) UpdateProjectSettings(ctx context.Context, token, name string, settings map[string]interface{}) error {
	payload := map[string]interface{}{"settings": settings}
	return c.do(ctx, token, http.MethodPatch, projectPath(name)+"/config", payload, nil)
}

// ListMappings calls GET /projects/{name}/mappings.
func (c *Client) ListMappings(ctx context.Context, token, project string) ([]Mapping, error) {
	var out []Mapping
	if err := c.do(ctx, token, http.MethodGet, projectPath(project)+"/mappings", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateMapping calls POST /projects/{name}/mappings.
func (c *Client) CreateMapping(ctx context.Context, token, project string, m Mapping) (*Mapping, error) {
	var out Mapping
	if err := c.do(ctx, token, http.MethodPost, projectPath(project)+"/mappings", m, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMapping calls PUT /projects/{name}/mappings/{id}.
func (c *Client) UpdateMapping(ctx context.Context, token, project, id string, m Mapping) (*Mapping, error) {
	var out Mapping
	path := projectPath(project) + "/mappings/" + url.PathEscape(id)
	if err := c.do(ctx, token, http.MethodPut, path, m, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMapping calls DELETE /projects/{name}/mappings/{id}.
func (c *Client) DeleteMapping(ctx context.Context, token, project, id string) error {
	path := projectPath(project) + "/mappings/" + url.PathEscape(id)
	return c.do(ctx, token, http.MethodDelete, path, nil, nil)
}

// SaveAllMappings calls PUT /projects/{name}/mappings/batch.
func (c *Client) SaveAllMappings(ctx context.Context, token, project string, mappings []Mapping) error {
	return c.do(ctx, token, http.MethodPut, projectPath(project)+"/mappings/batch", mappings, nil)
}

// Me calls GET /me.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var out User
	if err := c.do(ctx, token, http.MethodGet, "/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoginURL builds the redirect-based OAuth login URL the UI links to.
func (c *Client) LoginURL(frontendURL string) string {
	q := url.Values{}
	q.Set("origin", frontendURL)
	q.Set("return_mode", "redirect")
	return c.baseURL + "/auth/login?" + q.Encode()
}
