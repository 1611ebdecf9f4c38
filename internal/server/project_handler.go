package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/kim/varmap/internal/domain/mapping"
	"github.com/kim/varmap/internal/domain/project"
	"github.com/kim/varmap/internal/platform/auth"
	"github.com/kim/varmap/internal/platform/backend"
	"github.com/kim/varmap/internal/platform/session"
)

type projectResponse struct {
	Project      project.Meta `json:"project"`
	SourceFilter string       `json:"source_filter,omitempty"`
}

func (h *Handler) ListProjects(c echo.Context) error {
	sess := auth.FromContext(c)
	items, err := h.projects.List(c.Request().Context(), sess.Token)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items, "total": len(items)})
}

// CreateProject registers a project and makes it the session's active
// project.
func (h *Handler) CreateProject(c echo.Context) error {
	var in project.CreateInput
	if err := bind(c, &in); err != nil {
		return err
	}
	sess := auth.FromContext(c)
	if in.OwnerEmail == "" && sess.User != nil {
		in.OwnerEmail = sess.User.Email
	}
	p, err := h.projects.Create(c.Request().Context(), sess.Token, in)
	if err != nil {
		return err
	}
	if err := h.activate(c, sess, p); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, projectResponse{Project: *sess.ProjectMeta, SourceFilter: string(sess.SourceFilter)})
}

func (h *Handler) GetProject(c echo.Context) error {
	sess := auth.FromContext(c)
	p, err := h.projects.Get(c.Request().Context(), sess.Token, c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, projectResponse{Project: project.MetaFrom(p), SourceFilter: project.SourceFilter(p)})
}

type selectProjectRequest struct {
	Name string `json:"name"`
}

// SelectProject switches the session to an existing project. Access is
// checked by fetching the project with the caller's token.
func (h *Handler) SelectProject(c echo.Context) error {
	var req selectProjectRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project name is required")
	}
	sess := auth.FromContext(c)
	p, err := h.projects.Get(c.Request().Context(), sess.Token, name)
	if err != nil {
		return err
	}
	if err := h.activate(c, sess, p); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, viewOf(sess))
}

func (h *Handler) activate(c echo.Context, sess *session.Session, p *backend.Project) error {
	var filter mapping.SourceFilter
	if stored := project.SourceFilter(p); stored != "" {
		f, err := mapping.ParseSourceFilter(stored)
		if err != nil {
			h.logger.Warn().Err(err).Str("project", p.Name).Msg("ignoring stored source filter")
		}
		filter = f
	}
	sess.SelectProject(project.MetaFrom(p), filter)
	h.logger.Info().Str("session_id", sess.ID).Str("project", p.Name).Msg("project selected")
	return h.save(c, sess)
}

type sourceFilterRequest struct {
	SourceFilter string `json:"source_filter"`
}

type sourceFilterResponse struct {
	SourceFilter string `json:"source_filter"`
	Selected     int    `json:"selected"`
	Dropped      int    `json:"dropped"`
	Warning      string `json:"warning,omitempty"`
}

// SetSourceFilter changes the EPIC/PDMS/Both filter. Selected rows hidden
// by the new filter are deselected.
func (h *Handler) SetSourceFilter(c echo.Context) error {
	var req sourceFilterRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	filter, err := mapping.ParseSourceFilter(req.SourceFilter)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	sess := auth.FromContext(c)
	if sess.Project == "" {
		return mapping.ErrNoProject
	}
	sess.SourceFilter = filter
	before := len(sess.Selection)
	view, err := h.reconcile(c, sess)
	if err != nil {
		return err
	}
	if err := h.save(c, sess); err != nil {
		return err
	}
	h.projects.SaveSourceFilter(c.Request().Context(), sess.Token, sess.Project, string(filter))
	return c.JSON(http.StatusOK, sourceFilterResponse{
		SourceFilter: string(filter),
		Selected:     len(sess.Selection),
		Dropped:      before - len(sess.Selection),
		Warning:      view.Warning,
	})
}
