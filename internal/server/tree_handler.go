package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/kim/varmap/internal/domain/tree"
	"github.com/kim/varmap/internal/platform/auth"
)

type treeResponse struct {
	Nodes     []*tree.OrganSystemNode `json:"nodes"`
	Selection []string                `json:"selection"`
	Expanded  []string                `json:"expanded"`
	Leaves    int                     `json:"leaves"`
	Degraded  bool                    `json:"degraded"`
	Warning   string                  `json:"warning,omitempty"`
}

// GetTree returns the Organ System > Group > Variable hierarchy of the
// master view. annotate=true appends the source system to leaf labels;
// expand=all reports every branch as expanded.
func (h *Handler) GetTree(c echo.Context) error {
	sess := auth.FromContext(c)
	view, err := h.master(c, sess)
	if err != nil {
		return err
	}
	annotate, _ := strconv.ParseBool(c.QueryParam("annotate"))
	t, err := tree.Build(view.Rows, tree.Options{AnnotateSource: annotate})
	if err != nil {
		h.logger.Error().Err(err).Str("project", sess.Project).Msg("building variable tree failed")
		return err
	}

	expanded := sess.Expanded
	if c.QueryParam("expand") == "all" {
		expanded = tree.ExpandAll(t)
	}
	return c.JSON(http.StatusOK, treeResponse{
		Nodes:     t.Nodes,
		Selection: tree.FilterSelection(sess.Selection, t.RowKeys()),
		Expanded:  expanded,
		Leaves:    len(t.Lookup),
		Degraded:  view.Degraded,
		Warning:   view.Warning,
	})
}

type selectionRequest struct {
	Selection []string `json:"selection"`
	Expanded  []string `json:"expanded"`
}

type selectionResponse struct {
	Selection []string `json:"selection"`
	Dropped   int      `json:"dropped"`
}

// SetSelection replaces the selection with the checked leaves sent by the
// tree widget. Tokens that do not resolve to a row are dropped.
func (h *Handler) SetSelection(c echo.Context) error {
	var req selectionRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sess := auth.FromContext(c)
	view, err := h.master(c, sess)
	if err != nil {
		return err
	}
	normalized := tree.NormalizeSelection(req.Selection)
	sess.Selection = normalized
	if req.Expanded != nil {
		sess.Expanded = req.Expanded
	}
	sess.Reconcile(view.Keys())
	if err := h.save(c, sess); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, selectionResponse{
		Selection: sess.Selection,
		Dropped:   len(normalized) - len(sess.Selection),
	})
}
