package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/kim/varmap/internal/domain/mapping"
	"github.com/kim/varmap/internal/domain/tree"
	"github.com/kim/varmap/internal/platform/auth"
	"github.com/kim/varmap/pkg/pagination"
)

type masterResponse struct {
	*pagination.Response
	BaseRows     int    `json:"base_rows"`
	UserRows     int    `json:"user_rows"`
	SourceFilter string `json:"source_filter"`
	Degraded     bool   `json:"degraded"`
	Warning      string `json:"warning,omitempty"`
}

// GetMaster lists the master view a page at a time. The optional origin
// query parameter restricts the listing to base or user rows.
func (h *Handler) GetMaster(c echo.Context) error {
	sess := auth.FromContext(c)
	view, err := h.master(c, sess)
	if err != nil {
		return err
	}
	rows := view.Rows
	if origin := strings.TrimSpace(c.QueryParam("origin")); origin != "" {
		rows = filterOrigin(rows, mapping.Origin(origin))
	}
	pg := pagination.FromContext(c)
	return c.JSON(http.StatusOK, masterResponse{
		Response:     pagination.Paginate(rows, pg, c.Request().URL),
		BaseRows:     view.BaseRows,
		UserRows:     view.UserRows,
		SourceFilter: view.Filter,
		Degraded:     view.Degraded,
		Warning:      view.Warning,
	})
}

func filterOrigin(rows []mapping.Row, origin mapping.Origin) []mapping.Row {
	out := make([]mapping.Row, 0, len(rows))
	for _, r := range rows {
		if strings.EqualFold(string(r.Origin), string(origin)) {
			out = append(out, r)
		}
	}
	return out
}

type uploadResponse struct {
	File     string               `json:"file"`
	Result   mapping.UpsertResult `json:"result"`
	Selected int                  `json:"selected"`
	Warning  string               `json:"warning,omitempty"`
}

// Upload merges a CSV, XLSX or YAML file into the session overlay. With
// auto_select the newly added rows are selected as well.
func (h *Handler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return err
		}
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" is required")
	}
	if fh.Size > h.opts.UploadLimit {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.opts.UploadLimit))
	}
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.opts.UploadLimit+1))
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > h.opts.UploadLimit {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.opts.UploadLimit))
	}

	sess := auth.FromContext(c)
	out, err := h.mappings.Upload(c.Request().Context(), sess.Scope(), sess.Overlay, fh.Filename, data)
	if err != nil {
		return err
	}
	sess.Overlay = out.Overlay
	if autoSelect, _ := strconv.ParseBool(c.FormValue("auto_select")); autoSelect {
		sess.Selection = tree.Add(sess.Selection, out.Result.AddedKeys()...)
	}
	if _, err := h.reconcile(c, sess); err != nil {
		return err
	}
	if err := h.save(c, sess); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, uploadResponse{
		File:     fh.Filename,
		Result:   out.Result,
		Selected: len(sess.Selection),
		Warning:  out.Warning,
	})
}

type addVariableRequest struct {
	mapping.VariableInput
	Select *bool `json:"select"`
}

type addVariableResponse struct {
	Row     mapping.Row          `json:"row"`
	Result  mapping.UpsertResult `json:"result"`
	Warning string               `json:"warning,omitempty"`
}

// AddVariable adds one manually entered variable to the overlay and, unless
// select is false, selects it.
func (h *Handler) AddVariable(c echo.Context) error {
	var req addVariableRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sess := auth.FromContext(c)
	out, err := h.mappings.AddVariable(c.Request().Context(), sess.Scope(), sess.Overlay, req.VariableInput)
	if err != nil {
		return err
	}
	if len(out.Result.Rows) == 0 {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "variable name is required")
	}
	row := out.Result.Rows[0]
	sess.Overlay = out.Overlay
	if req.Select == nil || *req.Select {
		sess.Selection = tree.Add(sess.Selection, row.Key)
	}
	if _, err := h.reconcile(c, sess); err != nil {
		return err
	}
	if err := h.save(c, sess); err != nil {
		return err
	}
	status := http.StatusOK
	if out.Result.Added > 0 {
		status = http.StatusCreated
	}
	return c.JSON(status, addVariableResponse{Row: row, Result: out.Result, Warning: out.Warning})
}

func (h *Handler) projectScope(c echo.Context) (mapping.Scope, error) {
	sess := auth.FromContext(c)
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		return mapping.Scope{}, mapping.ErrNoProject
	}
	return mapping.Scope{Token: sess.Token, Project: name, Filter: sess.SourceFilter}, nil
}

// CreateMapping publishes a variable as a new backend mapping record.
func (h *Handler) CreateMapping(c echo.Context) error {
	var in mapping.VariableInput
	if err := bind(c, &in); err != nil {
		return err
	}
	sc, err := h.projectScope(c)
	if err != nil {
		return err
	}
	row, err := h.mappings.CreateBackendMapping(c.Request().Context(), sc, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, row)
}

func (h *Handler) UpdateMapping(c echo.Context) error {
	var in mapping.VariableInput
	if err := bind(c, &in); err != nil {
		return err
	}
	sc, err := h.projectScope(c)
	if err != nil {
		return err
	}
	row, err := h.mappings.UpdateBackendMapping(c.Request().Context(), sc, c.Param("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, row)
}

func (h *Handler) DeleteMapping(c echo.Context) error {
	sc, err := h.projectScope(c)
	if err != nil {
		return err
	}
	if err := h.mappings.DeleteBackendMapping(c.Request().Context(), sc, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
