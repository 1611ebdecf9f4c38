package server

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kim/varmap/internal/domain/export"
	"github.com/kim/varmap/internal/domain/wizard"
	"github.com/kim/varmap/internal/platform/apierr"
	"github.com/kim/varmap/internal/platform/auth"
	"github.com/kim/varmap/internal/platform/session"
)

type exportPreview struct {
	Rows     []export.Row `json:"rows"`
	Header   []string     `json:"header"`
	Filename string       `json:"filename"`
	Warning  string       `json:"warning,omitempty"`
}

func (h *Handler) exportRows(c echo.Context, sess *session.Session) ([]export.Row, string, error) {
	view, err := h.reconcile(c, sess)
	if err != nil {
		return nil, "", err
	}
	return export.Build(sess.ExportRows(view.Keys()), view.Rows), view.Warning, nil
}

// PreviewExport returns the rows a download would contain.
func (h *Handler) PreviewExport(c echo.Context) error {
	sess := auth.FromContext(c)
	rows, warning, err := h.exportRows(c, sess)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, exportPreview{
		Rows:     rows,
		Header:   export.Header,
		Filename: export.Filename(sess.Project, h.now(), export.FormatCSV),
		Warning:  warning,
	})
}

// DownloadExport streams the export as CSV or XLSX and marks the export
// step complete.
func (h *Handler) DownloadExport(c echo.Context) error {
	format, err := export.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return apierr.New(http.StatusBadRequest, "unsupported_format", err)
	}
	sess := auth.FromContext(c)
	rows, _, err := h.exportRows(c, sess)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, rows); err != nil {
		return fmt.Errorf("write %s export: %w", format, err)
	}
	now := h.now().UTC()
	sess.LastExportAt = &now
	if err := h.save(c, sess); err != nil {
		return err
	}

	name := export.Filename(sess.Project, now, format)
	h.logger.Info().
		Str("session_id", sess.ID).
		Str("project", sess.Project).
		Str("format", string(format)).
		Int("rows", len(rows)).
		Msg("export downloaded")
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, format.ContentType(), buf.Bytes())
}

// GetSteps reports wizard progress. current accepts a step index or slug;
// without it the first incomplete step is current.
func (h *Handler) GetSteps(c echo.Context) error {
	sess := auth.FromContext(c)
	current := -1
	if ref := c.QueryParam("current"); ref != "" {
		st, err := wizard.Resolve(ref)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		current = st.Index
	}
	return c.JSON(http.StatusOK, wizard.Compute(sess.WizardState(), current))
}
