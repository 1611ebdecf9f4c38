package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kim/varmap/internal/domain/granularity"
	"github.com/kim/varmap/internal/platform/apierr"
	"github.com/kim/varmap/internal/platform/auth"
	"github.com/kim/varmap/internal/platform/session"
)

var errDefaultGranularity = apierr.New(http.StatusConflict, "granularity_not_custom", errors.New("custom granularity is not enabled"))

type granularityItem struct {
	granularity.Row
	Variable string `json:"variable"`
}

type granularityResponse struct {
	Custom           bool                    `json:"custom"`
	Rows             []granularityItem       `json:"rows"`
	SummaryOptions   []granularity.Summary   `json:"summary_options"`
	TimeBasisOptions []granularity.TimeBasis `json:"time_basis_options"`
}

// granularityView reconciles the session against the master view and
// returns the rows an export would use.
func (h *Handler) granularityView(c echo.Context, sess *session.Session) (granularityResponse, error) {
	view, err := h.reconcile(c, sess)
	if err != nil {
		return granularityResponse{}, err
	}
	valid := view.Keys()
	names := make(map[string]string, len(view.Rows))
	for _, r := range view.Rows {
		names[r.Key] = r.Variable
	}
	rows := sess.ExportRows(valid)
	items := make([]granularityItem, len(rows))
	for i, r := range rows {
		items[i] = granularityItem{Row: r, Variable: names[r.RowKey]}
	}
	return granularityResponse{
		Custom:           sess.CustomGranularity,
		Rows:             items,
		SummaryOptions:   granularity.SummaryOptions,
		TimeBasisOptions: granularity.TimeBasisOptions,
	}, nil
}

func (h *Handler) respondGranularity(c echo.Context, sess *session.Session) error {
	resp, err := h.granularityView(c, sess)
	if err != nil {
		return err
	}
	if err := h.save(c, sess); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetGranularity(c echo.Context) error {
	return h.respondGranularity(c, auth.FromContext(c))
}

type granularityModeRequest struct {
	Custom bool `json:"custom"`
}

// SetGranularityMode switches between the default (Raw, None per selected
// variable) and custom granularity. Custom rows survive switching back to
// default and are resynchronised with the selection when custom mode is
// enabled again. A selected variable always keeps at least one row.
func (h *Handler) SetGranularityMode(c echo.Context) error {
	var req granularityModeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sess := auth.FromContext(c)
	sess.CustomGranularity = req.Custom
	return h.respondGranularity(c, sess)
}

type granularityIDsRequest struct {
	IDs []string `json:"ids"`
}

// DuplicateGranularity adds a copy of each listed row right after it.
func (h *Handler) DuplicateGranularity(c echo.Context) error {
	return h.editGranularity(c, granularity.Duplicate)
}

func (h *Handler) DeleteGranularity(c echo.Context) error {
	return h.editGranularity(c, granularity.Delete)
}

func (h *Handler) editGranularity(c echo.Context, op func([]granularity.Row, []string) ([]granularity.Row, error)) error {
	var req granularityIDsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if len(req.IDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "ids are required")
	}
	sess := auth.FromContext(c)
	if !sess.CustomGranularity {
		return errDefaultGranularity
	}
	rows, err := op(sess.Granularity, req.IDs)
	if err != nil {
		return err
	}
	sess.Granularity = rows
	return h.respondGranularity(c, sess)
}

// UpdateGranularity changes the summary or time basis of one row.
func (h *Handler) UpdateGranularity(c echo.Context) error {
	var p granularity.Patch
	if err := bind(c, &p); err != nil {
		return err
	}
	sess := auth.FromContext(c)
	if !sess.CustomGranularity {
		return errDefaultGranularity
	}
	rows, row, err := granularity.Update(sess.Granularity, c.Param("id"), p)
	if err != nil {
		return err
	}
	sess.Granularity = rows
	if err := h.save(c, sess); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, row)
}
