package mapping

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kim/varmap/internal/platform/backend"
)

// ErrNoProject is returned by operations that need a selected project.
var ErrNoProject = errors.New("no project selected")

// DegradedWarning is shown when the base dataset could not be loaded.
const DegradedWarning = "Mapping data is currently unavailable; showing your own variables only."

// MappingWriter is the backend surface used for mapping maintenance.
type MappingWriter interface {
	CreateMapping(ctx context.Context, token, project string, m backend.Mapping) (*backend.Mapping, error)
	UpdateMapping(ctx context.Context, token, project, id string, m backend.Mapping) (*backend.Mapping, error)
	DeleteMapping(ctx context.Context, token, project, id string) error
}

// Scope identifies whose data an operation reads.
type Scope struct {
	Token   string
	Project string
	Filter  SourceFilter
}

// MasterView is the merged, filtered row set with its provenance counts.
type MasterView struct {
	Rows      []Row     `json:"rows"`
	BaseRows  int       `json:"base_rows"`
	UserRows  int       `json:"user_rows"`
	Warning   string    `json:"warning,omitempty"`
	Degraded  bool      `json:"degraded"`
	Filter    string    `json:"source_filter"`
	Generated time.Time `json:"generated_at"`
}

// Keys returns the key set of the view.
func (v MasterView) Keys() map[string]struct{} { return KeySet(v.Rows) }

// Outcome is the result of an overlay mutation.
type Outcome struct {
	Overlay Overlay      `json:"-"`
	Result  UpsertResult `json:"result"`
	Warning string       `json:"warning,omitempty"`
}

type Service struct {
	cache  *BaseCache
	writer MappingWriter
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(cache *BaseCache, writer MappingWriter, logger zerolog.Logger) *Service {
	return &Service{cache: cache, writer: writer, logger: logger, now: time.Now}
}

// Base returns the base rows of the scope's project. When the source is
// unavailable it returns an empty base and a warning instead of an error.
// Missing credentials are never degraded.
func (s *Service) Base(ctx context.Context, sc Scope) ([]Row, string, error) {
	if sc.Project == "" {
		return nil, "", ErrNoProject
	}
	rows, err := s.cache.Get(ctx, sc.Token, sc.Project)
	if err != nil {
		if errors.Is(err, ErrDataUnavailable) {
			s.logger.Warn().Err(err).Str("project", sc.Project).Msg("serving degraded master view")
			return nil, DegradedWarning, nil
		}
		return nil, "", err
	}
	return rows, "", nil
}

// Master computes the master view for the scope and overlay.
func (s *Service) Master(ctx context.Context, sc Scope, overlay Overlay) (MasterView, error) {
	base, warning, err := s.Base(ctx, sc)
	if err != nil {
		return MasterView{}, err
	}
	filter := sc.Filter
	if filter == "" {
		filter = FilterBoth
	}
	rows := Master(base, overlay, filter)
	view := MasterView{
		Rows:      rows,
		Warning:   warning,
		Degraded:  warning != "",
		Filter:    string(filter),
		Generated: s.now().UTC(),
	}
	for _, r := range rows {
		if r.Origin == OriginUser {
			view.UserRows++
		} else {
			view.BaseRows++
		}
	}
	return view, nil
}

// Upload parses a CSV, XLSX or YAML file and merges its rows into the
// overlay. Row-level problems are reported in the result, not as an error.
func (s *Service) Upload(ctx context.Context, sc Scope, overlay Overlay, filename string, data []byte) (Outcome, error) {
	recs, err := ParseTable(filename, data)
	if err != nil {
		return Outcome{}, fmt.Errorf("parse upload %s: %w", filename, err)
	}
	base, warning, err := s.Base(ctx, sc)
	if err != nil {
		return Outcome{}, err
	}
	next, res := Upsert(base, overlay, RowsFromRecords(recs), UpsertOptions{
		Contribution: ContributionUpload,
		Now:          s.now,
	})
	s.logger.Info().
		Str("project", sc.Project).
		Str("file", filename).
		Int("added", res.Added).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Msg("upload merged into overlay")
	return Outcome{Overlay: next, Result: res, Warning: warning}, nil
}

// VariableInput is a manually entered variable.
type VariableInput struct {
	Variable    string `json:"variable"`
	OrganSystem string `json:"organ_system"`
	Group       string `json:"group"`
	EpicID      string `json:"epic_id"`
	PDMSID      string `json:"pdms_id"`
	Unit        string `json:"unit"`
}

func (in VariableInput) row() Row {
	return Row{
		Variable:    in.Variable,
		OrganSystem: in.OrganSystem,
		Group:       in.Group,
		EpicID:      in.EpicID,
		PDMSID:      in.PDMSID,
		Unit:        in.Unit,
	}
}

// AddVariable adds one manually entered row. It needs a variable name and
// at least one identifier; otherwise a *ValidationError is returned.
func (s *Service) AddVariable(ctx context.Context, sc Scope, overlay Overlay, in VariableInput) (Outcome, error) {
	base, warning, err := s.Base(ctx, sc)
	if err != nil {
		return Outcome{}, err
	}
	next, res := Upsert(base, overlay, []Row{in.row()}, UpsertOptions{
		Contribution:      ContributionManual,
		RequireIdentifier: true,
		Now:               s.now,
	})
	if len(res.Rejected) > 0 {
		verr := res.Rejected[0]
		return Outcome{}, &verr
	}
	return Outcome{Overlay: next, Result: res, Warning: warning}, nil
}

// CreateBackendMapping publishes one manually entered variable as a new
// backend mapping record and drops the project's cached base.
func (s *Service) CreateBackendMapping(ctx context.Context, sc Scope, in VariableInput) (Row, error) {
	if sc.Project == "" {
		return Row{}, ErrNoProject
	}
	r := NormalizeRow(in.row())
	if r.Variable == "" {
		return Row{}, &ValidationError{Field: ColVariable, Reason: "variable name is required"}
	}
	if r.EpicID == "" && r.PDMSID == "" {
		return Row{}, &ValidationError{Field: ColEpicID, Reason: "at least one identifier is required"}
	}
	saved, err := s.writer.CreateMapping(ctx, sc.Token, sc.Project, ToBackend(r))
	if err != nil {
		return Row{}, fmt.Errorf("create mapping: %w", err)
	}
	s.cache.Invalidate(sc.Project)
	return AssignBaseKeys([]Row{FromBackend(*saved)})[0], nil
}

// UpdateBackendMapping writes a row to an existing backend mapping record
// and drops the project's cached base.
func (s *Service) UpdateBackendMapping(ctx context.Context, sc Scope, id string, in VariableInput) (Row, error) {
	if sc.Project == "" {
		return Row{}, ErrNoProject
	}
	r := NormalizeRow(in.row())
	if r.Variable == "" {
		return Row{}, &ValidationError{Field: ColVariable, Reason: "variable name is required"}
	}
	r.MappingID = strings.TrimSpace(id)
	saved, err := s.writer.UpdateMapping(ctx, sc.Token, sc.Project, r.MappingID, ToBackend(r))
	if err != nil {
		return Row{}, fmt.Errorf("update mapping %s: %w", id, err)
	}
	s.cache.Invalidate(sc.Project)
	return AssignBaseKeys([]Row{FromBackend(*saved)})[0], nil
}

// DeleteBackendMapping removes a backend mapping record and drops the
// project's cached base.
func (s *Service) DeleteBackendMapping(ctx context.Context, sc Scope, id string) error {
	if sc.Project == "" {
		return ErrNoProject
	}
	if err := s.writer.DeleteMapping(ctx, sc.Token, sc.Project, id); err != nil {
		return fmt.Errorf("delete mapping %s: %w", id, err)
	}
	s.cache.Invalidate(sc.Project)
	return nil
}
