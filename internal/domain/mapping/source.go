package mapping

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kim/varmap/internal/platform/backend"
)

// ErrDataUnavailable means the base dataset could not be loaded because its
// source is unreachable or returned malformed data. Callers degrade to an
// empty base with a warning.
var ErrDataUnavailable = errors.New("mapping data unavailable")

// BaseSource loads the base dataset of a project. Implementations return
// normalised rows with base keys assigned.
type BaseSource interface {
	Load(ctx context.Context, token, project string) ([]Row, error)
}

// MappingLister is the backend call the backend source needs.
type MappingLister interface {
	ListMappings(ctx context.Context, token, project string) ([]backend.Mapping, error)
}

type backendSource struct {
	client MappingLister
}

// NewBackendSource loads base rows from GET /projects/{name}/mappings.
func NewBackendSource(client MappingLister) BaseSource {
	return &backendSource{client: client}
}

func (s *backendSource) Load(ctx context.Context, token, project string) ([]Row, error) {
	ms, err := s.client.ListMappings(ctx, token, project)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthenticated) {
			return nil, err
		}
		return nil, fmt.Errorf("load mappings for %q: %w: %w", project, ErrDataUnavailable, err)
	}
	return FromBackendAll(ms), nil
}

type fileSource struct {
	path string
}

// NewFileSource loads the same static seed file for every project.
func NewFileSource(path string) BaseSource {
	return &fileSource{path: path}
}

func (s *fileSource) Load(_ context.Context, _, _ string) ([]Row, error) {
	return LoadSeedFile(s.path)
}

// LoadSeedFile reads a CSV, XLSX or YAML seed file as base rows.
func LoadSeedFile(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w: %w", ErrDataUnavailable, err)
	}
	recs, err := ParseTable(path, data)
	if err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w: %w", path, ErrDataUnavailable, err)
	}
	return AssignBaseKeys(RowsFromRecords(recs)), nil
}
