package mapping

import (
	"github.com/kim/varmap/internal/platform/backend"
)

// FromBackend converts a backend mapping record into a (not yet keyed) row.
// classification.path[0] and [1] become organ system and group.
func FromBackend(m backend.Mapping) Row {
	r := Row{
		Variable:  m.Name,
		Unit:      m.Unit,
		Status:    m.Status,
		MappingID: string(m.ID),
		EpicID:    m.SourceVariable(backend.SystemEPIC),
		PDMSID:    m.SourceVariable(backend.SystemPDMS),
	}
	if len(m.Classification.Path) > 0 {
		r.OrganSystem = m.Classification.Path[0]
	}
	if len(m.Classification.Path) > 1 {
		r.Group = m.Classification.Path[1]
	}
	return r
}

// FromBackendAll converts a mapping list and assigns base keys.
func FromBackendAll(ms []backend.Mapping) []Row {
	rows := make([]Row, len(ms))
	for i, m := range ms {
		rows[i] = FromBackend(m)
	}
	return AssignBaseKeys(rows)
}

// ToBackend converts a row into the backend mapping shape.
func ToBackend(r Row) backend.Mapping {
	r = NormalizeRow(r)
	m := backend.Mapping{
		ID:     backend.ID(r.MappingID),
		Name:   r.Variable,
		Unit:   r.Unit,
		Status: r.Status,
		Classification: backend.Classification{
			Path: []string{r.OrganSystem, r.Group},
		},
		Source: []backend.SourceRef{},
	}
	if m.Status == "" {
		m.Status = "active"
	}
	if r.EpicID != "" {
		m.Source = append(m.Source, backend.SourceRef{System: backend.SystemEPIC, Variable: r.EpicID})
	}
	if r.PDMSID != "" {
		m.Source = append(m.Source, backend.SourceRef{System: backend.SystemPDMS, Variable: r.PDMSID})
	}
	return m
}
