package mapping

import (
	"sort"
	"strings"
)

// Canonical column names of the tabular mapping shape.
const (
	ColOrganSystem = "Organ System"
	ColGroup       = "Group"
	ColVariable    = "Variable"
	ColEpicID      = "EPIC ID"
	ColPDMSID      = "PDMS ID"
	ColUnit        = "Unit"
)

// Columns lists the required columns in display order.
var Columns = []string{ColOrganSystem, ColGroup, ColVariable, ColEpicID, ColPDMSID, ColUnit}

var columnAliases = map[string]string{
	"organsystem": ColOrganSystem,
	"organ":       ColOrganSystem,
	"group":       ColGroup,
	"variable":    ColVariable,
	"name":        ColVariable,
	"epicid":      ColEpicID,
	"epic":        ColEpicID,
	"pdmsid":      ColPDMSID,
	"pdms":        ColPDMSID,
	"unit":        ColUnit,
}

// Columns that carry identity or provenance and are never taken from input.
var reservedColumns = map[string]bool{
	"rowkey":      true,
	"origin":      true,
	"usercreated": true,
	"uploadedat":  true,
	"source":      true,
}

// Record is one raw input row keyed by column header.
type Record map[string]string

func headerKey(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
}

// CanonicalColumn maps a header to its canonical column name, or "" when
// the header is not one of the required columns.
func CanonicalColumn(header string) string {
	return columnAliases[headerKey(header)]
}

// isCanonicalHeader reports whether header spells a column's canonical
// name rather than one of its aliases.
func isCanonicalHeader(header string) bool {
	col := CanonicalColumn(header)
	return col != "" && headerKey(header) == headerKey(col)
}

func (r *Row) column(col string) *string {
	switch col {
	case ColOrganSystem:
		return &r.OrganSystem
	case ColGroup:
		return &r.Group
	case ColVariable:
		return &r.Variable
	case ColEpicID:
		return &r.EpicID
	case ColPDMSID:
		return &r.PDMSID
	case ColUnit:
		return &r.Unit
	}
	return nil
}

// RowFromRecord coerces a raw record into a Row. Missing columns become
// empty; unknown columns are carried in Extra. When several headers map to
// one column, the first non-empty value wins, trying the canonical header
// before aliases and aliases in lexical order. The result is not yet
// normalised and has no key.
func RowFromRecord(rec Record) Row {
	headers := make([]string, 0, len(rec))
	for h := range rec {
		headers = append(headers, h)
	}
	sort.Slice(headers, func(i, j int) bool {
		ci, cj := isCanonicalHeader(headers[i]), isCanonicalHeader(headers[j])
		if ci != cj {
			return ci
		}
		return headers[i] < headers[j]
	})

	var r Row
	for _, header := range headers {
		value := rec[header]
		if field := r.column(CanonicalColumn(header)); field != nil {
			if cleanText(*field) == "" {
				*field = value
			}
			continue
		}
		if reservedColumns[headerKey(header)] || strings.TrimSpace(header) == "" {
			continue
		}
		if r.Extra == nil {
			r.Extra = map[string]string{}
		}
		r.Extra[strings.TrimSpace(header)] = value
	}
	return r
}

var nullLiterals = map[string]bool{
	"nan":  true,
	"none": true,
	"null": true,
	"<na>": true,
	"nat":  true,
}

func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if nullLiterals[strings.ToLower(s)] {
		return ""
	}
	return s
}

// NormalizeIdentifier trims an EPIC/PDMS identifier, drops null literals
// and strips the ".0" suffix spreadsheets add to integer ids.
func NormalizeIdentifier(s string) string {
	s = cleanText(s)
	if strings.HasSuffix(s, ".0") && isDigits(strings.TrimSuffix(s, ".0")) {
		s = strings.TrimSuffix(s, ".0")
	}
	return s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func groupingOrDefault(s string) string {
	if s = cleanText(s); s == "" {
		return DefaultGroup
	}
	return s
}

// NormalizeRow returns a normalised copy of r. Keys and provenance are
// left untouched.
func NormalizeRow(r Row) Row {
	out := r.clone()
	out.OrganSystem = groupingOrDefault(r.OrganSystem)
	out.Group = groupingOrDefault(r.Group)
	out.Variable = cleanText(r.Variable)
	out.EpicID = NormalizeIdentifier(r.EpicID)
	out.PDMSID = NormalizeIdentifier(r.PDMSID)
	out.Unit = cleanText(r.Unit)
	return out
}

// Normalize returns a new slice of normalised rows; the input is not
// modified.
func Normalize(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = NormalizeRow(r)
	}
	return out
}
