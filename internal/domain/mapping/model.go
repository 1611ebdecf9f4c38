package mapping

import (
	"fmt"
	"strings"
	"time"
)

// DefaultGroup is the sentinel grouping value for rows without an organ
// system or group.
const DefaultGroup = "General"

// Origin tags where a row came from.
type Origin string

const (
	OriginBase Origin = "base"
	OriginUser Origin = "user"
)

// Contribution records how a user row entered the overlay.
type Contribution string

const (
	ContributionUpload Contribution = "upload"
	ContributionManual Contribution = "manual"
)

// Key prefixes produced by the identity rule.
const (
	KeyPrefixEPIC = "EPIC:"
	KeyPrefixPDMS = "PDMS:"
	KeyPrefixBase = "BASE:"
	KeyPrefixNew  = "NEW:"
)

// Row is one clinical variable mapping in canonical tabular form.
type Row struct {
	Key          string            `json:"row_key"`
	OrganSystem  string            `json:"organ_system"`
	Group        string            `json:"group"`
	Variable     string            `json:"variable"`
	EpicID       string            `json:"epic_id"`
	PDMSID       string            `json:"pdms_id"`
	Unit         string            `json:"unit"`
	Origin       Origin            `json:"origin"`
	Contribution Contribution      `json:"contribution,omitempty"`
	UserCreated  bool              `json:"user_created"`
	UploadedAt   *time.Time        `json:"uploaded_at,omitempty"`
	MappingID    string            `json:"mapping_id,omitempty"`
	Status       string            `json:"status,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Source infers the source system label from the identifiers present.
func (r Row) Source() string {
	switch {
	case r.EpicID != "" && r.PDMSID != "":
		return "Both"
	case r.EpicID != "":
		return SystemEPIC
	case r.PDMSID != "":
		return SystemPDMS
	}
	return ""
}

// OriginLabel is the human-readable origin used in exports.
func (r Row) OriginLabel() string {
	if r.Origin != OriginUser {
		return "Base"
	}
	if r.Contribution == ContributionManual {
		return "User created"
	}
	return "User upload"
}

func (r Row) clone() Row {
	if r.Extra != nil {
		extra := make(map[string]string, len(r.Extra))
		for k, v := range r.Extra {
			extra[k] = v
		}
		r.Extra = extra
	}
	if r.UploadedAt != nil {
		t := *r.UploadedAt
		r.UploadedAt = &t
	}
	return r
}

// Source system names.
const (
	SystemEPIC = "EPIC"
	SystemPDMS = "PDMS"
)

// SourceFilter selects which source systems are visible.
type SourceFilter string

const (
	FilterBoth SourceFilter = "Both"
	FilterEPIC SourceFilter = "EPIC"
	FilterPDMS SourceFilter = "PDMS"
)

// ParseSourceFilter accepts the filter case-insensitively. Empty means Both.
func ParseSourceFilter(s string) (SourceFilter, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "BOTH":
		return FilterBoth, nil
	case "EPIC":
		return FilterEPIC, nil
	case "PDMS":
		return FilterPDMS, nil
	}
	return "", fmt.Errorf("invalid source filter %q: must be Both, EPIC or PDMS", s)
}

// Keep reports whether a row is visible under the filter.
func (f SourceFilter) Keep(r Row) bool {
	switch f {
	case FilterEPIC:
		return r.EpicID != ""
	case FilterPDMS:
		return r.PDMSID != ""
	}
	return true
}
