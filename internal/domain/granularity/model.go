package granularity

import (
	"errors"
	"fmt"
	"strings"
)

// Summary is how values of a variable are condensed.
type Summary string

const (
	SummaryRaw     Summary = "Raw"
	SummaryLowest  Summary = "Lowest"
	SummaryHighest Summary = "Highest"
	SummaryMean    Summary = "Mean"
)

// SummaryOptions lists the summaries in display order.
var SummaryOptions = []Summary{SummaryRaw, SummaryLowest, SummaryHighest, SummaryMean}

// TimeBasis is the time window a summary is computed over.
type TimeBasis string

const (
	TimeNone     TimeBasis = "None"
	TimePerDay   TimeBasis = "Per day"
	TimePerShift TimeBasis = "Per shift"
)

// TimeBasisOptions lists the time bases in display order.
var TimeBasisOptions = []TimeBasis{TimeNone, TimePerDay, TimePerShift}

var (
	ErrValidation = errors.New("invalid granularity")
	ErrNotFound   = errors.New("granularity row not found")
)

type ValidationError struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func fold(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// ParseSummary accepts a summary name case-insensitively.
func ParseSummary(s string) (Summary, error) {
	for _, opt := range SummaryOptions {
		if fold(s) == fold(string(opt)) {
			return opt, nil
		}
	}
	return "", &ValidationError{Field: "summary", Value: s}
}

// ParseTimeBasis accepts a time basis case-insensitively; "per_day" style
// spellings are accepted too.
func ParseTimeBasis(s string) (TimeBasis, error) {
	s = strings.ReplaceAll(s, "_", " ")
	for _, opt := range TimeBasisOptions {
		if fold(s) == fold(string(opt)) {
			return opt, nil
		}
	}
	return "", &ValidationError{Field: "time_basis", Value: s}
}

// Row is one extraction directive for a selected mapping row. Several rows
// may point at the same key.
type Row struct {
	ID        string    `json:"row_id"`
	RowKey    string    `json:"row_key"`
	Summary   Summary   `json:"summary"`
	TimeBasis TimeBasis `json:"time_basis"`
}

// IsDefault reports whether the row is a plain raw extraction.
func (r Row) IsDefault() bool {
	return r.Summary == SummaryRaw && r.TimeBasis == TimeNone
}
