package granularity

import (
	"fmt"

	"github.com/google/uuid"
)

// Rows operations return new slices and never modify their input.

var newID = uuid.NewString

func raw(key string) Row {
	return Row{ID: newID(), RowKey: key, Summary: SummaryRaw, TimeBasis: TimeNone}
}

// Init creates one Raw/None row per selected key that is present in valid.
func Init(keys []string, valid map[string]struct{}) []Row {
	out := make([]Row, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if _, ok := valid[k]; !ok || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, raw(k))
	}
	return out
}

// Sync reconciles rows with the current selection: rows of keys that are
// no longer selected or no longer valid are dropped, and newly selected
// keys get a Raw/None row appended.
func Sync(rows []Row, keys []string, valid map[string]struct{}) []Row {
	selected := make(map[string]bool, len(keys))
	for _, k := range keys {
		if _, ok := valid[k]; ok {
			selected[k] = true
		}
	}
	out := make([]Row, 0, len(rows)+len(keys))
	covered := make(map[string]bool, len(rows))
	for _, r := range rows {
		if selected[r.RowKey] {
			out = append(out, r)
			covered[r.RowKey] = true
		}
	}
	for _, k := range keys {
		if selected[k] && !covered[k] {
			covered[k] = true
			out = append(out, raw(k))
		}
	}
	return out
}

func indexIDs(rows []Row, ids []string) (map[string]bool, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	found := 0
	for _, r := range rows {
		if want[r.ID] {
			found++
		}
	}
	if found != len(want) {
		return nil, fmt.Errorf("%d of %d ids: %w", len(want)-found, len(want), ErrNotFound)
	}
	return want, nil
}

// Duplicate appends a copy with a fresh id of every row in ids.
func Duplicate(rows []Row, ids []string) ([]Row, error) {
	want, err := indexIDs(rows, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(rows)+len(want))
	out = append(out, rows...)
	for _, r := range rows {
		if want[r.ID] {
			c := r
			c.ID = newID()
			out = append(out, c)
		}
	}
	return out, nil
}

// Delete removes every row in ids.
func Delete(rows []Row, ids []string) ([]Row, error) {
	want, err := indexIDs(rows, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if !want[r.ID] {
			out = append(out, r)
		}
	}
	return out, nil
}

// Patch carries the fields of an update; empty fields are left unchanged.
type Patch struct {
	Summary   string `json:"summary"`
	TimeBasis string `json:"time_basis"`
}

// Update applies p to the row with id.
func Update(rows []Row, id string, p Patch) ([]Row, Row, error) {
	var summary Summary
	var basis TimeBasis
	var err error
	if p.Summary != "" {
		if summary, err = ParseSummary(p.Summary); err != nil {
			return nil, Row{}, err
		}
	}
	if p.TimeBasis != "" {
		if basis, err = ParseTimeBasis(p.TimeBasis); err != nil {
			return nil, Row{}, err
		}
	}

	out := make([]Row, len(rows))
	copy(out, rows)
	for i := range out {
		if out[i].ID != id {
			continue
		}
		if summary != "" {
			out[i].Summary = summary
		}
		if basis != "" {
			out[i].TimeBasis = basis
		}
		return out, out[i], nil
	}
	return nil, Row{}, fmt.Errorf("row %s: %w", id, ErrNotFound)
}

// Effective returns the rows an export uses: the custom rows when custom
// granularity is enabled, otherwise one Raw/None row per selected key.
func Effective(custom bool, rows []Row, keys []string, valid map[string]struct{}) []Row {
	if custom {
		return Sync(rows, keys, valid)
	}
	return Init(keys, valid)
}
