package granularity

import (
	"errors"
	"fmt"
	"testing"
)

func init() {
	n := 0
	newID = func() string {
		n++
		return fmt.Sprintf("g%d", n)
	}
}

func valid(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

func TestInit(t *testing.T) {
	rows := Init([]string{"A", "B", "A", "gone"}, valid("A", "B"))
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	for _, r := range rows {
		if !r.IsDefault() || r.ID == "" {
			t.Errorf("row = %+v", r)
		}
	}
	if rows[0].RowKey != "A" || rows[1].RowKey != "B" {
		t.Errorf("order = %s, %s", rows[0].RowKey, rows[1].RowKey)
	}
}

func TestSync(t *testing.T) {
	rows := []Row{
		{ID: "1", RowKey: "A", Summary: SummaryMean, TimeBasis: TimePerDay},
		{ID: "2", RowKey: "A", Summary: SummaryRaw, TimeBasis: TimeNone},
		{ID: "3", RowKey: "B", Summary: SummaryRaw, TimeBasis: TimeNone},
	}
	got := Sync(rows, []string{"A", "C"}, valid("A", "B", "C"))

	if len(got) != 3 {
		t.Fatalf("got %d rows, want 3: %+v", len(got), got)
	}
	if got[0].ID != "1" || got[1].ID != "2" {
		t.Errorf("existing rows not kept in order: %+v", got[:2])
	}
	if got[2].RowKey != "C" || !got[2].IsDefault() {
		t.Errorf("new row = %+v", got[2])
	}
	if len(rows) != 3 || rows[2].RowKey != "B" {
		t.Error("input modified")
	}
}

func TestDuplicateAndDelete(t *testing.T) {
	rows := []Row{
		{ID: "1", RowKey: "A", Summary: SummaryRaw, TimeBasis: TimeNone},
		{ID: "2", RowKey: "B", Summary: SummaryHighest, TimeBasis: TimePerShift},
	}
	dup, err := Duplicate(rows, []string{"2"})
	if err != nil {
		t.Fatalf("Duplicate: %v", err)
	}
	if len(dup) != 3 || dup[2].RowKey != "B" || dup[2].Summary != SummaryHighest || dup[2].ID == "2" {
		t.Errorf("dup = %+v", dup)
	}

	del, err := Delete(dup, []string{"1", "2"})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(del) != 1 || del[0].ID != dup[2].ID {
		t.Errorf("del = %+v", del)
	}

	if _, err := Delete(rows, []string{"missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdate(t *testing.T) {
	rows := []Row{{ID: "1", RowKey: "A", Summary: SummaryRaw, TimeBasis: TimeNone}}

	out, row, err := Update(rows, "1", Patch{Summary: "mean", TimeBasis: "per_day"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if row.Summary != SummaryMean || row.TimeBasis != TimePerDay || out[0] != row {
		t.Errorf("row = %+v", row)
	}
	if rows[0].Summary != SummaryRaw {
		t.Error("input modified")
	}

	_, _, err = Update(rows, "1", Patch{Summary: "Median"})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "summary" || !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want summary ValidationError", err)
	}
	if _, _, err := Update(rows, "2", Patch{Summary: "Raw"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestEffective(t *testing.T) {
	custom := []Row{{ID: "1", RowKey: "A", Summary: SummaryLowest, TimeBasis: TimePerDay}}
	keys := []string{"A", "B"}
	v := valid("A", "B")

	std := Effective(false, custom, keys, v)
	if len(std) != 2 || !std[0].IsDefault() {
		t.Errorf("standard = %+v", std)
	}
	cust := Effective(true, custom, keys, v)
	if len(cust) != 2 || cust[0].Summary != SummaryLowest || cust[1].RowKey != "B" {
		t.Errorf("custom = %+v", cust)
	}
}
