package tree

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/kim/varmap/internal/domain/mapping"
)

func sampleRows() []mapping.Row {
	return mapping.AssignBaseKeys([]mapping.Row{
		{OrganSystem: "Renal", Group: "Labs", Variable: "Creatinine", EpicID: "123"},
		{OrganSystem: "Cardio", Group: "Vitals", Variable: "Heart rate", EpicID: "9", PDMSID: "HR"},
		{OrganSystem: "Cardio", Group: "Vitals", Variable: "Blood pressure", PDMSID: "BP"},
		{OrganSystem: "", Group: "", Variable: ""},
	})
}

func TestBuild_Structure(t *testing.T) {
	tr, err := Build(sampleRows(), Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(tr.Nodes) != 3 {
		t.Fatalf("got %d organ systems, want 3", len(tr.Nodes))
	}
	var names []string
	for _, n := range tr.Nodes {
		names = append(names, n.Name)
	}
	if !reflect.DeepEqual(names, []string{"Cardio", mapping.DefaultGroup, "Renal"}) {
		t.Errorf("organ systems = %v", names)
	}

	vitals := tr.Nodes[0].Groups[0]
	if vitals.ID() != "GR:Cardio/Vitals" {
		t.Errorf("group id = %q", vitals.ID())
	}
	if vitals.Leaves[0].Label != "Blood pressure" || vitals.Leaves[1].Label != "Heart rate" {
		t.Errorf("leaves not sorted by variable: %q, %q", vitals.Leaves[0].Label, vitals.Leaves[1].Label)
	}
	if tr.Nodes[0].ID() != "OS:Cardio" {
		t.Errorf("organ id = %q", tr.Nodes[0].ID())
	}

	unnamed := tr.Nodes[1].Groups[0].Leaves[0]
	if unnamed.Label != UnnamedVariable {
		t.Errorf("label = %q", unnamed.Label)
	}

	row, ok := tr.Lookup["ROW:EPIC:123"]
	if !ok || row.Variable != "Creatinine" {
		t.Errorf("lookup = %+v, %v", row, ok)
	}
	if len(tr.Lookup) != 4 || len(tr.LeafIDs()) != 4 {
		t.Errorf("lookup %d, leaves %d", len(tr.Lookup), len(tr.LeafIDs()))
	}
}

func TestBuild_RequiresKeys(t *testing.T) {
	rows := sampleRows()
	rows[2].Key = ""
	_, err := Build(rows, Options{})
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("err = %v, want ErrPrecondition", err)
	}
	var pe *PreconditionError
	if !errors.As(err, &pe) || pe.Index != 2 {
		t.Errorf("precondition error = %+v", pe)
	}
}

func TestBuild_DuplicateKeysKeepLast(t *testing.T) {
	rows := []mapping.Row{
		{Key: "EPIC:1", OrganSystem: "A", Group: "G", Variable: "Old"},
		{Key: "EPIC:1", OrganSystem: "A", Group: "G", Variable: "New"},
	}
	tr, err := Build(rows, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if ids := tr.LeafIDs(); len(ids) != 1 {
		t.Fatalf("leaves = %v", ids)
	}
	if tr.Lookup["ROW:EPIC:1"].Variable != "New" {
		t.Errorf("kept %q, want New", tr.Lookup["ROW:EPIC:1"].Variable)
	}
}

func TestBuild_AnnotateSource(t *testing.T) {
	tr, err := Build(sampleRows(), Options{AnnotateSource: true})
	if err != nil {
		t.Fatal(err)
	}
	labels := map[string]string{}
	Walk(tr.Roots(), func(n Node) {
		if l, ok := n.(*LeafNode); ok {
			labels[l.ID()] = l.Label
		}
	})
	if got := labels["ROW:EPIC:9"]; got != "Heart rate (Both)" {
		t.Errorf("label = %q", got)
	}
	if got := labels["ROW:PDMS:BP"]; got != "Blood pressure (PDMS)" {
		t.Errorf("label = %q", got)
	}
}

func TestBuild_LeafIDsStable(t *testing.T) {
	rows := sampleRows()
	first, _ := Build(rows, Options{})

	// Unrelated columns and relabelled groups do not move leaf identifiers.
	changed := make([]mapping.Row, len(rows))
	copy(changed, rows)
	for i := range changed {
		changed[i].Extra = map[string]string{"Comment": "new column"}
		changed[i].Unit = "x"
	}
	changed[0].Group = "Renal labs"
	second, _ := Build(changed, Options{AnnotateSource: true})

	if !sameSet(first.LeafIDs(), second.LeafIDs()) {
		t.Errorf("leaf ids changed: %v vs %v", first.LeafIDs(), second.LeafIDs())
	}

	// Filtering keeps the identifiers of rows that remain visible.
	epicOnly := mapping.Master(rows, mapping.Overlay{}, mapping.FilterEPIC)
	filtered, _ := Build(epicOnly, Options{})
	all := toSet(first.LeafIDs())
	for _, id := range filtered.LeafIDs() {
		if _, ok := all[id]; !ok {
			t.Errorf("filtered tree has new id %q", id)
		}
	}
	if len(filtered.LeafIDs()) != 2 {
		t.Errorf("filtered leaves = %v", filtered.LeafIDs())
	}
}

func TestExpandAll(t *testing.T) {
	tr, _ := Build(sampleRows(), Options{})
	got := ExpandAll(tr)
	want := []string{
		"GR:Cardio/Vitals",
		"GR:General/General",
		"GR:Renal/Labs",
		"OS:Cardio",
		"OS:General",
		"OS:Renal",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExpandAll = %v", got)
	}
}

func TestNode_MarshalJSON(t *testing.T) {
	tr, _ := Build(sampleRows()[:1], Options{})
	data, err := json.Marshal(tr.Roots())
	if err != nil {
		t.Fatal(err)
	}
	want := `[{"label":"Renal","value":"OS:Renal","children":[{"label":"Labs","value":"GR:Renal/Labs","children":[{"label":"Creatinine","value":"ROW:EPIC:123"}]}]}]`
	if string(data) != want {
		t.Errorf("json = %s", data)
	}
}

func TestNormalizeSelection(t *testing.T) {
	raw := []string{"ROW:A", " ROW:B ", "Cardio|Vitals|A", "Renal|Labs|C", "OS:Cardio", "", "ROW:", "junk"}
	got := NormalizeSelection(raw)
	want := []string{"ROW:A", "ROW:B", "ROW:C"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeSelection = %v, want %v", got, want)
	}
	if again := NormalizeSelection(got); !reflect.DeepEqual(again, got) {
		t.Errorf("not idempotent: %v", again)
	}
}

func TestFilterSelection(t *testing.T) {
	got := FilterSelection([]string{"ROW:A", "ROW:B"}, map[string]struct{}{"A": {}})
	if !reflect.DeepEqual(got, []string{"ROW:A"}) {
		t.Errorf("FilterSelection = %v", got)
	}
	if got := FilterSelection(nil, map[string]struct{}{"A": {}}); len(got) != 0 {
		t.Errorf("empty selection = %v", got)
	}
}

func TestAddAndSelectedKeys(t *testing.T) {
	sel := Add([]string{"ROW:A"}, "A", "NEW:x")
	if !reflect.DeepEqual(sel, []string{"ROW:A", "ROW:NEW:x"}) {
		t.Errorf("Add = %v", sel)
	}
	if keys := SelectedKeys(sel); !reflect.DeepEqual(keys, []string{"A", "NEW:x"}) {
		t.Errorf("SelectedKeys = %v", keys)
	}
	if key, ok := RowKey("GR:x/y"); ok || key != "" {
		t.Errorf("RowKey(GR) = %q, %v", key, ok)
	}
	if !strings.HasPrefix(LeafID("k"), PrefixRow) {
		t.Error("LeafID prefix")
	}
}

func toSet(ids []string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := toSet(a)
	for _, id := range b {
		if _, ok := sa[id]; !ok {
			return false
		}
	}
	return true
}
