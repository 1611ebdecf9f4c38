package wizard

import "testing"

func TestCompute_NoProject(t *testing.T) {
	p := Compute(State{}, -1)
	if p.Current != 0 {
		t.Errorf("Current = %d, want 0", p.Current)
	}
	if p.Back != nil || p.Next == nil || *p.Next != 1 {
		t.Errorf("neighbours = %v/%v", p.Back, p.Next)
	}
	for _, st := range p.Steps[1:] {
		if st.Reachable {
			t.Errorf("step %d reachable without project", st.Index)
		}
	}
}

func TestCompute_FirstIncomplete(t *testing.T) {
	s := State{Project: "icu", SourceFilter: "EPIC", Selected: 3, CustomGranularity: true}
	p := Compute(s, 99)
	if p.Current != 3 {
		t.Errorf("Current = %d, want 3 (custom granularity without rows)", p.Current)
	}
	if !p.Steps[2].Complete || p.Steps[3].Complete {
		t.Errorf("steps = %+v", p.Steps)
	}

	s.GranularityRows = 4
	p = Compute(s, 4)
	if !p.Steps[3].Complete || p.Next != nil || *p.Back != 3 {
		t.Errorf("progress = %+v", p)
	}
}

func TestResolve(t *testing.T) {
	if st, err := Resolve("granularity"); err != nil || st.Index != 3 {
		t.Errorf("Resolve(granularity) = %+v, %v", st, err)
	}
	if st, err := Resolve("4"); err != nil || st.Slug != "export" {
		t.Errorf("Resolve(4) = %+v, %v", st, err)
	}
	if _, err := Resolve("billing"); err == nil {
		t.Error("expected error")
	}
}
