package wizard

import "fmt"

// Step is one page of the mapping workflow.
type Step struct {
	Index int    `json:"index"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// Steps is the ordered step registry.
var Steps = []Step{
	{Index: 0, Slug: "overview", Title: "Overview"},
	{Index: 1, Slug: "origin", Title: "Origin (EPIC/PDMS system)"},
	{Index: 2, Slug: "variables", Title: "Choose variables"},
	{Index: 3, Slug: "granularity", Title: "Granularity"},
	{Index: 4, Slug: "export", Title: "Export"},
}

// Last is the index of the final step.
var Last = Steps[len(Steps)-1].Index

// State is the part of a session the workflow depends on.
type State struct {
	Project           string
	SourceFilter      string
	Selected          int
	CustomGranularity bool
	GranularityRows   int
	Exported          bool
}

// StepStatus is a step as rendered by the stepper.
type StepStatus struct {
	Step
	Complete  bool `json:"complete"`
	Current   bool `json:"current"`
	Reachable bool `json:"reachable"`
}

// Progress is the stepper plus back/next neighbours of the current step.
type Progress struct {
	Steps   []StepStatus `json:"steps"`
	Current int          `json:"current"`
	Back    *int         `json:"back,omitempty"`
	Next    *int         `json:"next,omitempty"`
}

func complete(i int, s State) bool {
	switch i {
	case 0:
		return s.Project != ""
	case 1:
		return s.Project != "" && s.SourceFilter != ""
	case 2:
		return s.Selected > 0
	case 3:
		return s.Selected > 0 && (!s.CustomGranularity || s.GranularityRows > 0)
	case 4:
		return s.Exported
	}
	return false
}

// Resolve returns the step with the given slug or index string.
func Resolve(ref string) (Step, error) {
	for _, st := range Steps {
		if st.Slug == ref || fmt.Sprint(st.Index) == ref {
			return st, nil
		}
	}
	return Step{}, fmt.Errorf("unknown step %q", ref)
}

// Compute reports which steps are complete for s. Every step after the
// overview needs a project. When current is out of range the first
// incomplete step is used.
func Compute(s State, current int) Progress {
	if current < 0 || current > Last {
		current = 0
		for _, st := range Steps {
			if !complete(st.Index, s) {
				current = st.Index
				break
			}
		}
	}
	p := Progress{Current: current}
	for _, st := range Steps {
		p.Steps = append(p.Steps, StepStatus{
			Step:      st,
			Complete:  complete(st.Index, s),
			Current:   st.Index == current,
			Reachable: st.Index == 0 || s.Project != "",
		})
	}
	if current > 0 {
		back := current - 1
		p.Back = &back
	}
	if current < Last {
		next := current + 1
		p.Next = &next
	}
	return p
}
