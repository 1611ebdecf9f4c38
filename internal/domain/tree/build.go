package tree

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kim/varmap/internal/domain/mapping"
)

// ErrPrecondition is matched by every *PreconditionError.
var ErrPrecondition = errors.New("tree precondition violated")

// PreconditionError reports input the builder refuses to work with. It
// signals a caller bug, never bad user data.
type PreconditionError struct {
	Index  int
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("tree: row %d: %s", e.Index, e.Reason)
}

func (e *PreconditionError) Is(target error) bool { return target == ErrPrecondition }

// UnnamedVariable labels leaves whose row has no variable name.
const UnnamedVariable = "(Unnamed variable)"

type Options struct {
	// AnnotateSource appends the inferred source system to leaf labels.
	AnnotateSource bool
}

// Tree is the organ system -> group -> variable hierarchy of a master view.
type Tree struct {
	Nodes  []*OrganSystemNode
	Lookup map[string]mapping.Row
}

// Roots returns the top-level nodes.
func (t *Tree) Roots() []Node {
	out := make([]Node, len(t.Nodes))
	for i, n := range t.Nodes {
		out[i] = n
	}
	return out
}

// LeafIDs returns every leaf identifier in render order.
func (t *Tree) LeafIDs() []string {
	var ids []string
	Walk(t.Roots(), func(n Node) {
		if l, ok := n.(*LeafNode); ok {
			ids = append(ids, l.ID())
		}
	})
	return ids
}

// RowKeys returns the set of row keys in the tree.
func (t *Tree) RowKeys() map[string]struct{} {
	keys := make(map[string]struct{}, len(t.Lookup))
	for _, r := range t.Lookup {
		keys[r.Key] = struct{}{}
	}
	return keys
}

// ExpandAll returns the sorted identifiers of every node with children.
func ExpandAll(t *Tree) []string {
	var ids []string
	Walk(t.Roots(), func(n Node) {
		if len(n.Children()) > 0 {
			ids = append(ids, n.ID())
		}
	})
	sort.Strings(ids)
	return ids
}

func label(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return mapping.DefaultGroup
	}
	return s
}

func leafLabel(r mapping.Row, opts Options) string {
	text := strings.TrimSpace(r.Variable)
	if text == "" {
		text = UnnamedVariable
	}
	if opts.AnnotateSource {
		if src := r.Source(); src != "" {
			text += " (" + src + ")"
		}
	}
	return text
}

// Build groups keyed rows into a tree. Duplicate keys keep their last
// occurrence. Ordering is ascending by (organ system, group, variable) and
// stable for equal triples. Rows without a key are a *PreconditionError.
func Build(rows []mapping.Row, opts Options) (*Tree, error) {
	for i, r := range rows {
		if strings.TrimSpace(r.Key) == "" {
			return nil, &PreconditionError{Index: i, Reason: "row has no key"}
		}
	}

	sorted := mapping.DedupeKeepLast(rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if oa, ob := label(a.OrganSystem), label(b.OrganSystem); oa != ob {
			return oa < ob
		}
		if ga, gb := label(a.Group), label(b.Group); ga != gb {
			return ga < gb
		}
		return strings.TrimSpace(a.Variable) < strings.TrimSpace(b.Variable)
	})

	t := &Tree{Lookup: make(map[string]mapping.Row, len(sorted))}
	var osNode *OrganSystemNode
	var grp *GroupNode
	for _, r := range sorted {
		osName, grName := label(r.OrganSystem), label(r.Group)
		if osNode == nil || osNode.Name != osName {
			osNode = &OrganSystemNode{Name: osName}
			t.Nodes = append(t.Nodes, osNode)
			grp = nil
		}
		if grp == nil || grp.Name != grName {
			grp = &GroupNode{OrganSystem: osName, Name: grName}
			osNode.Groups = append(osNode.Groups, grp)
		}
		leaf := &LeafNode{RowKey: r.Key, Label: leafLabel(r, opts)}
		grp.Leaves = append(grp.Leaves, leaf)
		t.Lookup[leaf.ID()] = r
	}
	return t, nil
}
