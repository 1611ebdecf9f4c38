package tree

import (
	"encoding/json"
	"strings"
)

// Identifier prefixes of the three node kinds.
const (
	PrefixOrganSystem = "OS:"
	PrefixGroup       = "GR:"
	PrefixRow         = "ROW:"
)

// Node is one of *OrganSystemNode, *GroupNode or *LeafNode.
type Node interface {
	ID() string
	Text() string
	Children() []Node
	isNode()
}

// widget is the {label, value, children} shape the checkbox tree renders.
type widget struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Children []Node `json:"children,omitempty"`
}

type OrganSystemNode struct {
	Name   string
	Groups []*GroupNode
}

func (n *OrganSystemNode) ID() string   { return PrefixOrganSystem + n.Name }
func (n *OrganSystemNode) Text() string { return n.Name }
func (n *OrganSystemNode) isNode()      {}

func (n *OrganSystemNode) Children() []Node {
	out := make([]Node, len(n.Groups))
	for i, g := range n.Groups {
		out[i] = g
	}
	return out
}

func (n *OrganSystemNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(widget{Label: n.Text(), Value: n.ID(), Children: n.Children()})
}

type GroupNode struct {
	OrganSystem string
	Name        string
	Leaves      []*LeafNode
}

func (n *GroupNode) ID() string   { return PrefixGroup + n.OrganSystem + "/" + n.Name }
func (n *GroupNode) Text() string { return n.Name }
func (n *GroupNode) isNode()      {}

func (n *GroupNode) Children() []Node {
	out := make([]Node, len(n.Leaves))
	for i, l := range n.Leaves {
		out[i] = l
	}
	return out
}

func (n *GroupNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(widget{Label: n.Text(), Value: n.ID(), Children: n.Children()})
}

// LeafNode is a selectable variable. Its identifier depends only on the
// row key, so it survives relabelling and re-filtering.
type LeafNode struct {
	RowKey string
	Label  string
}

func (n *LeafNode) ID() string       { return LeafID(n.RowKey) }
func (n *LeafNode) Text() string     { return n.Label }
func (n *LeafNode) Children() []Node { return nil }
func (n *LeafNode) isNode()          {}

func (n *LeafNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(widget{Label: n.Label, Value: n.ID()})
}

// LeafID returns the selection identifier of a row key.
func LeafID(rowKey string) string { return PrefixRow + rowKey }

// RowKey extracts the row key from a leaf identifier.
func RowKey(leafID string) (string, bool) {
	if !strings.HasPrefix(leafID, PrefixRow) {
		return "", false
	}
	key := strings.TrimPrefix(leafID, PrefixRow)
	return key, key != ""
}

// Walk calls fn for every node depth-first, parents before children.
func Walk(nodes []Node, fn func(Node)) {
	for _, n := range nodes {
		fn(n)
		Walk(n.Children(), fn)
	}
}
