package artifact

import (
	"encoding/json"
	"fmt"

	"github.com/jcdickinson/symdex/internal/hierarchy"
	"github.com/jcdickinson/symdex/internal/nav"
	"github.com/jcdickinson/symdex/internal/symtab"
)

// treeNode is the wire form of a nav.Node: [label, ref|null, children|null].
type treeNode struct {
	*nav.Node
}

func (n treeNode) MarshalJSON() ([]byte, error) {
	var ref any
	if n.Ref != "" {
		ref = n.Ref
	}
	var children any
	switch {
	case len(n.Children) > 0:
		children = wrapNodes(n.Children)
	case n.Include != "":
		children = n.Include
	}
	return json.Marshal([]any{n.Label, ref, children})
}

func (n *treeNode) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("tree node: %w", err)
	}
	if len(raw) != 3 {
		return fmt.Errorf("tree node: want [label, ref, children], got %d fields", len(raw))
	}
	n.Node = &nav.Node{}
	if err := json.Unmarshal(raw[0], &n.Label); err != nil {
		return fmt.Errorf("tree node label: %w", err)
	}
	var ref *string
	if err := json.Unmarshal(raw[1], &ref); err != nil {
		return fmt.Errorf("tree node %q ref: %w", n.Label, err)
	}
	if ref != nil {
		n.Ref = *ref
	}

	var probe any
	if err := json.Unmarshal(raw[2], &probe); err != nil {
		return fmt.Errorf("tree node %q children: %w", n.Label, err)
	}
	switch v := probe.(type) {
	case nil:
	case string:
		n.Include = v
	case []any:
		var children []treeNode
		if err := json.Unmarshal(raw[2], &children); err != nil {
			return err
		}
		n.Children = unwrapNodes(children)
	default:
		return fmt.Errorf("tree node %q: unexpected children %T", n.Label, v)
	}
	return nil
}

func wrapNodes(nodes []*nav.Node) []treeNode {
	out := make([]treeNode, len(nodes))
	for i, n := range nodes {
		out[i] = treeNode{n}
	}
	return out
}

func unwrapNodes(nodes []treeNode) []*nav.Node {
	out := make([]*nav.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Node
	}
	return out
}

// EncodeTree renders a forest in the nested [label, ref|null,
// children|null] form. A leaf has null children.
func EncodeTree(roots []*nav.Node) ([]byte, error) {
	return json.Marshal(wrapNodes(roots))
}

// DecodeTree parses a hierarchy file. JS-wrapped files are accepted, and a
// string in the children slot is kept as Node.Include.
func DecodeTree(data []byte) ([]*nav.Node, error) {
	_, body, err := UnwrapJS(data)
	if err != nil {
		return nil, fmt.Errorf("decoding tree: %w", err)
	}
	var nodes []treeNode
	if err := json.Unmarshal(body, &nodes); err != nil {
		return nil, fmt.Errorf("decoding tree: %w", err)
	}
	return unwrapNodes(nodes), nil
}

// Label picks the text shown for a symbol in a tree file.
type Label func(symtab.Symbol) string

// DisplayLabel labels nodes with their display name, as nested views do.
func DisplayLabel(s symtab.Symbol) string { return s.DisplayName() }

// QualifiedLabel labels nodes with their qualified name, as the flat class
// hierarchy does.
func QualifiedLabel(s symtab.Symbol) string { return s.QualifiedName }

// Nodes converts a hierarchy forest into tree nodes, using the first
// location of each symbol as its ref.
func Nodes(forest []*hierarchy.TreeNode, locs nav.Locator, label Label) []*nav.Node {
	if len(forest) == 0 {
		return []*nav.Node{}
	}
	out := make([]*nav.Node, len(forest))
	for i, tn := range forest {
		n := &nav.Node{Label: label(tn.Symbol)}
		if l := locs.Locations(tn.Symbol.ID); len(l) > 0 {
			n.Ref = l[0].String()
		}
		if len(tn.Children) > 0 {
			n.Children = Nodes(tn.Children, locs, label)
		}
		out[i] = n
	}
	return out
}
