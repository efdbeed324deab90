// Package nav builds the table-of-contents view of a documentation
// snapshot: a tree mirroring the containment forest plus a flat, preorder
// index of page references used for next/previous browsing.
package nav

import (
	"fmt"

	"github.com/jcdickinson/symdex/internal/hierarchy"
	"github.com/jcdickinson/symdex/internal/symtab"
)

// DefaultChunkSize is how many index entries share one chunk marker.
const DefaultChunkSize = 250

// Node is one entry of the navigation tree.
type Node struct {
	Label    string
	Ref      string
	Children []*Node
	// Include names a separate file holding the children, as Doxygen does
	// for large subtrees. It is only set on decoded trees.
	Include string
}

// Locator returns where a symbol is documented. *symtab.Table implements it.
type Locator interface {
	Locations(id symtab.ID) []symtab.Location
}

// Tree is the navigation tree and its flat index.
type Tree struct {
	Roots     []*Node
	Index     []string
	chunkSize int
	pos       map[string]int
}

// Build mirrors forest into a navigation tree. Node refs are the first
// documented location of each symbol; symbols without a location get an
// empty ref and are left out of the index. A ref already in the index is
// not added again.
func Build(forest []*hierarchy.TreeNode, locs Locator, chunkSize int) *Tree {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	t := &Tree{chunkSize: chunkSize, pos: make(map[string]int)}
	for _, root := range forest {
		t.Roots = append(t.Roots, t.mirror(root, locs))
	}
	return t
}

func (t *Tree) mirror(tn *hierarchy.TreeNode, locs Locator) *Node {
	n := &Node{Label: tn.Symbol.DisplayName()}
	if locs != nil {
		if l := locs.Locations(tn.Symbol.ID); len(l) > 0 {
			n.Ref = l[0].String()
		}
	}
	if n.Ref != "" {
		if _, dup := t.pos[n.Ref]; !dup {
			t.pos[n.Ref] = len(t.Index)
			t.Index = append(t.Index, n.Ref)
		}
	}
	for _, c := range tn.Children {
		n.Children = append(n.Children, t.mirror(c, locs))
	}
	return n
}

// Next returns the ref following ref in the index.
func (t *Tree) Next(ref string) (string, bool) {
	if t == nil {
		return "", false
	}
	i, ok := t.pos[ref]
	if !ok || i+1 >= len(t.Index) {
		return "", false
	}
	return t.Index[i+1], true
}

// Prev returns the ref preceding ref in the index.
func (t *Tree) Prev(ref string) (string, bool) {
	if t == nil {
		return "", false
	}
	i, ok := t.pos[ref]
	if !ok || i == 0 {
		return "", false
	}
	return t.Index[i-1], true
}

// Position returns the preorder position of ref in the index.
func (t *Tree) Position(ref string) (int, bool) {
	if t == nil {
		return 0, false
	}
	i, ok := t.pos[ref]
	return i, ok
}

// Chunks returns every chunk-size-th index entry, starting with the first.
func (t *Tree) Chunks() []string {
	if t == nil {
		return nil
	}
	var out []string
	for i := 0; i < len(t.Index); i += t.chunkSize {
		out = append(out, t.Index[i])
	}
	return out
}

// ChunkSize returns the chunk size the tree was built with.
func (t *Tree) ChunkSize() int {
	if t == nil {
		return DefaultChunkSize
	}
	return t.chunkSize
}

// Consistent checks that every index entry names a node of the tree and
// that no entry is repeated.
func (t *Tree) Consistent() error {
	if t == nil {
		return nil
	}
	refs := make(map[string]bool)
	var walk func(ns []*Node)
	walk = func(ns []*Node) {
		for _, n := range ns {
			if n.Ref != "" {
				refs[n.Ref] = true
			}
			walk(n.Children)
		}
	}
	walk(t.Roots)

	seen := make(map[string]bool, len(t.Index))
	for i, ref := range t.Index {
		if !refs[ref] {
			return fmt.Errorf("navigation index entry %d (%s) has no tree node", i, ref)
		}
		if seen[ref] {
			return fmt.Errorf("navigation index entry %d (%s) is repeated", i, ref)
		}
		seen[ref] = true
	}
	return nil
}

// New reassembles a tree from decoded parts, e.g. a navigation artifact.
func New(roots []*Node, index []string, chunkSize int) *Tree {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	t := &Tree{Roots: roots, Index: index, chunkSize: chunkSize, pos: make(map[string]int, len(index))}
	for i, ref := range index {
		if _, dup := t.pos[ref]; !dup {
			t.pos[ref] = i
		}
	}
	return t
}
