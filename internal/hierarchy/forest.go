package hierarchy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jcdickinson/symdex/internal/symtab"
)

// Order controls how sibling nodes are arranged.
type Order int

const (
	// ByDeclaration keeps siblings in symbol insertion order.
	ByDeclaration Order = iota
	// ByName sorts siblings by display name.
	ByName
)

func (o Order) String() string {
	if o == ByName {
		return "name"
	}
	return "declaration"
}

// ParseOrder accepts "declaration" (or "") and "name".
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "declaration", "decl":
		return ByDeclaration, nil
	case "name":
		return ByName, nil
	}
	return ByDeclaration, fmt.Errorf("unknown child order %q", s)
}

// TreeNode is one symbol in a containment or inheritance tree.
type TreeNode struct {
	Symbol   symtab.Symbol
	Children []*TreeNode
}

// BuildContainmentForest returns one tree per symbol without a containment
// parent. The table's containment relation is acyclic, so every symbol is
// reachable from exactly one root.
func BuildContainmentForest(t *symtab.Table, order Order) []*TreeNode {
	if t == nil {
		return nil
	}
	var roots []*TreeNode
	for _, sym := range t.Symbols() {
		if _, ok := t.Container(sym.ID); ok {
			continue
		}
		roots = append(roots, containmentTree(t, sym, order))
	}
	sortNodes(roots, order)
	return roots
}

func containmentTree(t *symtab.Table, sym symtab.Symbol, order Order) *TreeNode {
	node := &TreeNode{Symbol: sym}
	for _, id := range t.Children(symtab.Containment, sym.ID) {
		child, ok := t.Symbol(id)
		if !ok {
			continue
		}
		node.Children = append(node.Children, containmentTree(t, child, order))
	}
	sortNodes(node.Children, order)
	return node
}

func sortNodes(nodes []*TreeNode, order Order) {
	if order == ByName {
		slices.SortStableFunc(nodes, func(a, b *TreeNode) int {
			if c := strings.Compare(a.Symbol.DisplayName(), b.Symbol.DisplayName()); c != 0 {
				return c
			}
			return int(a.Symbol.ID) - int(b.Symbol.ID)
		})
		return
	}
	slices.SortStableFunc(nodes, func(a, b *TreeNode) int {
		return int(a.Symbol.ID) - int(b.Symbol.ID)
	})
}

// Walk visits every node of the forest in preorder. depth is 0 for roots.
func Walk(forest []*TreeNode, fn func(n *TreeNode, depth int)) {
	var visit func(n *TreeNode, depth int)
	visit = func(n *TreeNode, depth int) {
		fn(n, depth)
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	for _, root := range forest {
		visit(root, 0)
	}
}

// Count returns the number of nodes in the forest.
func Count(forest []*TreeNode) int {
	n := 0
	Walk(forest, func(*TreeNode, int) { n++ })
	return n
}
