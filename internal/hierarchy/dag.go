package hierarchy

import (
	"iter"

	"github.com/jcdickinson/symdex/internal/symtab"
)

// DAG is the inheritance relation as adjacency lists keyed by symbol ID.
// Multiple inheritance is expected. The edge data cannot rule out cycles,
// so every traversal tracks visited nodes.
type DAG struct {
	t       *symtab.Table
	bases   map[symtab.ID][]symtab.ID
	derived map[symtab.ID][]symtab.ID
}

// NewInheritanceDAG snapshots the inheritance edges of t.
func NewInheritanceDAG(t *symtab.Table) *DAG {
	d := &DAG{
		t:       t,
		bases:   make(map[symtab.ID][]symtab.ID),
		derived: make(map[symtab.ID][]symtab.ID),
	}
	if t == nil {
		return d
	}
	for _, e := range t.Edges() {
		if e.Kind != symtab.Inheritance {
			continue
		}
		d.derived[e.Parent] = append(d.derived[e.Parent], e.Child)
		d.bases[e.Child] = append(d.bases[e.Child], e.Parent)
	}
	return d
}

// Bases returns the direct base classes of id.
func (d *DAG) Bases(id symtab.ID) []symtab.ID {
	if d == nil {
		return nil
	}
	return d.bases[id]
}

// Derived returns the direct derived classes of id.
func (d *DAG) Derived(id symtab.ID) []symtab.ID {
	if d == nil {
		return nil
	}
	return d.derived[id]
}

// Ancestors yields every transitive base of id, breadth-first, each once.
// The start symbol is never yielded, even on a cycle.
//
// The sequence is single-use: its visited set is allocated when Ancestors
// is called, so ranging over it a second time yields nothing. Call
// Ancestors again to restart.
func (d *DAG) Ancestors(id symtab.ID) iter.Seq[symtab.Symbol] {
	if d == nil {
		return func(func(symtab.Symbol) bool) {}
	}
	return d.bfs(id, d.bases)
}

// Descendants is Ancestors over the derived relation.
func (d *DAG) Descendants(id symtab.ID) iter.Seq[symtab.Symbol] {
	if d == nil {
		return func(func(symtab.Symbol) bool) {}
	}
	return d.bfs(id, d.derived)
}

func (d *DAG) bfs(start symtab.ID, next map[symtab.ID][]symtab.ID) iter.Seq[symtab.Symbol] {
	visited := map[symtab.ID]bool{start: true}
	queue := []symtab.ID{start}
	used := false
	return func(yield func(symtab.Symbol) bool) {
		if used {
			return
		}
		used = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, n := range next[cur] {
				if visited[n] {
					continue
				}
				visited[n] = true
				queue = append(queue, n)
				sym, ok := d.t.Symbol(n)
				if !ok {
					continue
				}
				if !yield(sym) {
					return
				}
			}
		}
	}
}

// Roots returns the symbols with no base class but at least one derived
// class, in ID order.
func (d *DAG) Roots() []symtab.Symbol {
	if d == nil || d.t == nil {
		return nil
	}
	var out []symtab.Symbol
	for _, sym := range d.t.Symbols() {
		if len(d.bases[sym.ID]) == 0 && len(d.derived[sym.ID]) > 0 {
			out = append(out, sym)
		}
	}
	return out
}

// Forest renders the DAG as the class hierarchy view: every type without a
// base class is a root and each derived class is repeated under each of its
// bases. A class that would appear inside its own subtree is cut off there.
func (d *DAG) Forest(order Order) []*TreeNode {
	if d == nil || d.t == nil {
		return nil
	}
	var roots []*TreeNode
	for _, sym := range d.t.Symbols() {
		if len(d.bases[sym.ID]) > 0 {
			continue
		}
		if !sym.Kind.IsType() && len(d.derived[sym.ID]) == 0 {
			continue
		}
		roots = append(roots, d.subtree(sym, order, map[symtab.ID]bool{}))
	}
	sortNodes(roots, order)
	return roots
}

func (d *DAG) subtree(sym symtab.Symbol, order Order, onPath map[symtab.ID]bool) *TreeNode {
	node := &TreeNode{Symbol: sym}
	onPath[sym.ID] = true
	for _, id := range d.derived[sym.ID] {
		if onPath[id] {
			continue
		}
		child, ok := d.t.Symbol(id)
		if !ok {
			continue
		}
		node.Children = append(node.Children, d.subtree(child, order, onPath))
	}
	delete(onPath, sym.ID)
	sortNodes(node.Children, order)
	return node
}
