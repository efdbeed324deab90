package query

import (
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/jcdickinson/symdex/internal/hierarchy"
	"github.com/jcdickinson/symdex/internal/nav"
	"github.com/jcdickinson/symdex/internal/shard"
	"github.com/jcdickinson/symdex/internal/symtab"
)

// Index is the queryable form of a frozen symbol table. It never changes
// after Build returns, so any number of goroutines may query it. A nil
// *Index is the empty index: every query returns an empty result.
type Index struct {
	table       *symtab.Table
	keyFn       shard.KeyFunc
	shards      shard.Set
	containment []*hierarchy.TreeNode
	inheritance []*hierarchy.TreeNode
	dag         *hierarchy.DAG
	nav         *nav.Tree
}

type options struct {
	keyFn     shard.KeyFunc
	order     hierarchy.Order
	chunkSize int
}

// Option configures Build.
type Option func(*options)

// WithKeyFunc sets the shard key function. The default is shard.DefaultKey.
func WithKeyFunc(fn shard.KeyFunc) Option {
	return func(o *options) { o.keyFn = fn }
}

// WithOrder sets how tree siblings are ordered.
func WithOrder(order hierarchy.Order) Option {
	return func(o *options) { o.order = order }
}

// WithNavChunkSize sets the navigation index chunk size.
func WithNavChunkSize(n int) Option {
	return func(o *options) { o.chunkSize = n }
}

// Build freezes t and derives every view of it. The table must not be
// used for writing afterwards; it belongs to the index.
func Build(t *symtab.Table, opts ...Option) (*Index, error) {
	if t == nil {
		t = symtab.New()
	}
	o := options{keyFn: shard.DefaultKey, chunkSize: nav.DefaultChunkSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.keyFn == nil {
		o.keyFn = shard.DefaultKey
	}

	t.Freeze()
	shards, err := shard.Build(t, o.keyFn)
	if err != nil {
		return nil, err
	}
	containment := hierarchy.BuildContainmentForest(t, o.order)
	dag := hierarchy.NewInheritanceDAG(t)

	ix := &Index{
		table:       t,
		keyFn:       o.keyFn,
		shards:      shards,
		containment: containment,
		inheritance: dag.Forest(o.order),
		dag:         dag,
		nav:         nav.Build(containment, t, o.chunkSize),
	}
	if err := ix.nav.Consistent(); err != nil {
		return nil, fmt.Errorf("%w: %v", symtab.ErrSchemaViolation, err)
	}
	return ix, nil
}

// Table returns the frozen table behind the index.
func (ix *Index) Table() *symtab.Table {
	if ix == nil {
		return nil
	}
	return ix.table
}

// KeyFunc returns the shard key function the index was built with.
func (ix *Index) KeyFunc() shard.KeyFunc {
	if ix == nil || ix.keyFn == nil {
		return shard.DefaultKey
	}
	return ix.keyFn
}

// Len returns the number of symbols.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return ix.table.Len()
}

// Shards returns the search index.
func (ix *Index) Shards() shard.Set {
	if ix == nil {
		return shard.Set{}
	}
	return ix.shards
}

// ContainmentForest returns the namespace/module forest.
func (ix *Index) ContainmentForest() []*hierarchy.TreeNode {
	if ix == nil {
		return nil
	}
	return ix.containment
}

// InheritanceForest returns the class hierarchy view.
func (ix *Index) InheritanceForest() []*hierarchy.TreeNode {
	if ix == nil {
		return nil
	}
	return ix.inheritance
}

// Navigation returns the navigation tree and index.
func (ix *Index) Navigation() *nav.Tree {
	if ix == nil {
		return nil
	}
	return ix.nav
}

// Symbol returns the symbol with the given ID.
func (ix *Index) Symbol(id symtab.ID) (symtab.Symbol, bool) {
	if ix == nil {
		return symtab.Symbol{}, false
	}
	return ix.table.Symbol(id)
}

// Resolve looks a symbol up by exact qualified name.
func (ix *Index) Resolve(name string) (symtab.Symbol, bool) {
	if ix == nil {
		return symtab.Symbol{}, false
	}
	return ix.table.Resolve(name)
}

// Locations returns where a symbol is documented.
func (ix *Index) Locations(id symtab.ID) []symtab.Location {
	if ix == nil {
		return nil
	}
	return ix.table.Locations(id)
}

// HierarchyPath returns the containment path from the root down to id. A
// root yields a one-element path. It reports false when id is unknown.
func (ix *Index) HierarchyPath(id symtab.ID) ([]symtab.Symbol, bool) {
	if ix == nil {
		return nil, false
	}
	sym, ok := ix.table.Symbol(id)
	if !ok {
		return nil, false
	}
	path := []symtab.Symbol{sym}
	cur := id
	for steps := 0; steps < ix.table.Len(); steps++ {
		parent, ok := ix.table.Container(cur)
		if !ok {
			break
		}
		p, _ := ix.table.Symbol(parent)
		path = append(path, p)
		cur = parent
	}
	slices.Reverse(path)
	return path, true
}

// InheritanceChain yields every transitive base class of id, nearest first.
// The sequence can be ranged over once.
func (ix *Index) InheritanceChain(id symtab.ID) iter.Seq[symtab.Symbol] {
	if ix == nil {
		return func(func(symtab.Symbol) bool) {}
	}
	return ix.dag.Ancestors(id)
}

// DerivedClasses yields every transitive derived class of id, nearest
// first. The sequence can be ranged over once.
func (ix *Index) DerivedClasses(id symtab.ID) iter.Seq[symtab.Symbol] {
	if ix == nil {
		return func(func(symtab.Symbol) bool) {}
	}
	return ix.dag.Descendants(id)
}

// Bases returns the direct base classes of id.
func (ix *Index) Bases(id symtab.ID) []symtab.Symbol {
	if ix == nil {
		return nil
	}
	return ix.symbols(ix.dag.Bases(id))
}

// Derived returns the direct derived classes of id.
func (ix *Index) Derived(id symtab.ID) []symtab.Symbol {
	if ix == nil {
		return nil
	}
	return ix.symbols(ix.dag.Derived(id))
}

// Members returns the symbols directly contained in id.
func (ix *Index) Members(id symtab.ID) []symtab.Symbol {
	if ix == nil {
		return nil
	}
	return ix.symbols(ix.table.Children(symtab.Containment, id))
}

func (ix *Index) symbols(ids []symtab.ID) []symtab.Symbol {
	out := make([]symtab.Symbol, 0, len(ids))
	for _, id := range ids {
		if s, ok := ix.table.Symbol(id); ok {
			out = append(out, s)
		}
	}
	return out
}

// Holder publishes a built index to concurrent readers. Publish is the
// only synchronisation point between a build and its readers.
type Holder struct {
	p atomic.Pointer[Index]
}

// Publish makes ix visible to every later Load.
func (h *Holder) Publish(ix *Index) {
	h.p.Store(ix)
}

// Load returns the latest published index, or nil before the first
// Publish. The nil index answers every query with an empty result.
func (h *Holder) Load() *Index {
	return h.p.Load()
}

func lastComponent(text string) (scope []string, last string) {
	parts := symtab.SplitScope(strings.TrimSpace(text))
	if len(parts) == 0 {
		return nil, ""
	}
	return parts[:len(parts)-1], parts[len(parts)-1]
}
