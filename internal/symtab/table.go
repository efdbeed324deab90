package symtab

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
)

type symbolKey struct {
	name string
	kind Kind
}

type locationKey struct {
	id  ID
	loc Location
}

type edgeKey struct {
	kind   EdgeKind
	parent ID
	child  ID
}

// Table holds the symbols, locations and relations of one documentation
// build. It is populated by a single builder, frozen, and then only read;
// reads of a frozen table are safe from any number of goroutines.
type Table struct {
	symbols   []Symbol
	byKey     map[symbolKey]ID
	byName    map[string][]ID
	locations map[ID][]Location
	locSeen   map[locationKey]struct{}
	edges     map[edgeKey]struct{}
	parents   [2]map[ID][]ID
	children  [2]map[ID][]ID
	container map[ID]ID
	frozen    bool
}

// New returns an empty, mutable table.
func New() *Table {
	return &Table{
		byKey:     make(map[symbolKey]ID),
		byName:    make(map[string][]ID),
		locations: make(map[ID][]Location),
		locSeen:   make(map[locationKey]struct{}),
		edges:     make(map[edgeKey]struct{}),
		parents:   [2]map[ID][]ID{make(map[ID][]ID), make(map[ID][]ID)},
		children:  [2]map[ID][]ID{make(map[ID][]ID), make(map[ID][]ID)},
		container: make(map[ID]ID),
	}
}

// SymbolOption sets optional symbol metadata.
type SymbolOption func(*Symbol)

// WithTemplateParams records the template parameter list of a symbol.
func WithTemplateParams(params ...string) SymbolOption {
	return func(s *Symbol) {
		s.TemplateParams = append([]string(nil), params...)
	}
}

// AddSymbol inserts a symbol and returns its ID. Inserting the same
// (qualifiedName, kind) pair again with identical metadata returns the
// existing ID; conflicting metadata fails with ErrDuplicateSymbol.
func (t *Table) AddSymbol(qualifiedName string, kind Kind, opts ...SymbolOption) (ID, error) {
	if t.frozen {
		return 0, ErrFrozen
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return 0, err
	}

	qualifiedName = strings.TrimSpace(qualifiedName)
	candidate := Symbol{QualifiedName: qualifiedName, Kind: kind}
	for _, opt := range opts {
		opt(&candidate)
	}

	key := symbolKey{name: qualifiedName, kind: kind}
	if id, ok := t.byKey[key]; ok {
		existing := t.symbols[id]
		if !slices.Equal(existing.TemplateParams, candidate.TemplateParams) {
			return 0, fmt.Errorf("%w: %s %q template parameters %v conflict with %v",
				ErrDuplicateSymbol, kind, qualifiedName, candidate.TemplateParams, existing.TemplateParams)
		}
		return id, nil
	}

	candidate.ID = ID(len(t.symbols))
	t.symbols = append(t.symbols, candidate)
	t.byKey[key] = candidate.ID
	t.byName[qualifiedName] = append(t.byName[qualifiedName], candidate.ID)
	return candidate.ID, nil
}

// AddLocation records a documentation location. Locations form a set per
// symbol; adding the same (page, anchor) twice stores it once.
func (t *Table) AddLocation(id ID, page, anchor string) error {
	if t.frozen {
		return ErrFrozen
	}
	if !t.has(id) {
		return fmt.Errorf("%w: location %s#%s references id %d", ErrUnknownSymbol, page, anchor, id)
	}
	loc := Location{Page: page, Anchor: anchor}
	key := locationKey{id: id, loc: loc}
	if _, ok := t.locSeen[key]; ok {
		return nil
	}
	t.locSeen[key] = struct{}{}
	t.locations[id] = append(t.locations[id], loc)
	return nil
}

// AddEdge records a parent -> child relation of the given kind.
func (t *Table) AddEdge(kind EdgeKind, parent, child ID) error {
	if t.frozen {
		return ErrFrozen
	}
	if kind != Inheritance && kind != Containment {
		return fmt.Errorf("%w: edge kind %d", ErrSchemaViolation, kind)
	}
	if !t.has(parent) {
		return fmt.Errorf("%w: %s edge parent id %d", ErrUnknownSymbol, kind, parent)
	}
	if !t.has(child) {
		return fmt.Errorf("%w: %s edge child id %d", ErrUnknownSymbol, kind, child)
	}

	key := edgeKey{kind: kind, parent: parent, child: child}
	if _, ok := t.edges[key]; ok {
		return nil
	}

	if kind == Containment {
		if existing, ok := t.container[child]; ok {
			return fmt.Errorf("%w: %s is already contained in %s, cannot add %s",
				ErrMultipleContainers, t.symbols[child].QualifiedName,
				t.symbols[existing].QualifiedName, t.symbols[parent].QualifiedName)
		}
		if t.containmentReaches(parent, child) {
			return fmt.Errorf("%w: containment of %s in %s would create a cycle",
				ErrSchemaViolation, t.symbols[child].QualifiedName, t.symbols[parent].QualifiedName)
		}
		t.container[child] = parent
	}

	t.edges[key] = struct{}{}
	t.parents[kind][child] = append(t.parents[kind][child], parent)
	t.children[kind][parent] = append(t.children[kind][parent], child)
	return nil
}

// containmentReaches reports whether walking up the containers of from
// reaches target (from itself included).
func (t *Table) containmentReaches(from, target ID) bool {
	cur := from
	for steps := 0; steps <= len(t.symbols); steps++ {
		if cur == target {
			return true
		}
		next, ok := t.container[cur]
		if !ok {
			return false
		}
		cur = next
	}
	return true
}

// Freeze makes the table read-only. It cannot be undone.
func (t *Table) Freeze() {
	t.frozen = true
}

// Frozen reports whether Freeze has been called.
func (t *Table) Frozen() bool {
	return t.frozen
}

func (t *Table) has(id ID) bool {
	return id >= 0 && int(id) < len(t.symbols)
}

// Len returns the number of symbols.
func (t *Table) Len() int {
	return len(t.symbols)
}

// Symbol returns the symbol with the given ID.
func (t *Table) Symbol(id ID) (Symbol, bool) {
	if !t.has(id) {
		return Symbol{}, false
	}
	return t.symbols[id], true
}

// Symbols returns all symbols in ID order.
func (t *Table) Symbols() []Symbol {
	out := make([]Symbol, len(t.symbols))
	copy(out, t.symbols)
	return out
}

// Resolve looks a symbol up by qualified name. When several kinds share the
// name, the one declared first wins.
func (t *Table) Resolve(qualifiedName string) (Symbol, bool) {
	ids := t.byName[strings.TrimSpace(qualifiedName)]
	if len(ids) == 0 {
		return Symbol{}, false
	}
	return t.symbols[ids[0]], true
}

// ResolveKind looks a symbol up by its exact (name, kind) identity.
func (t *Table) ResolveKind(qualifiedName string, kind Kind) (Symbol, bool) {
	id, ok := t.byKey[symbolKey{name: strings.TrimSpace(qualifiedName), kind: kind}]
	if !ok {
		return Symbol{}, false
	}
	return t.symbols[id], true
}

// Locations returns the symbol's locations sorted by page, then anchor.
func (t *Table) Locations(id ID) []Location {
	locs := t.locations[id]
	if len(locs) == 0 {
		return nil
	}
	out := make([]Location, len(locs))
	copy(out, locs)
	slices.SortFunc(out, compareLocations)
	return out
}

func compareLocations(a, b Location) int {
	if c := strings.Compare(a.Page, b.Page); c != 0 {
		return c
	}
	return strings.Compare(a.Anchor, b.Anchor)
}

// Container returns the containment parent of id, if any.
func (t *Table) Container(id ID) (ID, bool) {
	p, ok := t.container[id]
	return p, ok
}

// Parents returns the direct parents of id for the given relation, in
// insertion order.
func (t *Table) Parents(kind EdgeKind, id ID) []ID {
	if kind != Inheritance && kind != Containment {
		return nil
	}
	return slices.Clone(t.parents[kind][id])
}

// Children returns the direct children of id for the given relation, in
// insertion order.
func (t *Table) Children(kind EdgeKind, id ID) []ID {
	if kind != Inheritance && kind != Containment {
		return nil
	}
	return slices.Clone(t.children[kind][id])
}

// Edge is one recorded relation, as returned by Edges.
type Edge struct {
	Kind   EdgeKind
	Parent ID
	Child  ID
}

// Edges returns every edge ordered by kind, parent, child.
func (t *Table) Edges() []Edge {
	out := make([]Edge, 0, len(t.edges))
	for k := range t.edges {
		out = append(out, Edge{Kind: k.kind, Parent: k.parent, Child: k.child})
	}
	slices.SortFunc(out, func(a, b Edge) int {
		if a.Kind != b.Kind {
			return int(a.Kind) - int(b.Kind)
		}
		if a.Parent != b.Parent {
			return int(a.Parent) - int(b.Parent)
		}
		return int(a.Child) - int(b.Child)
	})
	return out
}

// Validate re-checks every invariant of the table and returns all violations
// wrapped in ErrSchemaViolation. Insertion already enforces them, so a
// failure here means the table was corrupted.
func (t *Table) Validate() error {
	var result *multierror.Error

	for i, s := range t.symbols {
		if s.ID != ID(i) {
			result = multierror.Append(result, fmt.Errorf("symbol %q has id %d at position %d", s.QualifiedName, s.ID, i))
		}
		if _, err := ParseKind(string(s.Kind)); err != nil {
			result = multierror.Append(result, fmt.Errorf("symbol %q: %v", s.QualifiedName, err))
		}
	}
	for id := range t.locations {
		if !t.has(id) {
			result = multierror.Append(result, fmt.Errorf("location references unknown id %d", id))
		}
	}
	for e := range t.edges {
		if !t.has(e.parent) || !t.has(e.child) {
			result = multierror.Append(result, fmt.Errorf("%s edge %d -> %d references unknown symbol", e.kind, e.parent, e.child))
		}
	}
	for child, ps := range t.parents[Containment] {
		if len(ps) > 1 {
			result = multierror.Append(result, fmt.Errorf("symbol id %d has %d containers", child, len(ps)))
		}
	}
	for child, parent := range t.container {
		if t.containmentReaches(parent, child) {
			result = multierror.Append(result, fmt.Errorf("containment cycle through id %d", child))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return nil
}
