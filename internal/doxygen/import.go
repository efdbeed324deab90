package doxygen

import (
	"fmt"

	"github.com/jcdickinson/symdex/internal/nav"
	"github.com/jcdickinson/symdex/internal/symtab"
)

// Include is a subtree Doxygen moved into its own script. Scope is the
// qualified name of the symbol the subtree belongs to.
type Include struct {
	File  string
	Scope string
}

// ImportAnnotated adds the symbols of the annotated class list to t.
// Qualified names follow the nesting of the tree and every nested entry is
// contained in its parent. Subtrees stored in separate scripts are returned
// for the caller to fetch and pass to ImportMembers.
func ImportAnnotated(t *symtab.Table, nodes []*nav.Node) ([]Include, error) {
	return importContainment(t, nil, nodes)
}

// ImportMembers adds the entries of a member script, such as
// class_parsed_tools_1_1_non_matching_coupling.js, under the symbol named
// scope.
func ImportMembers(t *symtab.Table, scope string, nodes []*nav.Node) ([]Include, error) {
	parent, ok := t.Resolve(scope)
	if !ok {
		return nil, fmt.Errorf("%w: member script scope %q", symtab.ErrUnknownSymbol, scope)
	}
	return importContainment(t, &parent, nodes)
}

func importContainment(t *symtab.Table, parent *symtab.Symbol, nodes []*nav.Node) ([]Include, error) {
	var includes []Include
	for _, n := range nodes {
		var parentKind symtab.Kind
		name := n.Label
		if parent != nil {
			parentKind = parent.Kind
			name = parent.QualifiedName + "::" + n.Label
		}
		kind, ok := KindOf(n.Ref, len(n.Children) > 0 || n.Include != "", parentKind)
		if !ok {
			continue
		}
		sym, err := addSymbol(t, name, kind, n.Ref)
		if err != nil {
			return nil, err
		}
		if parent != nil {
			if err := t.AddEdge(symtab.Containment, parent.ID, sym.ID); err != nil {
				return nil, fmt.Errorf("importing %q: %w", name, err)
			}
		}
		if n.Include != "" {
			includes = append(includes, Include{File: n.Include, Scope: sym.QualifiedName})
		}
		nested, err := importContainment(t, &sym, n.Children)
		if err != nil {
			return nil, err
		}
		includes = append(includes, nested...)
	}
	return includes, nil
}

// ImportHierarchy adds the inheritance edges of hierarchy.js to t. Labels
// there are qualified names, and children derive from their parent. An
// entry is matched to a known type by name, then by its page, since
// labels of templates carry their parameters ("Tools::ParsedFunction< dim >")
// where the class list does not. Types the table does not know yet are
// added.
func ImportHierarchy(t *symtab.Table, nodes []*nav.Node) ([]Include, error) {
	return newTypeResolver(t).importInheritance(nil, nodes)
}

// ImportDerived adds the entries of a hierarchy subtree script as classes
// derived from base.
func ImportDerived(t *symtab.Table, base string, nodes []*nav.Node) ([]Include, error) {
	r := newTypeResolver(t)
	b, ok := r.resolve(base, "")
	if !ok {
		return nil, fmt.Errorf("%w: hierarchy script base %q", symtab.ErrUnknownSymbol, base)
	}
	return r.importInheritance(&b, nodes)
}

var typeKinds = []symtab.Kind{symtab.KindClass, symtab.KindStruct, symtab.KindUnion}

type typeResolver struct {
	t      *symtab.Table
	byPage map[string]symtab.ID
}

func newTypeResolver(t *symtab.Table) *typeResolver {
	r := &typeResolver{t: t, byPage: make(map[string]symtab.ID)}
	for _, s := range t.Symbols() {
		if !s.Kind.IsType() {
			continue
		}
		for _, loc := range t.Locations(s.ID) {
			if _, taken := r.byPage[loc.Page]; !taken && loc.Anchor == "" {
				r.byPage[loc.Page] = s.ID
			}
		}
	}
	return r
}

func (r *typeResolver) resolve(name, ref string) (symtab.Symbol, bool) {
	for _, k := range typeKinds {
		if s, ok := r.t.ResolveKind(name, k); ok {
			return s, true
		}
	}
	if page, anchor := SplitRef(ref); page != "" && anchor == "" {
		if id, ok := r.byPage[page]; ok {
			return r.t.Symbol(id)
		}
	}
	return symtab.Symbol{}, false
}

func (r *typeResolver) importInheritance(base *symtab.Symbol, nodes []*nav.Node) ([]Include, error) {
	var includes []Include
	for _, n := range nodes {
		sym, ok := r.resolve(n.Label, n.Ref)
		if !ok {
			kind, known := KindOf(n.Ref, false, "")
			if !known || !kind.IsType() {
				kind = symtab.KindClass
			}
			var err error
			if sym, err = addSymbol(r.t, n.Label, kind, n.Ref); err != nil {
				return nil, err
			}
			if page, anchor := SplitRef(n.Ref); page != "" && anchor == "" && !IsExternal(page) {
				if _, taken := r.byPage[page]; !taken {
					r.byPage[page] = sym.ID
				}
			}
		}
		if base != nil && base.ID != sym.ID {
			if err := r.t.AddEdge(symtab.Inheritance, base.ID, sym.ID); err != nil {
				return nil, fmt.Errorf("importing %q: %w", n.Label, err)
			}
		}
		if n.Include != "" {
			includes = append(includes, Include{File: n.Include, Scope: sym.QualifiedName})
		}
		nested, err := r.importInheritance(&sym, n.Children)
		if err != nil {
			return nil, err
		}
		includes = append(includes, nested...)
	}
	return includes, nil
}

func addSymbol(t *symtab.Table, name string, kind symtab.Kind, ref string) (symtab.Symbol, error) {
	id, err := t.AddSymbol(name, kind)
	if err != nil {
		return symtab.Symbol{}, fmt.Errorf("importing %q: %w", name, err)
	}
	if page, anchor := SplitRef(ref); page != "" && !IsExternal(page) {
		if err := t.AddLocation(id, page, anchor); err != nil {
			return symtab.Symbol{}, err
		}
	}
	sym, _ := t.Symbol(id)
	return sym, nil
}
