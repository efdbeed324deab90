package hierarchy

import (
	"slices"
	"testing"

	"github.com/jcdickinson/symdex/internal/symtab"
)

type fixture struct {
	tbl *symtab.Table
	ids map[string]symtab.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{tbl: symtab.New(), ids: make(map[string]symtab.ID)}
}

func (f *fixture) add(t *testing.T, name string, kind symtab.Kind) symtab.ID {
	t.Helper()
	id, err := f.tbl.AddSymbol(name, kind)
	if err != nil {
		t.Fatal(err)
	}
	f.ids[name] = id
	return id
}

func (f *fixture) edge(t *testing.T, kind symtab.EdgeKind, parent, child string) {
	t.Helper()
	if err := f.tbl.AddEdge(kind, f.ids[parent], f.ids[child]); err != nil {
		t.Fatal(err)
	}
}

func names(seq func(func(symtab.Symbol) bool)) []string {
	var out []string
	for s := range seq {
		out = append(out, s.QualifiedName)
	}
	return out
}

func TestBuildContainmentForest(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.add(t, "PDEs", symtab.KindNamespace)
	f.add(t, "PDEs::Serial", symtab.KindNamespace)
	f.add(t, "PDEs::Serial::Poisson", symtab.KindClass)
	f.add(t, "PDEs::Serial::HeatEquation", symtab.KindClass)
	f.add(t, "ParsedTools", symtab.KindNamespace)
	f.add(t, "Doxygen", symtab.KindPage)
	f.edge(t, symtab.Containment, "PDEs", "PDEs::Serial")
	f.edge(t, symtab.Containment, "PDEs::Serial", "PDEs::Serial::Poisson")
	f.edge(t, symtab.Containment, "PDEs::Serial", "PDEs::Serial::HeatEquation")

	t.Run("by_declaration", func(t *testing.T) {
		t.Parallel()
		forest := BuildContainmentForest(f.tbl, ByDeclaration)
		var roots []string
		for _, r := range forest {
			roots = append(roots, r.Symbol.QualifiedName)
		}
		if !slices.Equal(roots, []string{"PDEs", "ParsedTools", "Doxygen"}) {
			t.Errorf("roots = %v", roots)
		}
		serial := forest[0].Children[0]
		if serial.Children[0].Symbol.QualifiedName != "PDEs::Serial::Poisson" {
			t.Errorf("first child = %s", serial.Children[0].Symbol)
		}
		if Count(forest) != f.tbl.Len() {
			t.Errorf("Count = %d, want %d", Count(forest), f.tbl.Len())
		}
	})

	t.Run("by_name", func(t *testing.T) {
		t.Parallel()
		forest := BuildContainmentForest(f.tbl, ByName)
		if forest[0].Symbol.QualifiedName != "Doxygen" {
			t.Errorf("first root = %s", forest[0].Symbol)
		}
		var serial *TreeNode
		for _, r := range forest {
			if r.Symbol.QualifiedName == "PDEs" {
				serial = r.Children[0]
			}
		}
		if serial == nil || serial.Children[0].Symbol.DisplayName() != "HeatEquation" {
			t.Errorf("children not sorted by name")
		}
	})

	t.Run("walk_depth", func(t *testing.T) {
		t.Parallel()
		depths := map[string]int{}
		Walk(BuildContainmentForest(f.tbl, ByDeclaration), func(n *TreeNode, depth int) {
			depths[n.Symbol.QualifiedName] = depth
		})
		if depths["PDEs::Serial::Poisson"] != 2 || depths["ParsedTools"] != 0 {
			t.Errorf("depths = %v", depths)
		}
	})
}

func TestBuildContainmentForest_Empty(t *testing.T) {
	t.Parallel()
	if forest := BuildContainmentForest(symtab.New(), ByDeclaration); len(forest) != 0 {
		t.Errorf("expected no roots, got %d", len(forest))
	}
	if forest := BuildContainmentForest(nil, ByName); forest != nil {
		t.Errorf("expected nil forest")
	}
}

// diamond:  Base -> Left, Base -> Right, Left -> Bottom, Right -> Bottom
func diamond(t *testing.T) *fixture {
	f := newFixture(t)
	f.add(t, "Base", symtab.KindClass)
	f.add(t, "Left", symtab.KindClass)
	f.add(t, "Right", symtab.KindClass)
	f.add(t, "Bottom", symtab.KindClass)
	f.add(t, "Lonely", symtab.KindStruct)
	f.edge(t, symtab.Inheritance, "Base", "Left")
	f.edge(t, symtab.Inheritance, "Base", "Right")
	f.edge(t, symtab.Inheritance, "Left", "Bottom")
	f.edge(t, symtab.Inheritance, "Right", "Bottom")
	return f
}

func TestDAG_Ancestors(t *testing.T) {
	t.Parallel()
	f := diamond(t)
	d := NewInheritanceDAG(f.tbl)

	got := names(d.Ancestors(f.ids["Bottom"]))
	if !slices.Equal(got, []string{"Left", "Right", "Base"}) {
		t.Errorf("Ancestors(Bottom) = %v", got)
	}
	got = names(d.Descendants(f.ids["Base"]))
	if !slices.Equal(got, []string{"Left", "Right", "Bottom"}) {
		t.Errorf("Descendants(Base) = %v", got)
	}
	if got := names(d.Ancestors(f.ids["Lonely"])); len(got) != 0 {
		t.Errorf("Ancestors(Lonely) = %v", got)
	}
	if got := names(d.Ancestors(999)); len(got) != 0 {
		t.Errorf("Ancestors(unknown) = %v", got)
	}
}

func TestDAG_SingleUse(t *testing.T) {
	t.Parallel()
	f := diamond(t)
	d := NewInheritanceDAG(f.tbl)

	seq := d.Ancestors(f.ids["Bottom"])
	if n := len(names(seq)); n != 3 {
		t.Fatalf("first pass yielded %d", n)
	}
	if n := len(names(seq)); n != 0 {
		t.Errorf("second pass yielded %d, want 0", n)
	}

	seq = d.Descendants(f.ids["Base"])
	for range seq {
		break
	}
	if n := len(names(seq)); n != 0 {
		t.Errorf("partially consumed sequence restarted with %d items", n)
	}

	if n := len(names(d.Ancestors(f.ids["Bottom"]))); n != 3 {
		t.Errorf("fresh call yielded %d", n)
	}
}

func TestDAG_Cycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.add(t, "A", symtab.KindClass)
	f.add(t, "B", symtab.KindClass)
	f.add(t, "C", symtab.KindClass)
	f.edge(t, symtab.Inheritance, "A", "B")
	f.edge(t, symtab.Inheritance, "B", "C")
	f.edge(t, symtab.Inheritance, "C", "A")
	d := NewInheritanceDAG(f.tbl)

	got := names(d.Ancestors(f.ids["A"]))
	if !slices.Equal(got, []string{"C", "B"}) {
		t.Errorf("Ancestors(A) = %v", got)
	}
	got = names(d.Descendants(f.ids["A"]))
	if !slices.Equal(got, []string{"B", "C"}) {
		t.Errorf("Descendants(A) = %v", got)
	}
}

func TestDAG_RootsAndForest(t *testing.T) {
	t.Parallel()
	f := diamond(t)
	d := NewInheritanceDAG(f.tbl)

	roots := d.Roots()
	if len(roots) != 1 || roots[0].QualifiedName != "Base" {
		t.Errorf("Roots = %v", roots)
	}

	forest := d.Forest(ByDeclaration)
	if len(forest) != 2 {
		t.Fatalf("forest has %d roots, want Base and Lonely", len(forest))
	}
	// Bottom appears under both Left and Right.
	bottoms := 0
	Walk(forest, func(n *TreeNode, _ int) {
		if n.Symbol.QualifiedName == "Bottom" {
			bottoms++
		}
	})
	if bottoms != 2 {
		t.Errorf("Bottom appears %d times, want 2", bottoms)
	}
}

func TestDAG_Nil(t *testing.T) {
	t.Parallel()
	var d *DAG
	if got := names(d.Ancestors(0)); len(got) != 0 {
		t.Errorf("nil DAG yielded %v", got)
	}
	if d.Roots() != nil || d.Forest(ByName) != nil {
		t.Error("nil DAG should have no roots")
	}
}

func TestParseOrder(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Order{"": ByDeclaration, "declaration": ByDeclaration, "Name": ByName} {
		got, err := ParseOrder(in)
		if err != nil || got != want {
			t.Errorf("ParseOrder(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseOrder("random"); err == nil {
		t.Error("expected error")
	}
}
