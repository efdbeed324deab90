package artifact

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/jcdickinson/symdex/internal/nav"
	"github.com/jcdickinson/symdex/internal/query"
	"github.com/jcdickinson/symdex/internal/shard"
	"github.com/jcdickinson/symdex/internal/symtab"
)

func testIndex(t *testing.T) *query.Index {
	t.Helper()
	tbl := symtab.New()
	add := func(name string, kind symtab.Kind, page, anchor string) symtab.ID {
		id, err := tbl.AddSymbol(name, kind)
		if err != nil {
			t.Fatal(err)
		}
		if err := tbl.AddLocation(id, page, anchor); err != nil {
			t.Fatal(err)
		}
		return id
	}
	tools := add("Tools", symtab.KindNamespace, "namespace_tools.html", "")
	grid := add("Tools::ParsedGridGenerator", symtab.KindClass, "class_tools_1_1_parsed_grid_generator.html", "")
	fn := add("Tools::ParsedFunction", symtab.KindClass, "class_tools_1_1_parsed_function.html", "")
	base := add("ParameterAcceptor", symtab.KindClass, "http://www.dealii.org/developer/doxygen/deal.II/classParameterAcceptor.html", "")
	for _, err := range []error{
		tbl.AddEdge(symtab.Containment, tools, grid),
		tbl.AddEdge(symtab.Containment, tools, fn),
		tbl.AddEdge(symtab.Inheritance, base, grid),
		tbl.AddEdge(symtab.Inheritance, base, fn),
	} {
		if err != nil {
			t.Fatal(err)
		}
	}
	ix, err := query.Build(tbl)
	if err != nil {
		t.Fatal(err)
	}
	return ix
}

func TestEncodeShard(t *testing.T) {
	t.Parallel()
	sh := &shard.Shard{Key: "g", Entries: []shard.Entry{
		{DisplayName: "GridGenerator", Scope: "", Locations: []symtab.Location{{Page: "namespace_grid_generator.html"}}},
		{DisplayName: "GridGenerator", Scope: "PDEs", Locations: []symtab.Location{{Page: "namespace_p_d_es.html", Anchor: "a12"}}},
		{DisplayName: "gone", Scope: "X"},
		{DisplayName: "loose"},
	}}
	data, err := EncodeShard(sh)
	if err != nil {
		t.Fatal(err)
	}
	want := `[["GridGenerator",[["namespace_grid_generator.html","",""]]],` +
		`["GridGenerator",[["namespace_p_d_es.html","a12","PDEs"]]],` +
		`["gone",[["","","X"]]],` +
		`["loose",[]]]`
	if string(data) != want {
		t.Errorf("EncodeShard =\n%s\nwant\n%s", data, want)
	}

	rows, err := DecodeShard(WrapJS("searchData", data))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("decoded %d rows", len(rows))
	}
	if q := rows[1].QualifiedName(); q != "PDEs::GridGenerator" {
		t.Errorf("QualifiedName = %q", q)
	}
	e := rows[1].Entry()
	if e.Normalized != "gridgenerator" || e.QualifiedNormalized != "pdes::gridgenerator" {
		t.Errorf("Entry = %+v", e)
	}
	if e.Locations[0].Anchor != "a12" {
		t.Errorf("Entry locations = %v", e.Locations)
	}

	gone := rows[2].Entry()
	if gone.QualifiedName != "X::gone" || gone.Scope != "X" || len(gone.Locations) != 0 {
		t.Errorf("location-less scoped entry = %+v", gone)
	}
	if q := rows[3].QualifiedName(); q != "loose" {
		t.Errorf("QualifiedName = %q", q)
	}
}

func TestDecodeShard_Malformed(t *testing.T) {
	t.Parallel()
	for _, in := range []string{
		`[["only-name"]]`,
		`[["n", [["page", "anchor"]]]]`,
		`{"not": "an array"}`,
		`var searchData = [["n", []]`,
	} {
		if _, err := DecodeShard([]byte(in)); err == nil {
			t.Errorf("DecodeShard(%s) should fail", in)
		}
	}
}

const namespaceToolsJS = `var namespace_tools =
[
    [ "GridInfo", "struct_tools_1_1_grid_info.html", "struct_tools_1_1_grid_info" ],
    [ "ParsedConstants", "class_tools_1_1_parsed_constants.html", "class_tools_1_1_parsed_constants" ],
    [ "ParsedDataOut", "class_tools_1_1_parsed_data_out.html", null ]
];`

const hierarchyJS = `/*
 @licstart  The following is the entire license notice for the JavaScript code in this file.
 @licend  The above is the entire license notice for the JavaScript code in this file
*/
var hierarchy =
[
    [ "bool_constant", null, [
      [ "magic_enum::detail::is_scoped_enum< T, true >", "structmagic__enum_1_1detail_1_1is__scoped__enum_3_01_t_00_01true_01_4.html", null ],
      [ "magic_enum::detail::is_unscoped_enum< T, true >", "structmagic__enum_1_1detail_1_1is__unscoped__enum_3_01_t_00_01true_01_4.html", null ]
    ] ],
    [ "magic_enum::detail::char_equal_to", "structmagic__enum_1_1detail_1_1char__equal__to.html", null ]
];`

func TestDecodeTree_Doxygen(t *testing.T) {
	t.Parallel()
	nodes, err := DecodeTree([]byte(namespaceToolsJS))
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 3 {
		t.Fatalf("decoded %d nodes", len(nodes))
	}
	if nodes[0].Include != "struct_tools_1_1_grid_info" || nodes[0].Ref != "struct_tools_1_1_grid_info.html" {
		t.Errorf("node 0 = %+v", nodes[0])
	}
	if nodes[2].Include != "" || nodes[2].Children != nil {
		t.Errorf("leaf node = %+v", nodes[2])
	}

	nodes, err = DecodeTree([]byte(hierarchyJS))
	if err != nil {
		t.Fatal(err)
	}
	if nodes[0].Ref != "" || len(nodes[0].Children) != 2 {
		t.Errorf("bool_constant = %+v", nodes[0])
	}
	if nodes[0].Children[0].Label != "magic_enum::detail::is_scoped_enum< T, true >" {
		t.Errorf("child label = %q", nodes[0].Children[0].Label)
	}
}

func TestEncodeTree_RoundTrip(t *testing.T) {
	t.Parallel()
	roots := []*nav.Node{
		{Label: "PDEs", Ref: "namespace_p_d_es.html", Children: []*nav.Node{
			{Label: "Serial", Ref: "namespace_p_d_es_1_1_serial.html"},
		}},
		{Label: "external", Include: "external_tree"},
	}
	data, err := EncodeTree(roots)
	if err != nil {
		t.Fatal(err)
	}
	want := `[["PDEs","namespace_p_d_es.html",[["Serial","namespace_p_d_es_1_1_serial.html",null]]],["external",null,"external_tree"]]`
	if string(data) != want {
		t.Errorf("EncodeTree =\n%s\nwant\n%s", data, want)
	}
	back, err := DecodeTree(data)
	if err != nil {
		t.Fatal(err)
	}
	again, err := EncodeTree(back)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, again) {
		t.Errorf("re-encoding differs:\n%s\n%s", data, again)
	}
}

func TestUnwrapJS(t *testing.T) {
	t.Parallel()
	in := "/* license */\nvar NAVTREE =\n[ [\"a;b\", null, null] ];\n\nvar NAVTREEINDEX =\n[\n\"index.html\"\n];\n"
	name, body, err := UnwrapJS([]byte(in))
	if err != nil {
		t.Fatal(err)
	}
	if name != "NAVTREE" || string(body) != `[ ["a;b", null, null] ]` {
		t.Errorf("UnwrapJS = %q, %q", name, body)
	}

	name, body, err = UnwrapJS([]byte(`[1,2]`))
	if err != nil || name != "" || string(body) != "[1,2]" {
		t.Errorf("plain JSON: %q, %q, %v", name, body, err)
	}
}

func TestNavigation_RoundTrip(t *testing.T) {
	t.Parallel()
	ix := testIndex(t)
	data, err := EncodeNavigation(ix.Navigation())
	if err != nil {
		t.Fatal(err)
	}
	tree, err := DecodeNavigation(data)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(tree.Index, ix.Navigation().Index) {
		t.Errorf("Index = %v, want %v", tree.Index, ix.Navigation().Index)
	}
	if err := tree.Consistent(); err != nil {
		t.Error(err)
	}
	next, ok := tree.Next("namespace_tools.html")
	if !ok || next != "class_tools_1_1_parsed_grid_generator.html" {
		t.Errorf("Next = %q, %v", next, ok)
	}
}

func TestWriter_Deterministic(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name     string
		format   Format
		compress bool
	}{
		{"json", FormatJSON, false},
		{"js", FormatJS, false},
		{"json_zst", FormatJSON, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			dirA, dirB := t.TempDir(), t.TempDir()
			wa := &Writer{Dir: dirA, Format: tc.format, Compress: tc.compress, Categories: []string{"classes"}}
			wb := &Writer{Dir: dirB, Format: tc.format, Compress: tc.compress, Categories: []string{"classes"}}
			filesA, err := wa.Write(testIndex(t))
			if err != nil {
				t.Fatal(err)
			}
			filesB, err := wb.Write(testIndex(t))
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(filesA, filesB) {
				t.Fatalf("file lists differ: %v vs %v", filesA, filesB)
			}
			for _, rel := range filesA {
				a, err := os.ReadFile(filepath.Join(dirA, rel))
				if err != nil {
					t.Fatal(err)
				}
				b, err := os.ReadFile(filepath.Join(dirB, rel))
				if err != nil {
					t.Fatal(err)
				}
				if !bytes.Equal(a, b) {
					t.Errorf("%s differs between runs", rel)
				}
			}

			keys, err := ReadKeys(dirA)
			if err != nil {
				t.Fatal(err)
			}
			if keys.Format != tc.format || keys.Compressed != tc.compress {
				t.Errorf("keys file = %+v", keys)
			}
			if !slices.Equal(keys.Categories[shard.CategoryAll], []string{"p", "t"}) {
				t.Errorf("all keys = %v", keys.Categories[shard.CategoryAll])
			}
			if !slices.Equal(keys.Categories["classes"], []string{"p"}) {
				t.Errorf("classes keys = %v", keys.Categories["classes"])
			}

			data, err := ReadFile(filepath.Join(dirA, keys.ShardPath("classes", "p")))
			if err != nil {
				t.Fatal(err)
			}
			rows, err := DecodeShard(data)
			if err != nil {
				t.Fatal(err)
			}
			if len(rows) != 3 {
				t.Errorf("classes_p has %d rows, want 3", len(rows))
			}

			tree, err := ReadNavigation(dirA, tc.format, tc.compress)
			if err != nil {
				t.Fatal(err)
			}
			if len(tree.Roots) != 2 {
				t.Errorf("navigation has %d roots", len(tree.Roots))
			}
		})
	}
}

func TestShardPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		category, key string
		format        Format
		compressed    bool
		want          string
	}{
		{"all", "g", FormatJSON, false, "search/g.json"},
		{"classes", "g", FormatJS, false, "search/classes_g.js"},
		{"all", "~", FormatJSON, true, "search/_7e.json.zst"},
		{"", shard.MiscKey, FormatJSON, false, "search/misc.json"},
	}
	for _, tt := range tests {
		if got := ShardPath(tt.category, tt.key, tt.format, tt.compressed); got != tt.want {
			t.Errorf("ShardPath(%q, %q) = %q, want %q", tt.category, tt.key, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()
	if f, err := ParseFormat("JS"); err != nil || f != FormatJS {
		t.Errorf("ParseFormat(JS) = %q, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}
