package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/jcdickinson/symdex/internal/cas"
	"github.com/jcdickinson/symdex/internal/config"
	"github.com/jcdickinson/symdex/internal/db"
	"github.com/jcdickinson/symdex/internal/rpc"
	"github.com/jcdickinson/symdex/internal/symtab"
)

func sampleTable(t *testing.T) *symtab.Table {
	t.Helper()
	tbl := symtab.New()
	must := func(id symtab.ID, err error) symtab.ID {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return id
	}
	tools := must(tbl.AddSymbol("Tools", symtab.KindNamespace))
	acceptor := must(tbl.AddSymbol("ParameterAcceptor", symtab.KindClass))
	parser := must(tbl.AddSymbol("Tools::Parser", symtab.KindClass))
	parsed := must(tbl.AddSymbol("Tools::ParsedFunction", symtab.KindClass, symtab.WithTemplateParams("dim")))
	parse := must(tbl.AddSymbol("Tools::ParsedFunction::parse", symtab.KindFunction))

	for _, loc := range []struct {
		id           symtab.ID
		page, anchor string
	}{
		{tools, "namespace_tools.html", ""},
		{acceptor, "class_parameter_acceptor.html", ""},
		{parser, "class_tools_1_1_parser.html", ""},
		{parsed, "class_tools_1_1_parsed_function.html", ""},
		{parse, "class_tools_1_1_parsed_function.html", "a1f2"},
	} {
		if err := tbl.AddLocation(loc.id, loc.page, loc.anchor); err != nil {
			t.Fatal(err)
		}
	}
	for _, e := range []struct {
		kind          symtab.EdgeKind
		parent, child symtab.ID
	}{
		{symtab.Containment, tools, parser},
		{symtab.Containment, tools, parsed},
		{symtab.Containment, parsed, parse},
		{symtab.Inheritance, acceptor, parser},
		{symtab.Inheritance, parser, parsed},
	} {
		if err := tbl.AddEdge(e.kind, e.parent, e.child); err != nil {
			t.Fatal(err)
		}
	}
	return tbl
}

func testSearcher(t *testing.T) (*Searcher, *db.DB) {
	t.Helper()
	dir := t.TempDir()
	database, err := db.New(db.DriverSQLite, filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("creating test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := &config.Config{
		Index: config.IndexConfig{ShardPrefixLength: 1},
		Docs:  config.DocsConfig{BaseURL: "https://docs.example.org/fsi"},
	}
	return NewSearcher(database, cas.New(filepath.Join(dir, "cas")), cfg), database
}

func ingest(t *testing.T, s *Searcher, database *db.DB, version string) *db.Snapshot {
	t.Helper()
	snap, err := database.UpsertSnapshot("fsi-suite", version, "manifest.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Ingest(snap, sampleTable(t)); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	return snap
}

func names(results []rpc.SymbolResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.QualifiedName
	}
	return out
}

var ref = rpc.SnapshotRef{Snapshot: "fsi-suite", Version: "1.0"}

func TestIngest(t *testing.T) {
	s, database := testSearcher(t)
	snap := ingest(t, s, database, "1.0")

	if !s.Loaded(snap.ID) {
		t.Error("index not published after ingest")
	}
	got, err := database.GetSnapshot("fsi-suite", "1.0")
	if err != nil || got == nil || got.BuiltAt == nil {
		t.Fatalf("snapshot not marked built: %+v, %v", got, err)
	}
	shards, entries, err := database.CountShards(snap.ID, "all")
	if err != nil {
		t.Fatal(err)
	}
	if shards == 0 || entries != 5 {
		t.Errorf("stored %d shards with %d entries, want 5 entries", shards, entries)
	}
	if keys, _ := database.ListShardKeys(snap.ID, "functions"); len(keys) != 1 {
		t.Errorf("function shard keys = %v", keys)
	}
}

func TestIngest_FailedRebuildKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	s, database := testSearcher(t)
	snap := ingest(t, s, database, "1.0")

	// A regular file where the blob directory should be makes every write fail.
	blocked := filepath.Join(t.TempDir(), "cas")
	if err := os.WriteFile(blocked, nil, 0644); err != nil {
		t.Fatal(err)
	}
	broken := NewSearcher(database, cas.New(blocked), &config.Config{Index: config.IndexConfig{ShardPrefixLength: 1}})
	if _, err := broken.Ingest(snap, sampleTable(t)); err == nil {
		t.Fatal("Ingest succeeded with an unwritable blob store")
	}

	latest, err := database.GetLatestSnapshot("fsi-suite")
	if err != nil || latest == nil || latest.ID != snap.ID {
		t.Fatalf("latest = %+v, %v", latest, err)
	}
	if _, entries, _ := database.CountShards(snap.ID, "all"); entries != 5 {
		t.Errorf("previous build has %d shard entries, want 5", entries)
	}
	s.Evict(snap.ID)
	got, err := s.Lookup(ctx, rpc.LookupRequest{SnapshotRef: ref, Query: "pars"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("lookup after failed rebuild = %v", names(got))
	}
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	s, database := testSearcher(t)
	snap := ingest(t, s, database, "1.0")

	resident, err := s.Lookup(ctx, rpc.LookupRequest{SnapshotRef: ref, Query: "pars"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Tools::ParsedFunction::parse", "Tools::ParsedFunction", "Tools::Parser"}
	if !slices.Equal(names(resident), want) {
		t.Fatalf("resident lookup = %v, want %v", names(resident), want)
	}

	s.Evict(snap.ID)
	lazy, err := s.Lookup(ctx, rpc.LookupRequest{SnapshotRef: ref, Query: "pars"})
	if err != nil {
		t.Fatal(err)
	}
	if s.Loaded(snap.ID) {
		t.Error("lookup from stored shards loaded the full index")
	}
	if !slices.EqualFunc(lazy, resident, func(a, b rpc.SymbolResult) bool {
		return a.QualifiedName == b.QualifiedName && a.Kind == b.Kind && a.URI == b.URI &&
			slices.Equal(a.Locations, b.Locations)
	}) {
		t.Errorf("lazy lookup = %+v\nresident = %+v", lazy, resident)
	}

	if got := lazy[0].URI; got != "symdoc://fsi-suite/1.0/Tools::ParsedFunction::parse" {
		t.Errorf("URI = %q", got)
	}
	if got := lazy[0].Locations; !slices.Equal(got, []string{"class_tools_1_1_parsed_function.html#a1f2"}) {
		t.Errorf("locations = %v", got)
	}
}

func TestLookup_ScopedWithoutLocations(t *testing.T) {
	ctx := context.Background()
	s, database := testSearcher(t)

	tbl := symtab.New()
	ns, err := tbl.AddSymbol("A", symtab.KindNamespace)
	if err != nil {
		t.Fatal(err)
	}
	cls, err := tbl.AddSymbol("A::B", symtab.KindClass)
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.AddEdge(symtab.Containment, ns, cls); err != nil {
		t.Fatal(err)
	}
	snap, err := database.UpsertSnapshot("bare", "1.0", "manifest.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Ingest(snap, tbl); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	req := rpc.LookupRequest{SnapshotRef: rpc.SnapshotRef{Snapshot: "bare", Version: "1.0"}, Query: "B"}
	resident, err := s.Lookup(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	s.Reset()
	lazy, err := s.Lookup(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	for name, got := range map[string][]rpc.SymbolResult{"resident": resident, "lazy": lazy} {
		if len(got) != 1 || got[0].QualifiedName != "A::B" || got[0].Kind != string(symtab.KindClass) {
			t.Errorf("%s lookup = %+v, want A::B", name, got)
		}
	}
}

func TestLookup_Filters(t *testing.T) {
	ctx := context.Background()
	s, database := testSearcher(t)
	snap := ingest(t, s, database, "1.0")

	for _, lazy := range []bool{false, true} {
		if lazy {
			s.Evict(snap.ID)
		}
		got, err := s.Lookup(ctx, rpc.LookupRequest{SnapshotRef: ref, Query: "pars", Kinds: []string{"function"}})
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(names(got), []string{"Tools::ParsedFunction::parse"}) {
			t.Errorf("lazy=%v kinds filter = %v", lazy, names(got))
		}

		got, err = s.Lookup(ctx, rpc.LookupRequest{SnapshotRef: ref, Query: "pars", Limit: 2})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Errorf("lazy=%v limit 2 returned %d results", lazy, len(got))
		}

		got, err = s.Lookup(ctx, rpc.LookupRequest{SnapshotRef: ref, Query: "Tools::Parsed"})
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(names(got), []string{"Tools::ParsedFunction"}) {
			t.Errorf("lazy=%v scoped lookup = %v", lazy, names(got))
		}
	}

	if _, err := s.Lookup(ctx, rpc.LookupRequest{SnapshotRef: ref, Query: "x", Kinds: []string{"bogus"}}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestLookup_Missing(t *testing.T) {
	ctx := context.Background()
	s, database := testSearcher(t)
	ingest(t, s, database, "1.0")

	got, err := s.Lookup(ctx, rpc.LookupRequest{SnapshotRef: ref, Query: "zzz"})
	if err != nil || len(got) != 0 {
		t.Errorf("no-match lookup = %v, %v", got, err)
	}
	_, err = s.Lookup(ctx, rpc.LookupRequest{SnapshotRef: rpc.SnapshotRef{Snapshot: "nope"}, Query: "a"})
	if !errors.Is(err, symtab.ErrNotFound) {
		t.Errorf("unknown snapshot error = %v, want ErrNotFound", err)
	}
}

func TestSnapshot_Latest(t *testing.T) {
	s, database := testSearcher(t)
	ingest(t, s, database, "1.0")
	ingest(t, s, database, "2.0")

	snap, err := s.Snapshot(rpc.SnapshotRef{Snapshot: "fsi-suite"})
	if err != nil {
		t.Fatal(err)
	}
	if snap.Version != "2.0" {
		t.Errorf("latest = %s, want 2.0", snap.Version)
	}

	if _, err := database.UpsertSnapshot("fsi-suite", "3.0", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Snapshot(rpc.SnapshotRef{Snapshot: "fsi-suite", Version: "3.0"}); !errors.Is(err, symtab.ErrNotFound) {
		t.Errorf("unbuilt snapshot error = %v, want ErrNotFound", err)
	}
}

func TestPath(t *testing.T) {
	ctx := context.Background()
	s, database := testSearcher(t)
	snap := ingest(t, s, database, "1.0")
	s.Evict(snap.ID)

	got, err := s.Path(ctx, rpc.PathRequest{SnapshotRef: ref, Symbol: "Tools::ParsedFunction::parse"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Tools", "Tools::ParsedFunction", "Tools::ParsedFunction::parse"}
	if !slices.Equal(names(got), want) {
		t.Errorf("path = %v, want %v", names(got), want)
	}
	if !s.Loaded(snap.ID) {
		t.Error("index not loaded by path query")
	}

	if _, err := s.Path(ctx, rpc.PathRequest{SnapshotRef: ref, Symbol: "Tools::Missing"}); !errors.Is(err, symtab.ErrNotFound) {
		t.Errorf("missing symbol error = %v, want ErrNotFound", err)
	}
}

func TestInheritance(t *testing.T) {
	ctx := context.Background()
	s, database := testSearcher(t)
	ingest(t, s, database, "1.0")

	tests := []struct {
		symbol    string
		direction string
		want      []string
	}{
		{"Tools::ParsedFunction", rpc.DirectionBases, []string{"Tools::Parser"}},
		{"Tools::ParsedFunction", rpc.DirectionAncestors, []string{"Tools::Parser", "ParameterAcceptor"}},
		{"ParameterAcceptor", rpc.DirectionDerived, []string{"Tools::Parser"}},
		{"ParameterAcceptor", rpc.DirectionDescendants, []string{"Tools::Parser", "Tools::ParsedFunction"}},
		{"Tools", rpc.DirectionAncestors, []string{}},
	}
	for _, tt := range tests {
		got, err := s.Inheritance(ctx, rpc.InheritanceRequest{SnapshotRef: ref, Symbol: tt.symbol, Direction: tt.direction})
		if err != nil {
			t.Fatalf("%s %s: %v", tt.symbol, tt.direction, err)
		}
		if !slices.Equal(names(got), tt.want) {
			t.Errorf("%s %s = %v, want %v", tt.symbol, tt.direction, names(got), tt.want)
		}
	}

	if _, err := s.Inheritance(ctx, rpc.InheritanceRequest{SnapshotRef: ref, Symbol: "Tools", Direction: "sideways"}); err == nil {
		t.Error("expected error for unknown direction")
	}
}

func TestDoc(t *testing.T) {
	ctx := context.Background()
	s, database := testSearcher(t)
	ingest(t, s, database, "1.0")

	got, err := s.Doc(ctx, rpc.GetDocRequest{SnapshotRef: ref, Symbol: "Tools::ParsedFunction"})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"uri: symdoc://fsi-suite/1.0/Tools::ParsedFunction",
		"# class `Tools::ParsedFunction`",
		"`template <dim>`",
		"Defined in [Tools](symdoc://fsi-suite/1.0/Tools)",
		"(https://docs.example.org/fsi/class_tools_1_1_parsed_function.html)",
		"- [Tools::Parser](symdoc://fsi-suite/1.0/Tools::Parser)",
		"- [parse](symdoc://fsi-suite/1.0/Tools::ParsedFunction::parse)",
		"[Previous](https://docs.example.org/fsi/class_tools_1_1_parser.html)",
		"[Next](https://docs.example.org/fsi/class_tools_1_1_parsed_function.html#a1f2)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("doc missing %q:\n%s", want, got)
		}
	}
}

func TestReset(t *testing.T) {
	s, database := testSearcher(t)
	snap := ingest(t, s, database, "1.0")
	s.Reset()
	if s.Loaded(snap.ID) {
		t.Error("index still resident after Reset")
	}
	ix, err := s.Index(snap)
	if err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 5 {
		t.Errorf("reloaded index has %d symbols, want 5", ix.Len())
	}
}

func TestParseURI(t *testing.T) {
	t.Parallel()
	tests := []struct {
		uri                     string
		snapshot, version, name string
		wantErr                 bool
	}{
		{uri: "symdoc://fsi-suite/1.0/Tools::Parser", snapshot: "fsi-suite", version: "1.0", name: "Tools::Parser"},
		{uri: "symdoc://lib/2/A::operator/", snapshot: "lib", version: "2", name: "A::operator/"},
		{uri: "rsdoc://lib/1/A", wantErr: true},
		{uri: "symdoc://lib/1", wantErr: true},
		{uri: "symdoc://lib//A", wantErr: true},
	}
	for _, tt := range tests {
		snapshot, version, name, err := ParseURI(tt.uri)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseURI(%q) error = %v", tt.uri, err)
			continue
		}
		if snapshot != tt.snapshot || version != tt.version || name != tt.name {
			t.Errorf("ParseURI(%q) = %q, %q, %q", tt.uri, snapshot, version, name)
		}
		if !tt.wantErr && URI(snapshot, version, name) != tt.uri {
			t.Errorf("URI round trip of %q failed", tt.uri)
		}
	}
}
