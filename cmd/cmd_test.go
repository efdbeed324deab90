package cmd

import (
	"path/filepath"
	"testing"

	"github.com/jcdickinson/symdex/internal/rpc"
)

func TestParseRef(t *testing.T) {
	t.Parallel()
	tests := []struct {
		arg  string
		want rpc.SnapshotRef
	}{
		{"fsi-suite", rpc.SnapshotRef{Snapshot: "fsi-suite"}},
		{"fsi-suite@2024.1", rpc.SnapshotRef{Snapshot: "fsi-suite", Version: "2024.1"}},
		{"dealii@", rpc.SnapshotRef{Snapshot: "dealii"}},
	}
	for _, tt := range tests {
		if got := parseRef(tt.arg); got != tt.want {
			t.Errorf("parseRef(%q) = %+v, want %+v", tt.arg, got, tt.want)
		}
	}
}

func TestLocalPath(t *testing.T) {
	t.Parallel()
	for _, url := range []string{"", "https://www.dealii.org/current/doxygen/deal.II"} {
		got, err := localPath(url)
		if err != nil || got != url {
			t.Errorf("localPath(%q) = %q, %v", url, got, err)
		}
	}

	got, err := localPath("docs/html")
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(got) || filepath.Base(got) != "html" {
		t.Errorf("localPath(docs/html) = %q", got)
	}
}

func TestSnapshotSpec(t *testing.T) {
	defer func() { buildManifest, buildDoxygen, buildSnapshot = "", "", "" }()

	buildDoxygen, buildSnapshot = "https://example.org/doxygen", ""
	if _, err := snapshotSpec(); err == nil {
		t.Error("expected error for --doxygen without --snapshot")
	}

	buildDoxygen, buildSnapshot = "", "fsi-suite@2024.1"
	buildManifest = "fsi.yaml"
	spec, err := snapshotSpec()
	if err != nil {
		t.Fatal(err)
	}
	if spec.Name != "fsi-suite" || spec.Version != "2024.1" || !filepath.IsAbs(spec.Manifest) {
		t.Errorf("spec = %+v", spec)
	}
}

func TestSnapshotState(t *testing.T) {
	t.Parallel()
	tests := []struct {
		s    rpc.SnapshotStatus
		want string
	}{
		{rpc.SnapshotStatus{}, "building"},
		{rpc.SnapshotStatus{Built: true}, "ready"},
		{rpc.SnapshotStatus{Built: true, Latest: true, Loaded: true}, "ready, latest, loaded"},
		{rpc.SnapshotStatus{Loaded: true}, "building, loaded"},
	}
	for _, tt := range tests {
		if got := snapshotState(tt.s); got != tt.want {
			t.Errorf("snapshotState(%+v) = %q, want %q", tt.s, got, tt.want)
		}
	}
}
