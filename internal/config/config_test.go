package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jcdickinson/symdex/internal/artifact"
	"github.com/jcdickinson/symdex/internal/hierarchy"
)

func TestCacheBase_XDGSet(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/custom/cache")
	got := cacheBase()
	want := filepath.Join("/custom/cache", "symdex")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCacheBase_HomeDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "")
	got := cacheBase()
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home dir")
	}
	want := filepath.Join(home, ".cache", "symdex")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCacheBase_TmpFallback(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "")
	t.Setenv("HOME", "")
	got := cacheBase()
	// Should use os.TempDir() when HOME is unset
	if !strings.Contains(got, "symdex") {
		t.Errorf("expected symdex in path, got %q", got)
	}
}

func TestDBPath_PerDriver(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/c")
	if got := DBPath("sqlite3"); got != filepath.Join("/c", "symdex", "db.sqlite") {
		t.Errorf("sqlite path = %q", got)
	}
	if got := DBPath("duckdb"); got != filepath.Join("/c", "symdex", "db.duckdb") {
		t.Errorf("duckdb path = %q", got)
	}
}

func TestDecode_Hooks(t *testing.T) {
	cfg, err := decode(map[string]interface{}{
		"storage": map[string]interface{}{"driver": "sqlite"},
		"index": map[string]interface{}{
			"shard_prefix_length": "2",
			"child_order":         "name",
			"nav_chunk_size":      100,
		},
		"export": map[string]interface{}{"format": "js", "compress": "true"},
		"loader": map[string]interface{}{"max_retries": 5, "initial_backoff": "250ms"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Driver != "sqlite3" {
		t.Errorf("driver = %q", cfg.Storage.Driver)
	}
	if cfg.Index.ShardPrefixLength != 2 || cfg.Index.NavChunkSize != 100 {
		t.Errorf("index = %+v", cfg.Index)
	}
	if cfg.Index.ChildOrder != hierarchy.ByName {
		t.Errorf("child order = %v", cfg.Index.ChildOrder)
	}
	if cfg.Export.Format != artifact.FormatJS || !cfg.Export.Compress {
		t.Errorf("export = %+v", cfg.Export)
	}
	if cfg.Loader.InitialBackoff != 250*time.Millisecond || cfg.Loader.MaxRetries != 5 {
		t.Errorf("loader = %+v", cfg.Loader)
	}
}

func TestDecode_Invalid(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"driver": {"storage": map[string]interface{}{"driver": "postgres"}, "index": map[string]interface{}{"shard_prefix_length": 1}},
		"order":  {"storage": map[string]interface{}{"driver": "duckdb"}, "index": map[string]interface{}{"shard_prefix_length": 1, "child_order": "random"}},
		"format": {"storage": map[string]interface{}{"driver": "duckdb"}, "index": map[string]interface{}{"shard_prefix_length": 1}, "export": map[string]interface{}{"format": "xml"}},
		"prefix": {"storage": map[string]interface{}{"driver": "duckdb"}, "index": map[string]interface{}{"shard_prefix_length": 0}},
	}
	for name, settings := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := decode(settings); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("SYMDEX_INDEX_CHILD_ORDER", "name")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Driver != "sqlite3" {
		t.Errorf("driver = %q", cfg.Storage.Driver)
	}
	if cfg.Index.ShardPrefixLength != 1 || cfg.Index.NavChunkSize != 250 || !cfg.Index.InferContainment {
		t.Errorf("index = %+v", cfg.Index)
	}
	if cfg.Index.ChildOrder != hierarchy.ByName {
		t.Errorf("env override not applied: child order = %v", cfg.Index.ChildOrder)
	}
	if cfg.Loader.InitialBackoff != 100*time.Millisecond {
		t.Errorf("initial backoff = %v", cfg.Loader.InitialBackoff)
	}
	if cfg.Daemon.ExpirationSeconds != 600 {
		t.Errorf("expiration = %d", cfg.Daemon.ExpirationSeconds)
	}
}
