package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/jcdickinson/symdex/internal/nav"
	"github.com/jcdickinson/symdex/internal/query"
	"github.com/jcdickinson/symdex/internal/shard"
)

// Format selects how artifact files are written.
type Format string

const (
	FormatJSON Format = "json"
	// FormatJS wraps every file in "var name = ...;" like Doxygen output.
	FormatJS Format = "js"
)

// ParseFormat accepts "json" (or "") and "js".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "js", "javascript":
		return FormatJS, nil
	}
	return "", fmt.Errorf("unknown artifact format %q", s)
}

// Ext is the file extension for the format, without compression suffix.
func (f Format) Ext() string {
	if f == FormatJS {
		return ".js"
	}
	return ".json"
}

const (
	KeysFileName        = "search/keys.json"
	ContainmentFileName = "containment"
	HierarchyFileName   = "hierarchy"
	NavigationFileName  = "navtree"
)

// KeysFile lists the shard keys of every search category so a consumer can
// fetch shards on demand.
type KeysFile struct {
	Format     Format              `json:"format"`
	Compressed bool                `json:"compressed"`
	Categories map[string][]string `json:"categories"`
}

// ShardPath returns the path of a shard file relative to the artifact root.
func (k KeysFile) ShardPath(category, key string) string {
	return ShardPath(category, key, k.Format, k.Compressed)
}

// ShardPath returns the relative path of a shard file: search/<key> for the
// "all" category and search/<category>_<key> for the others.
func ShardPath(category, key string, format Format, compressed bool) string {
	name := shard.EscapeKey(key)
	if category != "" && category != shard.CategoryAll {
		name = category + "_" + name
	}
	p := "search/" + name + format.Ext()
	if compressed {
		p += ".zst"
	}
	return p
}

// Writer writes the artifacts of an index into a directory.
type Writer struct {
	Dir      string
	Format   Format
	Compress bool
	// Categories lists extra per-kind search indexes to write besides "all".
	Categories []string
}

// Write renders every artifact of ix and returns the relative paths of the
// files written, in write order. Output depends only on ix and the writer
// settings.
func (w *Writer) Write(ix *query.Index) ([]string, error) {
	if w.Format == "" {
		w.Format = FormatJSON
	}
	var enc *zstd.Encoder
	if w.Compress {
		var err error
		enc, err = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("creating zstd writer: %w", err)
		}
		defer enc.Close()
	}

	var written []string
	// jsVar "" writes data as is: no wrapper and no compression.
	put := func(rel, jsVar string, data []byte) error {
		if jsVar != "" && w.Format == FormatJS {
			data = WrapJS(jsVar, data)
		}
		if jsVar != "" && enc != nil {
			data = enc.EncodeAll(data, nil)
		}
		p := filepath.Join(w.Dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return fmt.Errorf("creating artifact directory: %w", err)
		}
		if err := os.WriteFile(p, data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", rel, err)
		}
		written = append(written, rel)
		return nil
	}
	suffix := w.Format.Ext()
	if w.Compress {
		suffix += ".zst"
	}

	keys := KeysFile{Format: w.Format, Compressed: w.Compress, Categories: map[string][]string{}}
	for _, category := range append([]string{shard.CategoryAll}, w.Categories...) {
		set, err := categorySet(ix, category)
		if err != nil {
			return nil, err
		}
		keys.Categories[category] = set.Keys()
		for _, key := range set.Keys() {
			sh, _ := set.Get(key)
			data, err := EncodeShard(sh)
			if err != nil {
				return nil, fmt.Errorf("encoding shard %q: %w", key, err)
			}
			if err := put(ShardPath(category, key, w.Format, w.Compress), "searchData", data); err != nil {
				return nil, err
			}
		}
	}

	locs := ix.Table()
	containment, err := EncodeTree(Nodes(ix.ContainmentForest(), locs, DisplayLabel))
	if err != nil {
		return nil, fmt.Errorf("encoding containment tree: %w", err)
	}
	if err := put(ContainmentFileName+suffix, "annotated", containment); err != nil {
		return nil, err
	}

	inheritance, err := EncodeTree(Nodes(ix.InheritanceForest(), locs, QualifiedLabel))
	if err != nil {
		return nil, fmt.Errorf("encoding class hierarchy: %w", err)
	}
	if err := put(HierarchyFileName+suffix, "hierarchy", inheritance); err != nil {
		return nil, err
	}

	navigation, err := EncodeNavigation(ix.Navigation())
	if err != nil {
		return nil, fmt.Errorf("encoding navigation: %w", err)
	}
	if err := put(NavigationFileName+suffix, "NAVTREE", navigation); err != nil {
		return nil, err
	}

	// The keys file is read before anything else, so it is never wrapped
	// or compressed.
	keysData, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding keys file: %w", err)
	}
	if err := put(KeysFileName, "", keysData); err != nil {
		return nil, err
	}
	return written, nil
}

func categorySet(ix *query.Index, category string) (shard.Set, error) {
	if category == shard.CategoryAll {
		return ix.Shards(), nil
	}
	kinds, err := shard.KindsOf(category)
	if err != nil {
		return shard.Set{}, err
	}
	return shard.Build(ix.Table(), ix.KeyFunc(), shard.WithKinds(kinds...))
}

// ReadKeys loads the keys file of an artifact directory.
func ReadKeys(dir string) (KeysFile, error) {
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(KeysFileName)))
	if err != nil {
		return KeysFile{}, fmt.Errorf("reading keys file: %w", err)
	}
	var k KeysFile
	if err := json.Unmarshal(data, &k); err != nil {
		return KeysFile{}, fmt.Errorf("decoding keys file: %w", err)
	}
	return k, nil
}

// ReadNavigation reads back the navigation file written by Writer.
func ReadNavigation(dir string, format Format, compressed bool) (*nav.Tree, error) {
	rel := NavigationFileName + format.Ext()
	if compressed {
		rel += ".zst"
	}
	data, err := ReadFile(filepath.Join(dir, rel))
	if err != nil {
		return nil, err
	}
	return DecodeNavigation(data)
}

// ReadFile reads an artifact file, decompressing ".zst" files.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".zst") {
		return data, nil
	}
	return Decompress(data)
}

// Decompress undoes the zstd compression applied by Writer.
func Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	return out, nil
}
