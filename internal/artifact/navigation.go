package artifact

import (
	"encoding/json"
	"fmt"

	"github.com/jcdickinson/symdex/internal/nav"
)

type navigationFile struct {
	Tree      []treeNode `json:"tree"`
	Index     []string   `json:"index"`
	Chunks    []string   `json:"chunks"`
	ChunkSize int        `json:"chunk_size"`
}

// EncodeNavigation renders the navigation tree together with its flat
// index and chunk markers.
func EncodeNavigation(t *nav.Tree) ([]byte, error) {
	f := navigationFile{Tree: []treeNode{}, Index: []string{}, Chunks: []string{}, ChunkSize: t.ChunkSize()}
	if t != nil {
		f.Tree = wrapNodes(t.Roots)
		if t.Index != nil {
			f.Index = t.Index
		}
		if c := t.Chunks(); c != nil {
			f.Chunks = c
		}
	}
	return json.Marshal(f)
}

// DecodeNavigation parses a navigation file back into a tree.
func DecodeNavigation(data []byte) (*nav.Tree, error) {
	_, body, err := UnwrapJS(data)
	if err != nil {
		return nil, fmt.Errorf("decoding navigation: %w", err)
	}
	var f navigationFile
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("decoding navigation: %w", err)
	}
	return nav.New(unwrapNodes(f.Tree), f.Index, f.ChunkSize), nil
}
