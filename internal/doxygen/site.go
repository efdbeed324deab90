package doxygen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jcdickinson/symdex/internal/nav"
	"github.com/jcdickinson/symdex/internal/symtab"
)

// Scripts read by Site.Import, in order. annotated.js is the older name
// of the class list.
var annotatedFiles = []string{"annotated_dup.js", "annotated.js"}

const hierarchyFile = "hierarchy.js"

// Site is a Doxygen HTML tree, local or remote, belonging to a snapshot.
// Fetched scripts are cached per snapshot unless NoCache is set.
type Site struct {
	Base    string
	Name    string
	Version string
	NoCache bool
}

func (s *Site) fetch(ctx context.Context, file string) ([]*nav.Node, error) {
	cacheable := !s.NoCache && s.Name != ""
	if cacheable && HasCache(s.Name, s.Version, file) {
		if data, err := LoadCache(s.Name, s.Version, file); err == nil {
			return ParseNavArray(data)
		}
	}
	data, err := Fetch(ctx, s.Base, file)
	if err != nil {
		return nil, err
	}
	nodes, err := ParseNavArray(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	if cacheable {
		if err := SaveCache(data, s.Name, s.Version, file); err != nil {
			slog.Warn("failed to cache doxygen script", "file", file, "error", err)
		}
	}
	return nodes, nil
}

// Import reads the class list, every member script it refers to and the
// class hierarchy into a new table. A site without a hierarchy script
// yields a table without inheritance edges.
func (s *Site) Import(ctx context.Context) (*symtab.Table, error) {
	t := symtab.New()

	var (
		nodes []*nav.Node
		err   error
	)
	for _, file := range annotatedFiles {
		nodes, err = s.fetch(ctx, file)
		if !errors.Is(err, symtab.ErrNotFound) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("reading class list: %w", err)
	}
	pending, err := ImportAnnotated(t, nodes)
	if err != nil {
		return nil, err
	}
	if err := s.follow(ctx, t, pending, ImportMembers); err != nil {
		return nil, err
	}

	nodes, err = s.fetch(ctx, hierarchyFile)
	switch {
	case errors.Is(err, symtab.ErrNotFound):
		slog.Info("no class hierarchy", "base", s.Base)
		return t, nil
	case err != nil:
		return nil, fmt.Errorf("reading class hierarchy: %w", err)
	}
	pending, err = ImportHierarchy(t, nodes)
	if err != nil {
		return nil, err
	}
	if err := s.follow(ctx, t, pending, ImportDerived); err != nil {
		return nil, err
	}
	return t, nil
}

type importFunc func(t *symtab.Table, scope string, nodes []*nav.Node) ([]Include, error)

// follow imports included scripts breadth first. Each script is read once;
// a missing script is logged and skipped.
func (s *Site) follow(ctx context.Context, t *symtab.Table, pending []Include, fn importFunc) error {
	seen := make(map[Include]bool)
	for len(pending) > 0 {
		inc := pending[0]
		pending = pending[1:]
		if seen[inc] {
			continue
		}
		seen[inc] = true
		if err := ctx.Err(); err != nil {
			return err
		}

		nodes, err := s.fetch(ctx, inc.File+".js")
		if errors.Is(err, symtab.ErrNotFound) {
			slog.Warn("included script missing", "file", inc.File, "scope", inc.Scope)
			continue
		}
		if err != nil {
			return err
		}
		more, err := fn(t, inc.Scope, nodes)
		if err != nil {
			return fmt.Errorf("%s: %w", inc.File, err)
		}
		pending = append(pending, more...)
	}
	return nil
}
