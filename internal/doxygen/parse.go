// Package doxygen imports the navigation and class hierarchy scripts of an
// existing Doxygen HTML tree into a symbol table.
package doxygen

import (
	"path"
	"strings"

	"github.com/jcdickinson/symdex/internal/artifact"
	"github.com/jcdickinson/symdex/internal/nav"
	"github.com/jcdickinson/symdex/internal/symtab"
)

// ParseNavArray decodes a Doxygen tree script such as annotated_dup.js or
// hierarchy.js. A string in the children slot names a separate script and
// is kept as Node.Include.
func ParseNavArray(data []byte) ([]*nav.Node, error) {
	return artifact.DecodeTree(data)
}

// SplitRef splits "page.html#anchor" into its page and anchor.
func SplitRef(ref string) (page, anchor string) {
	page, anchor, _ = strings.Cut(ref, "#")
	return page, anchor
}

// IsExternal reports whether a page lives outside the documentation tree,
// as pages linked through tag files do.
func IsExternal(page string) bool {
	return strings.Contains(page, "://") || strings.HasPrefix(page, "//")
}

// KindOf infers the kind of a tree entry from its ref. Doxygen names pages
// after the compound they document ("class_foo.html", "namespace_bar.html",
// "foo_8h.html"); members carry an anchor. parent is the kind of the
// enclosing symbol, or "" at the top level. Directories and external
// entries report false.
func KindOf(ref string, hasChildren bool, parent symtab.Kind) (symtab.Kind, bool) {
	if ref == "" {
		if hasChildren {
			return symtab.KindNamespace, true
		}
		return symtab.KindClass, true
	}
	page, anchor := SplitRef(ref)
	if IsExternal(page) {
		return "", false
	}
	if anchor != "" {
		switch {
		case parent == symtab.KindEnum:
			return symtab.KindEnumerator, true
		case hasChildren:
			return symtab.KindEnum, true
		default:
			return symtab.KindFunction, true
		}
	}

	base := path.Base(page)
	switch {
	case strings.HasPrefix(base, "namespace"):
		return symtab.KindNamespace, true
	case strings.HasPrefix(base, "class"):
		return symtab.KindClass, true
	case strings.HasPrefix(base, "struct"):
		return symtab.KindStruct, true
	case strings.HasPrefix(base, "union"):
		return symtab.KindUnion, true
	case strings.HasPrefix(base, "group__"):
		return symtab.KindGroup, true
	case strings.HasPrefix(base, "dir_"):
		return "", false
	case strings.Contains(base, "_8"):
		// '.' is encoded as "_8": dof__plotter_8cc.html is dof_plotter.cc.
		return symtab.KindFile, true
	}
	return symtab.KindPage, true
}
