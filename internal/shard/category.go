package shard

import (
	"fmt"
	"strings"

	"github.com/jcdickinson/symdex/internal/symtab"
)

// CategoryAll is the index that holds every symbol.
const CategoryAll = "all"

var categoryOf = map[symtab.Kind]string{
	symtab.KindNamespace:  "namespaces",
	symtab.KindClass:      "classes",
	symtab.KindStruct:     "classes",
	symtab.KindUnion:      "classes",
	symtab.KindEnum:       "enums",
	symtab.KindEnumerator: "enumvalues",
	symtab.KindFunction:   "functions",
	symtab.KindVariable:   "variables",
	symtab.KindTypedef:    "typedefs",
	symtab.KindFile:       "files",
	symtab.KindPage:       "pages",
	symtab.KindGroup:      "groups",
	symtab.KindDefine:     "defines",
}

// Category returns the search category a kind is listed under.
func Category(kind symtab.Kind) string {
	return categoryOf[kind]
}

// Categories returns "all" followed by every per-kind category, without
// duplicates, in a stable order.
func Categories() []string {
	out := []string{CategoryAll}
	seen := map[string]bool{CategoryAll: true}
	for _, k := range symtab.Kinds() {
		c := categoryOf[k]
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// KindsOf returns the kinds listed under a category. It returns nil for
// "all" and an error for unknown categories.
func KindsOf(category string) ([]symtab.Kind, error) {
	if category == CategoryAll || category == "" {
		return nil, nil
	}
	var kinds []symtab.Kind
	for _, k := range symtab.Kinds() {
		if categoryOf[k] == category {
			kinds = append(kinds, k)
		}
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("unknown category %q", category)
	}
	return kinds, nil
}

// EscapeKey turns a shard key into a file-name-safe identifier. Lower-case
// ASCII letters and digits pass through and every other byte becomes "_xx",
// so distinct keys never share a file name.
func EscapeKey(key string) string {
	if key == "" {
		return "_"
	}
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "_%02x", c)
		}
	}
	return b.String()
}
