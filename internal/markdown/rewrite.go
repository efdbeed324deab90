package markdown

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	gm "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	gmparser "github.com/gomarkdown/markdown/parser"
)

func parse(src string) ast.Node {
	return gm.Parse([]byte(src), gmparser.NewWithExtensions(
		gmparser.CommonExtensions|gmparser.Autolink,
	))
}

// linkDestinations returns the distinct link destinations of src in
// document order.
func linkDestinations(src string) []string {
	seen := make(map[string]bool)
	var dests []string
	ast.WalkFunc(parse(src), func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		if link, ok := node.(*ast.Link); ok {
			dest := string(link.Destination)
			if !seen[dest] {
				seen[dest] = true
				dests = append(dests, dest)
			}
		}
		return ast.GoToNext
	})
	return dests
}

// RewriteLinks rewrites markdown link destinations. rewrite returns the new
// destination and true, or false to keep a link as is. The markdown is
// parsed to find the links, then only the destinations are replaced so
// the original formatting survives.
func RewriteLinks(src string, rewrite func(dest string) (string, bool)) string {
	if rewrite == nil {
		return src
	}

	replacements := make(map[string]string)
	for _, dest := range linkDestinations(src) {
		if newDest, ok := rewrite(dest); ok && newDest != dest {
			replacements[dest] = newDest
		}
	}
	if len(replacements) == 0 {
		return src
	}

	lines := strings.Split(src, "\n")
	for i, line := range lines {
		// Inline links: [text](destination)
		for oldDest, newDest := range replacements {
			line = strings.ReplaceAll(line, "]("+oldDest+")", "]("+newDest+")")
		}
		// Reference-style definitions: [ref]: destination
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") {
			if _, dest, ok := strings.Cut(trimmed, "]: "); ok {
				if newDest, ok := replacements[dest]; ok {
					line = strings.Replace(line, "]: "+dest, "]: "+newDest, 1)
				}
			}
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

// LinkMap adapts a fixed old -> new mapping for RewriteLinks.
func LinkMap(m map[string]string) func(string) (string, bool) {
	if len(m) == 0 {
		return nil
	}
	return func(dest string) (string, bool) {
		d, ok := m[dest]
		return d, ok
	}
}

// PageLinks resolves relative documentation pages ("class_foo.html#a12")
// against base. Absolute URLs, symdoc:// URIs and in-page anchors are kept.
func PageLinks(base string) func(string) (string, bool) {
	if base == "" {
		return nil
	}
	baseURL, err := url.Parse(strings.TrimSuffix(base, "/") + "/")
	if err != nil {
		return nil
	}
	return func(dest string) (string, bool) {
		if dest == "" || strings.HasPrefix(dest, "#") {
			return "", false
		}
		ref, err := url.Parse(dest)
		if err != nil || ref.IsAbs() || strings.HasPrefix(dest, "/") {
			return "", false
		}
		return baseURL.ResolveReference(ref).String(), true
	}
}

// AddFrontMatter prepends a YAML front-matter block with the given fields.
func AddFrontMatter(src string, fields map[string]string) string {
	if len(fields) == 0 {
		return src
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("---\n")
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("%s: %s\n", k, fields[k]))
	}
	b.WriteString("---\n\n")
	b.WriteString(src)
	return b.String()
}
