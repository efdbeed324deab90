package markdown

import (
	"fmt"
	"strings"

	gm "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	gmparser "github.com/gomarkdown/markdown/parser"
)

// Link is a labelled link destination.
type Link struct {
	Label string
	Dest  string
}

// SymbolPage is what RenderSymbol shows for one symbol. Links to other
// symbols carry symdoc:// URIs; Locations are documentation pages.
type SymbolPage struct {
	QualifiedName  string
	Kind           string
	TemplateParams []string
	Path           []Link
	Bases          []Link
	Derived        []Link
	Members        []Link
	Locations      []string
	// Prev and Next are the neighbouring pages in navigation order.
	Prev, Next string
}

// RenderSymbol renders a symbol page as markdown. Sections without entries
// are left out.
func RenderSymbol(p SymbolPage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s `%s`\n", p.Kind, p.QualifiedName)

	if len(p.TemplateParams) > 0 {
		fmt.Fprintf(&b, "\n`template <%s>`\n", strings.Join(p.TemplateParams, ", "))
	}
	if len(p.Path) > 1 {
		parts := make([]string, 0, len(p.Path)-1)
		for _, l := range p.Path[:len(p.Path)-1] {
			parts = append(parts, linkText(l))
		}
		fmt.Fprintf(&b, "\nDefined in %s\n", strings.Join(parts, " :: "))
	}

	section := func(title string, links []Link) {
		if len(links) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n## %s\n\n", title)
		for _, l := range links {
			fmt.Fprintf(&b, "- %s\n", linkText(l))
		}
	}
	locs := make([]Link, len(p.Locations))
	for i, loc := range p.Locations {
		locs[i] = Link{Label: loc, Dest: loc}
	}
	section("Documentation", locs)
	section("Base classes", p.Bases)
	section("Derived classes", p.Derived)
	section("Members", p.Members)

	var nav []string
	if p.Prev != "" {
		nav = append(nav, linkText(Link{Label: "Previous", Dest: p.Prev}))
	}
	if p.Next != "" {
		nav = append(nav, linkText(Link{Label: "Next", Dest: p.Next}))
	}
	if len(nav) > 0 {
		fmt.Fprintf(&b, "\n%s\n", strings.Join(nav, " | "))
	}
	return b.String()
}

func linkText(l Link) string {
	label := strings.NewReplacer("[", `\[`, "]", `\]`).Replace(l.Label)
	if l.Dest == "" {
		return label
	}
	return fmt.Sprintf("[%s](%s)", label, l.Dest)
}

// ToHTML renders markdown as an HTML fragment.
func ToHTML(src string) string {
	p := gmparser.NewWithExtensions(gmparser.CommonExtensions | gmparser.Autolink)
	r := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	return string(gm.ToHTML([]byte(src), p, r))
}
