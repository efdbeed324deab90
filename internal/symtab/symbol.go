package symtab

import (
	"fmt"
	"strings"
)

// ID identifies a symbol within one table. IDs are dense and follow insertion order.
type ID int

// Kind classifies a documented entity.
type Kind string

const (
	KindNamespace  Kind = "namespace"
	KindClass      Kind = "class"
	KindStruct     Kind = "struct"
	KindUnion      Kind = "union"
	KindEnum       Kind = "enum"
	KindEnumerator Kind = "enumerator"
	KindFunction   Kind = "function"
	KindVariable   Kind = "variable"
	KindTypedef    Kind = "typedef"
	KindFile       Kind = "file"
	KindPage       Kind = "page"
	KindGroup      Kind = "group"
	KindDefine     Kind = "define"
)

var allKinds = []Kind{
	KindNamespace, KindClass, KindStruct, KindUnion, KindEnum, KindEnumerator,
	KindFunction, KindVariable, KindTypedef, KindFile, KindPage, KindGroup, KindDefine,
}

// Kinds returns every known kind in a stable order.
func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// ParseKind validates s as a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range allKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrSchemaViolation, s)
}

// IsType reports whether symbols of this kind can take part in inheritance.
func (k Kind) IsType() bool {
	return k == KindClass || k == KindStruct || k == KindUnion
}

// Symbol is a named, documented code entity.
type Symbol struct {
	ID             ID
	QualifiedName  string
	Kind           Kind
	TemplateParams []string
}

// DisplayName is the last top-level scope component, e.g. "Convert< T >" for
// "Patterns::Tools::Convert< T >".
func (s Symbol) DisplayName() string {
	parts := SplitScope(s.QualifiedName)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// Scope is the owning scope label ("" for top-level symbols).
func (s Symbol) Scope() string {
	parts := SplitScope(s.QualifiedName)
	if len(parts) <= 1 {
		return ""
	}
	return strings.Join(parts[:len(parts)-1], "::")
}

func (s Symbol) String() string {
	return fmt.Sprintf("%s %s", s.Kind, s.QualifiedName)
}

// Location is one place a symbol is documented.
type Location struct {
	Page   string `json:"page"`
	Anchor string `json:"anchor,omitempty"`
}

// String renders the location as a page reference ("page#anchor").
func (l Location) String() string {
	if l.Anchor == "" {
		return l.Page
	}
	return l.Page + "#" + l.Anchor
}

// EdgeKind selects one of the two relations kept over the symbol set.
type EdgeKind int

const (
	// Inheritance edges run from a base to a derived type.
	Inheritance EdgeKind = iota
	// Containment edges run from a namespace or module to a member.
	Containment
)

func (k EdgeKind) String() string {
	switch k {
	case Inheritance:
		return "inheritance"
	case Containment:
		return "containment"
	default:
		return "unknown"
	}
}

// ParseEdgeKind is the inverse of EdgeKind.String.
func ParseEdgeKind(s string) (EdgeKind, error) {
	switch s {
	case "inheritance":
		return Inheritance, nil
	case "containment":
		return Containment, nil
	}
	return 0, fmt.Errorf("%w: unknown edge kind %q", ErrSchemaViolation, s)
}

// SplitScope splits a qualified name on top-level "::" separators. Separators
// nested inside template argument lists are left alone, so
// "Convert< std::unique_ptr< T > >" stays a single component.
func SplitScope(name string) []string {
	if name == "" {
		return nil
	}
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ':':
			if depth == 0 && i+1 < len(name) && name[i+1] == ':' {
				parts = append(parts, strings.TrimSpace(name[start:i]))
				i++
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(name[start:]))
}
