// Package manifest reads the symbol manifest a documentation build starts
// from and turns it into a symbol table.
package manifest

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jcdickinson/symdex/internal/symtab"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	err := validate.RegisterValidation("symkind", func(fl validator.FieldLevel) bool {
		_, err := symtab.ParseKind(fl.Field().String())
		return err == nil
	})
	if err != nil {
		panic(fmt.Sprintf("registering symkind validation: %v", err))
	}
}

// Snapshot names the documentation set a manifest describes.
type Snapshot struct {
	Name    string `yaml:"name" json:"name" validate:"required"`
	Version string `yaml:"version" json:"version" validate:"required"`
}

type Location struct {
	Page   string `yaml:"page" json:"page" validate:"required"`
	Anchor string `yaml:"anchor,omitempty" json:"anchor,omitempty"`
}

// Symbol is one manifest entry. Container and Bases name other symbols by
// qualified name.
type Symbol struct {
	Name      string     `yaml:"name" json:"name" validate:"required"`
	Kind      string     `yaml:"kind" json:"kind" validate:"required,symkind"`
	Template  []string   `yaml:"template,omitempty" json:"template,omitempty"`
	Container string     `yaml:"container,omitempty" json:"container,omitempty"`
	Bases     []string   `yaml:"bases,omitempty" json:"bases,omitempty" validate:"dive,required"`
	Locations []Location `yaml:"locations,omitempty" json:"locations,omitempty" validate:"dive"`
}

type Manifest struct {
	Snapshot Snapshot `yaml:"snapshot" json:"snapshot"`
	Symbols  []Symbol `yaml:"symbols" json:"symbols" validate:"dive"`
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a YAML or JSON manifest and validates it.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", symtab.ErrSchemaViolation, err)
	}
	if err := validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", symtab.ErrSchemaViolation, err)
	}
	return &m, nil
}

// Table builds a frozen-ready symbol table from the manifest. Symbols and
// locations are inserted first, edges second, so references may point
// forward. An explicit container or base that names no symbol fails with
// symtab.ErrUnknownSymbol. With inferContainment, a symbol left without a
// container is then placed under the symbol named by its scope, if one
// exists.
//
// The first error aborts the build; no partial table is returned.
func (m *Manifest) Table(inferContainment bool) (*symtab.Table, error) {
	t := symtab.New()
	ids := make([]symtab.ID, len(m.Symbols))

	for i, s := range m.Symbols {
		kind, err := symtab.ParseKind(s.Kind)
		if err != nil {
			return nil, fmt.Errorf("symbol %q: %w", s.Name, err)
		}
		var opts []symtab.SymbolOption
		if len(s.Template) > 0 {
			opts = append(opts, symtab.WithTemplateParams(s.Template...))
		}
		id, err := t.AddSymbol(s.Name, kind, opts...)
		if err != nil {
			return nil, err
		}
		ids[i] = id
		for _, loc := range s.Locations {
			if err := t.AddLocation(id, loc.Page, loc.Anchor); err != nil {
				return nil, err
			}
		}
	}

	for i, s := range m.Symbols {
		id := ids[i]
		if container := strings.TrimSpace(s.Container); container != "" {
			parent, ok := t.Resolve(container)
			if !ok {
				return nil, fmt.Errorf("%w: container %q of %q", symtab.ErrUnknownSymbol, container, s.Name)
			}
			if err := t.AddEdge(symtab.Containment, parent.ID, id); err != nil {
				return nil, fmt.Errorf("symbol %q: %w", s.Name, err)
			}
		}
		for _, base := range s.Bases {
			b, ok := t.Resolve(base)
			if !ok {
				return nil, fmt.Errorf("%w: base %q of %q", symtab.ErrUnknownSymbol, base, s.Name)
			}
			if err := t.AddEdge(symtab.Inheritance, b.ID, id); err != nil {
				return nil, fmt.Errorf("symbol %q: %w", s.Name, err)
			}
		}
	}

	if inferContainment {
		for _, id := range ids {
			if _, ok := t.Container(id); ok {
				continue
			}
			sym, _ := t.Symbol(id)
			scope := sym.Scope()
			if scope == "" {
				continue
			}
			parent, ok := t.Resolve(scope)
			if !ok || parent.ID == id {
				continue
			}
			if err := t.AddEdge(symtab.Containment, parent.ID, id); err != nil {
				return nil, fmt.Errorf("symbol %q: %w", sym.QualifiedName, err)
			}
		}
	}
	return t, nil
}
