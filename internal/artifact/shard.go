package artifact

import (
	"encoding/json"
	"fmt"

	"github.com/jcdickinson/symdex/internal/shard"
	"github.com/jcdickinson/symdex/internal/symtab"
)

// ScopedLocation is one (page, anchor, owning scope) triple of a shard row.
type ScopedLocation struct {
	Page   string
	Anchor string
	Scope  string
}

// Row is one (display name, locations) tuple of a shard file.
type Row struct {
	DisplayName string
	Locations   []ScopedLocation
}

// Scope returns the owning scope of the row's symbol.
func (r Row) Scope() string {
	if len(r.Locations) == 0 {
		return ""
	}
	return r.Locations[0].Scope
}

// QualifiedName rebuilds the qualified name from scope and display name.
func (r Row) QualifiedName() string {
	if s := r.Scope(); s != "" {
		return s + "::" + r.DisplayName
	}
	return r.DisplayName
}

// Entry turns the row back into a search entry. Kind and symbol ID are not
// part of the file format and are left zero. Scope-only triples carry no
// location.
func (r Row) Entry() shard.Entry {
	q := r.QualifiedName()
	var locs []symtab.Location
	for _, l := range r.Locations {
		if l.Page == "" {
			continue
		}
		locs = append(locs, symtab.Location{Page: l.Page, Anchor: l.Anchor})
	}
	return shard.Entry{
		DisplayName:         r.DisplayName,
		Normalized:          shard.Normalize(r.DisplayName),
		QualifiedName:       q,
		QualifiedNormalized: shard.Normalize(q),
		Scope:               r.Scope(),
		SymbolID:            -1,
		Locations:           locs,
	}
}

func (l ScopedLocation) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]string{l.Page, l.Anchor, l.Scope})
}

func (l *ScopedLocation) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("location: %w", err)
	}
	if len(raw) != 3 {
		return fmt.Errorf("location: want [page, anchor, scope], got %d fields", len(raw))
	}
	l.Page, l.Anchor, l.Scope = raw[0], raw[1], raw[2]
	return nil
}

func (r Row) MarshalJSON() ([]byte, error) {
	locs := r.Locations
	if locs == nil {
		locs = []ScopedLocation{}
	}
	return json.Marshal([]any{r.DisplayName, locs})
}

func (r *Row) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("shard row: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("shard row: want [name, locations], got %d fields", len(raw))
	}
	if err := json.Unmarshal(raw[0], &r.DisplayName); err != nil {
		return fmt.Errorf("shard row name: %w", err)
	}
	r.Locations = nil
	if err := json.Unmarshal(raw[1], &r.Locations); err != nil {
		return fmt.Errorf("shard row %q: %w", r.DisplayName, err)
	}
	return nil
}

// Rows converts a shard's entries into file rows, keeping their order. A
// scoped entry without locations gets a single ["", "", scope] triple so its
// qualified name survives the round trip.
func Rows(sh *shard.Shard) []Row {
	rows := make([]Row, len(sh.Entries))
	for i, e := range sh.Entries {
		row := Row{DisplayName: e.DisplayName, Locations: make([]ScopedLocation, len(e.Locations))}
		for j, l := range e.Locations {
			row.Locations[j] = ScopedLocation{Page: l.Page, Anchor: l.Anchor, Scope: e.Scope}
		}
		if len(e.Locations) == 0 && e.Scope != "" {
			row.Locations = []ScopedLocation{{Scope: e.Scope}}
		}
		rows[i] = row
	}
	return rows
}

// EncodeShard renders a shard as
// [[display_name, [[page, anchor, scope], ...]], ...].
func EncodeShard(sh *shard.Shard) ([]byte, error) {
	return json.Marshal(Rows(sh))
}

// DecodeShard parses a shard file. JS-wrapped files are accepted.
func DecodeShard(data []byte) ([]Row, error) {
	_, body, err := UnwrapJS(data)
	if err != nil {
		return nil, fmt.Errorf("decoding shard: %w", err)
	}
	var rows []Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decoding shard: %w", err)
	}
	return rows, nil
}
