package shard

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jcdickinson/symdex/internal/symtab"
)

// Entry is one symbol as it appears in a search shard.
type Entry struct {
	DisplayName         string
	Normalized          string
	QualifiedName       string
	QualifiedNormalized string
	Scope               string
	SymbolID            symtab.ID
	Kind                symtab.Kind
	Locations           []symtab.Location
}

// Shard is one bucket of the search index.
type Shard struct {
	Key     string
	Entries []Entry
}

// Set is the full, immutable search index: shard key -> shard.
type Set struct {
	shards map[string]*Shard
	keys   []string
}

// Keys returns the shard keys in byte order.
func (s Set) Keys() []string {
	return slices.Clone(s.keys)
}

// Get returns the shard for key.
func (s Set) Get(key string) (*Shard, bool) {
	sh, ok := s.shards[key]
	return sh, ok
}

// Len returns the number of shards.
func (s Set) Len() int {
	return len(s.keys)
}

// Entries returns the total number of entries over all shards.
func (s Set) Entries() int {
	n := 0
	for _, sh := range s.shards {
		n += len(sh.Entries)
	}
	return n
}

type buildOptions struct {
	kinds map[symtab.Kind]bool
}

// Option configures Build.
type Option func(*buildOptions)

// WithKinds restricts the index to symbols of the given kinds.
func WithKinds(kinds ...symtab.Kind) Option {
	return func(o *buildOptions) {
		if o.kinds == nil {
			o.kinds = make(map[symtab.Kind]bool)
		}
		for _, k := range kinds {
			o.kinds[k] = true
		}
	}
}

// Build partitions the symbols of t into shards using keyFn. It is a pure
// function of its input: the same table and key function always produce
// the same shards in the same order. Build only fails when the table itself
// is corrupted.
func Build(t *symtab.Table, keyFn KeyFunc, opts ...Option) (Set, error) {
	set := Set{shards: make(map[string]*Shard)}
	if t == nil {
		return set, nil
	}
	if err := t.Validate(); err != nil {
		return Set{}, fmt.Errorf("building search index: %w", err)
	}
	if keyFn == nil {
		keyFn = DefaultKey
	}
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	for _, sym := range t.Symbols() {
		if o.kinds != nil && !o.kinds[sym.Kind] {
			continue
		}
		e := NewEntry(sym, t.Locations(sym.ID))
		key := keyFn(e.DisplayName)
		sh, ok := set.shards[key]
		if !ok {
			sh = &Shard{Key: key}
			set.shards[key] = sh
			set.keys = append(set.keys, key)
		}
		sh.Entries = append(sh.Entries, e)
	}

	for _, sh := range set.shards {
		slices.SortFunc(sh.Entries, CompareEntries)
	}
	slices.Sort(set.keys)
	return set, nil
}

// NewEntry builds the search entry for a symbol.
func NewEntry(sym symtab.Symbol, locs []symtab.Location) Entry {
	display := sym.DisplayName()
	return Entry{
		DisplayName:         display,
		Normalized:          Normalize(display),
		QualifiedName:       sym.QualifiedName,
		QualifiedNormalized: Normalize(sym.QualifiedName),
		Scope:               sym.Scope(),
		SymbolID:            sym.ID,
		Kind:                sym.Kind,
		Locations:           locs,
	}
}

// CompareEntries orders entries by normalized name, then qualified name,
// byte-wise. Kind and ID break the remaining ties.
func CompareEntries(a, b Entry) int {
	if c := strings.Compare(a.Normalized, b.Normalized); c != 0 {
		return c
	}
	if c := strings.Compare(a.QualifiedName, b.QualifiedName); c != 0 {
		return c
	}
	if c := strings.Compare(string(a.Kind), string(b.Kind)); c != 0 {
		return c
	}
	return int(a.SymbolID) - int(b.SymbolID)
}

// Related reports whether shard key may hold entries matching a query whose
// normalized text is q and whose own key is qkey.
func Related(key, q, qkey string) bool {
	if key == qkey {
		return true
	}
	if key == MiscKey {
		return false
	}
	return strings.HasPrefix(q, key) || strings.HasPrefix(key, q)
}
